// Package ws implements the websocket protocol surface of the relay: one
// Session per connection, running all protocol handling and all writes on a
// single goroutine so replies and live deliveries never interleave.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"nrelay/internal/relay"
)

const (
	// deliveryQueueSize bounds how many matched events may queue for a
	// connection before fan-out starts dropping for it.
	deliveryQueueSize = 256

	// maxSubIDLength caps client-chosen subscription ids, advertised in the
	// relay information document.
	maxSubIDLength = 64

	// frameHeadroom is added on top of the content cap when limiting frame
	// size: JSON escaping can double the content bytes, and the envelope
	// (id, pubkey, sig, tags) needs room of its own. Events over the content
	// cap must still be readable so they can be rejected with an OK reply
	// instead of a dropped connection.
	frameHeadroom = 64 * 1024

	pongWait     = 60 * time.Second
	pingInterval = 25 * time.Second
	writeWait    = 10 * time.Second
)

// SessionConfig carries the per-connection policy knobs.
type SessionConfig struct {
	AuthRequired   bool
	MaxContentSize int
	MaxFilters     int
	MaxLimit       int
	// MessageRate limits client messages per second; zero disables limiting.
	MessageRate float64
	MessageBurst int
}

// wsConn abstracts the parts of *websocket.Conn the session uses, so tests
// can drive a session without a network connection.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Session is the per-connection actor. The reader goroutine only pulls raw
// frames off the wire; a single worker goroutine handles every client
// message and every live delivery, which serializes all writes.
type Session struct {
	id        string
	conn      wsConn
	ingestor  *relay.Ingestor
	store     relay.EventStore
	registry  *relay.Registry
	validator *relay.Validator
	clock     relay.Clock
	logger    relay.Logger
	cfg       SessionConfig

	deliveries chan relay.Delivery
	limiter    *rate.Limiter

	// Mutated only by the worker goroutine.
	challenge    string
	authedPubkey string
	backfilled   map[string]map[string]struct{}
}

// NewSession wires a session for one accepted connection.
func NewSession(id string, conn wsConn, ingestor *relay.Ingestor, store relay.EventStore, registry *relay.Registry, validator *relay.Validator, clock relay.Clock, logger relay.Logger, cfg SessionConfig) *Session {
	var limiter *rate.Limiter
	if cfg.MessageRate > 0 {
		burst := cfg.MessageBurst
		if burst <= 0 {
			burst = int(cfg.MessageRate)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.MessageRate), burst)
	}
	return &Session{
		id:         id,
		conn:       conn,
		ingestor:   ingestor,
		store:      store,
		registry:   registry,
		validator:  validator,
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
		deliveries: make(chan relay.Delivery, deliveryQueueSize),
		limiter:    limiter,
		backfilled: make(map[string]map[string]struct{}),
	}
}

// Deliveries returns the channel the registry queues matched events on.
func (s *Session) Deliveries() chan<- relay.Delivery { return s.deliveries }

// Run services the connection until the client disconnects or ctx ends.
// It always unregisters the connection and closes the socket before
// returning.
func (s *Session) Run(ctx context.Context) {
	defer s.conn.Close()
	s.registry.Register(s.id, s.deliveries)
	defer s.registry.Unregister(s.id)

	if s.cfg.MaxContentSize > 0 {
		s.conn.SetReadLimit(2*int64(s.cfg.MaxContentSize) + frameHeadroom)
	}
	s.conn.SetReadDeadline(s.clock.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(s.clock.Now().Add(pongWait))
	})

	challenge, err := newChallenge()
	if err != nil {
		s.logger.Error("session setup failed", "conn", s.id, "error", err)
		return
	}
	s.challenge = challenge
	if err := s.conn.WriteJSON([]any{"AUTH", s.challenge}); err != nil {
		s.logger.Debug("session write failed", "conn", s.id, "error", err)
		return
	}

	inbox := make(chan []byte, 16)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			_, payload, err := s.conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case inbox <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readerDone:
			return
		case raw := <-inbox:
			if s.limiter != nil && !s.limiter.Allow() {
				s.notice("rate limit exceeded, slow down")
				continue
			}
			if err := s.handleMessage(ctx, raw); err != nil {
				s.logger.Debug("session write failed", "conn", s.id, "error", err)
				return
			}
		case d := <-s.deliveries:
			if s.wasBackfilled(d.SubID, d.Event.ID) {
				continue
			}
			if err := s.conn.WriteJSON([]any{"EVENT", d.SubID, d.Event}); err != nil {
				s.logger.Debug("session write failed", "conn", s.id, "error", err)
				return
			}
		case <-ticker.C:
			deadline := s.clock.Now().Add(writeWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one client frame. The returned error is a write
// failure and terminates the session; protocol problems are answered on the
// wire instead.
func (s *Session) handleMessage(ctx context.Context, raw []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) == 0 {
		return s.notice("could not parse message")
	}
	var verb string
	if err := json.Unmarshal(parts[0], &verb); err != nil {
		return s.notice("could not parse message")
	}

	switch verb {
	case "EVENT":
		return s.handleEvent(ctx, parts)
	case "REQ":
		return s.handleReq(ctx, parts)
	case "CLOSE":
		return s.handleClose(parts)
	case "COUNT":
		return s.handleCount(ctx, parts)
	case "AUTH":
		return s.handleAuth(parts)
	default:
		return s.notice(fmt.Sprintf("unrecognized message type: %s", verb))
	}
}

func (s *Session) handleEvent(ctx context.Context, parts []json.RawMessage) (err error) {
	if len(parts) != 2 {
		return s.notice("EVENT requires exactly one event")
	}

	var payload any
	if jsonErr := json.Unmarshal(parts[1], &payload); jsonErr != nil {
		return s.notice("could not parse event")
	}

	// Unauthenticated clients get auth-required before any other verdict on
	// the event, so a malformed or oversized submission does not leak which
	// check it would have failed.
	if s.cfg.AuthRequired && s.authedPubkey == "" {
		id := eventID(payload)
		if id == "" {
			return s.notice("could not parse event")
		}
		return s.ok(id, false, relay.Reason(relay.ErrAuthRequired))
	}

	if !s.validator.ValidateRaw(payload) {
		id := eventID(payload)
		if id == "" {
			return s.notice("could not parse event")
		}
		return s.ok(id, false, relay.Reason(relay.ErrInvalidEvent))
	}

	var e relay.Event
	if jsonErr := json.Unmarshal(parts[1], &e); jsonErr != nil {
		return s.notice("could not parse event")
	}

	// A panic while admitting one event must not take the connection down.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic handling event", "conn", s.id, "event", e.ID, "panic", r)
			err = s.ok(e.ID, false, "server-error")
		}
	}()

	if s.cfg.MaxContentSize > 0 && len(e.Content) > s.cfg.MaxContentSize {
		return s.ok(e.ID, false, relay.Reason(relay.ErrTooLarge))
	}

	if ingestErr := s.ingestor.Ingest(ctx, &e); ingestErr != nil {
		return s.ok(e.ID, false, relay.Reason(ingestErr))
	}
	return s.ok(e.ID, true, "")
}

func (s *Session) handleReq(ctx context.Context, parts []json.RawMessage) error {
	subID, filters, warnings, ok, reply := s.parseSubscription(parts)
	if !ok {
		return reply()
	}
	for _, w := range warnings {
		if err := s.notice(w); err != nil {
			return err
		}
	}

	// Registering before the historical query closes the gap where an event
	// ingested mid-backfill would reach neither path. Duplicates from the
	// overlap are suppressed against the backfill id set.
	s.registry.SetSubscription(s.id, subID, filters)

	sent := make(map[string]struct{})
	for i := range filters {
		events, err := s.store.QueryByFilter(ctx, filters[i])
		if err != nil {
			// Backfill degrades to a partial result; live delivery for the
			// subscription is unaffected.
			s.logger.Error("subscription backfill failed", "conn", s.id, "sub", subID, "error", err)
			continue
		}
		for _, e := range events {
			if _, dup := sent[e.ID]; dup {
				continue
			}
			sent[e.ID] = struct{}{}
			if err := s.conn.WriteJSON([]any{"EVENT", subID, e}); err != nil {
				return err
			}
		}
	}
	s.backfilled[subID] = sent

	return s.conn.WriteJSON([]any{"EOSE", subID})
}

func (s *Session) handleClose(parts []json.RawMessage) error {
	if len(parts) != 2 {
		return s.notice("CLOSE requires a subscription id")
	}
	var subID string
	if err := json.Unmarshal(parts[1], &subID); err != nil || subID == "" {
		return s.notice("CLOSE requires a subscription id")
	}
	s.registry.RemoveSubscription(s.id, subID)
	delete(s.backfilled, subID)
	return nil
}

func (s *Session) handleCount(ctx context.Context, parts []json.RawMessage) error {
	subID, filters, warnings, ok, reply := s.parseSubscription(parts)
	if !ok {
		return reply()
	}
	for _, w := range warnings {
		if err := s.notice(w); err != nil {
			return err
		}
	}

	var total int64
	for i := range filters {
		n, err := s.store.CountByFilter(ctx, filters[i])
		if err != nil {
			// A failing filter contributes zero instead of failing the count.
			s.logger.Error("count failed", "conn", s.id, "sub", subID, "error", err)
			continue
		}
		total += n
	}
	return s.conn.WriteJSON([]any{"COUNT", subID, map[string]int64{"count": total}})
}

func (s *Session) handleAuth(parts []json.RawMessage) error {
	if len(parts) != 2 {
		return s.notice("AUTH requires exactly one event")
	}
	var e relay.Event
	if err := json.Unmarshal(parts[1], &e); err != nil {
		return s.notice("could not parse auth event")
	}

	if err := verifyAuthEvent(&e, s.challenge, s.clock.Now()); err != nil {
		s.logger.Debug("auth rejected", "conn", s.id, "error", err)
		return s.ok(e.ID, false, relay.Reason(relay.ErrAuthRequired))
	}

	s.authedPubkey = e.Pubkey
	s.logger.Info("connection authenticated", "conn", s.id, "pubkey", e.Pubkey)
	return s.ok(e.ID, true, "auth-accepted")
}

// parseSubscription decodes the shared REQ/COUNT shape: a subscription id
// followed by one or more filters. Malformed messages fail hard, with the
// returned reply func sending the NOTICE; filter-count and limit violations
// are soft and only degrade the request, reported through warnings.
func (s *Session) parseSubscription(parts []json.RawMessage) (string, []relay.Filter, []string, bool, func() error) {
	if len(parts) < 3 {
		return "", nil, nil, false, func() error { return s.notice("subscription requires an id and at least one filter") }
	}
	var subID string
	if err := json.Unmarshal(parts[1], &subID); err != nil || subID == "" {
		return "", nil, nil, false, func() error { return s.notice("subscription requires an id and at least one filter") }
	}
	if len(subID) > maxSubIDLength {
		return "", nil, nil, false, func() error {
			return s.notice(fmt.Sprintf("subscription id exceeds %d characters", maxSubIDLength))
		}
	}

	var warnings []string
	raw := parts[2:]
	if max := s.cfg.MaxFilters; max > 0 && len(raw) > max {
		warnings = append(warnings, fmt.Sprintf("too many filters: keeping the first %d of %d", max, len(raw)))
		raw = raw[:max]
	}

	clamped := false
	filters := make([]relay.Filter, 0, len(raw))
	for _, rawFilter := range raw {
		var f relay.Filter
		if err := json.Unmarshal(rawFilter, &f); err != nil {
			return "", nil, nil, false, func() error { return s.notice("could not parse filter") }
		}
		if s.cfg.MaxLimit > 0 && f.Limit > s.cfg.MaxLimit {
			f.Limit = s.cfg.MaxLimit
			clamped = true
		}
		filters = append(filters, f)
	}
	if clamped {
		warnings = append(warnings, fmt.Sprintf("filter limit clamped to %d", s.cfg.MaxLimit))
	}
	return subID, filters, warnings, true, nil
}

func (s *Session) wasBackfilled(subID, eventID string) bool {
	ids, ok := s.backfilled[subID]
	if !ok {
		return false
	}
	_, seen := ids[eventID]
	return seen
}

func (s *Session) ok(id string, accepted bool, reason string) error {
	return s.conn.WriteJSON([]any{"OK", id, accepted, reason})
}

func (s *Session) notice(msg string) error {
	return s.conn.WriteJSON([]any{"NOTICE", msg})
}

// eventID pulls the id out of an untyped payload for rejection replies.
func eventID(payload any) string {
	obj, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := obj["id"].(string)
	return id
}

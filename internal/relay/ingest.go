package relay

import (
	"context"
	"fmt"
)

// Ingestor orchestrates event admission: validate, expiration pre-check,
// kind policy (deletion / ephemeral / store), then exactly one bus publish
// per successful call.
type Ingestor struct {
	store     EventStore
	bus       Bus
	validator *Validator
	moderator *Moderator
	clock     Clock
	logger    Logger
}

// NewIngestor creates an Ingestor with the provided dependencies. moderator
// may be nil when moderation is disabled.
func NewIngestor(store EventStore, bus Bus, validator *Validator, moderator *Moderator, clock Clock, logger Logger) *Ingestor {
	return &Ingestor{
		store:     store,
		bus:       bus,
		validator: validator,
		moderator: moderator,
		clock:     clock,
		logger:    logger,
	}
}

// Ingest admits one event. Rejections come back as the protocol sentinels
// (ErrInvalidEvent, ErrExpiredEvent, ErrBlocked); anything else is a
// storage or bus failure.
func (in *Ingestor) Ingest(ctx context.Context, e *Event) error {
	if !in.validator.Validate(e) {
		return ErrInvalidEvent
	}

	// Expiration pre-check: an already-elapsed expiration tag means no
	// store and no publish.
	if exp := e.ExpiresAt(); exp > 0 && exp <= in.clock.Now().Unix() {
		return ErrExpiredEvent
	}

	if !in.moderator.Allow(e) {
		return ErrBlocked
	}

	switch {
	case e.Kind == KindDeletion:
		// Stored like any other event; the store additionally tombstones
		// the referenced ids owned by the same pubkey, in one transaction.
		if err := in.store.SaveEvent(ctx, e); err != nil {
			return fmt.Errorf("saving deletion event: %w", err)
		}
	case e.IsEphemeral():
		// Never persisted, only forwarded.
	default:
		if err := in.store.SaveEvent(ctx, e); err != nil {
			return fmt.Errorf("saving event: %w", err)
		}
	}

	if err := in.bus.Publish(e); err != nil {
		// The event is already durable; a publish failure only degrades
		// live delivery for this event.
		in.logger.Error("publishing ingested event", "id", e.ID, "error", err)
		return nil
	}

	in.logger.Debug("event ingested", "id", e.ID, "kind", e.Kind, "pubkey", e.Pubkey)
	return nil
}

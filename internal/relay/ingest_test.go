package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeStore records saved events and lets tests inject failures.
type fakeStore struct {
	saved   []*Event
	saveErr error
}

func (s *fakeStore) SaveEvent(_ context.Context, e *Event) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, e)
	return nil
}

func (s *fakeStore) QueryByFilter(context.Context, Filter) ([]*Event, error) { return nil, nil }
func (s *fakeStore) CountByFilter(context.Context, Filter) (int64, error)   { return 0, nil }
func (s *fakeStore) Tombstone(context.Context, string) error                { return nil }
func (s *fakeStore) TombstoneReferenced(context.Context, []string, string) error {
	return nil
}
func (s *fakeStore) SweepExpired(context.Context, int64, int64) (int64, error) { return 0, nil }
func (s *fakeStore) Ping(context.Context) error                                { return nil }
func (s *fakeStore) Close() error                                              { return nil }

type fakeBus struct {
	published []*Event
	pubErr    error
}

func (b *fakeBus) Publish(e *Event) error {
	if b.pubErr != nil {
		return b.pubErr
	}
	b.published = append(b.published, e)
	return nil
}
func (b *fakeBus) Subscribe(func(e *Event)) error { return nil }
func (b *fakeBus) Close() error                   { return nil }

func testIngestor(store *fakeStore, bus *fakeBus, now time.Time) *Ingestor {
	clock := stubClock{t: now}
	return NewIngestor(store, bus, NewValidator(clock), nil, clock, NewNopLogger())
}

func validEvent(kind int, createdAt int64, tags [][]string) *Event {
	e := &Event{
		ID:        fullHex('a'),
		Kind:      kind,
		Pubkey:    fullHex('b'),
		CreatedAt: createdAt,
		Content:   "hi",
		Tags:      tags,
	}
	return e
}

func TestIngestor_StoresAndPublishes(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := &fakeStore{}
	bus := &fakeBus{}
	in := testIngestor(store, bus, now)

	e := validEvent(1, now.Unix(), nil)
	if err := in.Ingest(context.Background(), e); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(store.saved) != 1 {
		t.Errorf("saved %d events, want 1", len(store.saved))
	}
	if len(bus.published) != 1 {
		t.Errorf("published %d events, want 1", len(bus.published))
	}
}

func TestIngestor_RejectsInvalid(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := &fakeStore{}
	bus := &fakeBus{}
	in := testIngestor(store, bus, now)

	e := validEvent(1, now.Unix(), nil)
	e.ID = "not-hex"
	err := in.Ingest(context.Background(), e)
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
	if len(store.saved) != 0 || len(bus.published) != 0 {
		t.Error("invalid event reached store or bus")
	}
}

func TestIngestor_RejectsAlreadyExpired(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := &fakeStore{}
	bus := &fakeBus{}
	in := testIngestor(store, bus, now)

	e := validEvent(1, now.Unix(), [][]string{{"expiration", "1600000000"}})
	err := in.Ingest(context.Background(), e)
	if !errors.Is(err, ErrExpiredEvent) {
		t.Fatalf("err = %v, want ErrExpiredEvent", err)
	}
	if len(store.saved) != 0 || len(bus.published) != 0 {
		t.Error("expired event reached store or bus")
	}
}

func TestIngestor_FutureExpirationAccepted(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := &fakeStore{}
	bus := &fakeBus{}
	in := testIngestor(store, bus, now)

	e := validEvent(1, now.Unix(), [][]string{{"expiration", "1800000000"}})
	if err := in.Ingest(context.Background(), e); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(store.saved) != 1 {
		t.Error("event with future expiration not stored")
	}
}

func TestIngestor_EphemeralNotStored(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := &fakeStore{}
	bus := &fakeBus{}
	in := testIngestor(store, bus, now)

	e := validEvent(20001, now.Unix(), nil)
	if err := in.Ingest(context.Background(), e); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(store.saved) != 0 {
		t.Error("ephemeral event was stored")
	}
	if len(bus.published) != 1 {
		t.Error("ephemeral event was not published")
	}
}

func TestIngestor_ModerationBlocks(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := &fakeStore{}
	bus := &fakeBus{}
	clock := stubClock{t: now}
	mod := NewModerator(true, []string{"spamword"}, nil)
	in := NewIngestor(store, bus, NewValidator(clock), mod, clock, NewNopLogger())

	e := validEvent(1, now.Unix(), nil)
	e.Content = "buy spamword now"
	err := in.Ingest(context.Background(), e)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
	if len(store.saved) != 0 || len(bus.published) != 0 {
		t.Error("blocked event reached store or bus")
	}
}

func TestIngestor_PublishFailureStillSucceeds(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := &fakeStore{}
	bus := &fakeBus{pubErr: errors.New("broker down")}
	in := testIngestor(store, bus, now)

	e := validEvent(1, now.Unix(), nil)
	if err := in.Ingest(context.Background(), e); err != nil {
		t.Fatalf("Ingest returned %v after durable save", err)
	}
	if len(store.saved) != 1 {
		t.Error("event not stored")
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrInvalidEvent, "invalid-event"},
		{ErrExpiredEvent, "expired"},
		{ErrAuthRequired, "auth-required"},
		{ErrTooLarge, "too-large"},
		{ErrBlocked, "blocked"},
		{errors.New("disk full"), "server-error"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

package sweeper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"nrelay/internal/relay"
	"nrelay/internal/testutil"
)

func TestSweeper_RemovesExpiredAndOldTombstones(t *testing.T) {
	clock := testutil.FixedClock()
	store := testutil.NewTestStore(t, clock)
	ctx := context.Background()

	now := clock.Now().Unix()

	expired := &relay.Event{
		ID: id(1), Kind: 1, Pubkey: id(10), CreatedAt: now - 100, Content: "x",
		Tags: [][]string{{"expiration", fmt.Sprintf("%d", now-10)}},
	}
	tombstoned := &relay.Event{
		ID: id(2), Kind: 1, Pubkey: id(10), CreatedAt: now - 100000, Content: "x",
	}
	keeper := &relay.Event{
		ID: id(3), Kind: 1, Pubkey: id(10), CreatedAt: now - 100, Content: "x",
	}

	for _, e := range []*relay.Event{expired, tombstoned, keeper} {
		if err := store.SaveEvent(ctx, e); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}
	if err := store.Tombstone(ctx, tombstoned.ID); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}

	s := New(store, clock, relay.NewNopLogger(), time.Hour, time.Hour)
	removed, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	got, err := store.QueryByFilter(ctx, relay.Filter{})
	if err != nil {
		t.Fatalf("QueryByFilter: %v", err)
	}
	if len(got) != 1 || got[0].ID != keeper.ID {
		t.Errorf("remaining events = %v, want only %s", got, keeper.ID)
	}
}

func TestSweeper_FreshTombstonesSurvive(t *testing.T) {
	clock := testutil.FixedClock()
	store := testutil.NewTestStore(t, clock)
	ctx := context.Background()

	now := clock.Now().Unix()
	e := &relay.Event{ID: id(1), Kind: 1, Pubkey: id(10), CreatedAt: now - 60, Content: "x"}
	if err := store.SaveEvent(ctx, e); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	if err := store.Tombstone(ctx, e.ID); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}

	// Retention of an hour; the tombstone is a minute old.
	s := New(store, clock, relay.NewNopLogger(), time.Hour, time.Hour)
	removed, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}

	// Once the retention window passes, the next sweep takes it.
	clock.Advance(2 * time.Hour)
	removed, err = s.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep after advance: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed after advance = %d, want 1", removed)
	}
}

func TestSweeper_RunStopsOnContextCancel(t *testing.T) {
	clock := testutil.FixedClock()
	store := testutil.NewTestStore(t, clock)

	s := New(store, clock, relay.NewNopLogger(), time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func id(n int) string {
	return fmt.Sprintf("%064x", n)
}

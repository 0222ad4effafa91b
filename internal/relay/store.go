package relay

import "context"

// Query result caps. StoreHardCap bounds results regardless of what the
// filter asks for; DefaultQueryLimit applies when the filter carries none.
const (
	DefaultQueryLimit = 500
	StoreHardCap      = 5000
)

// EventStore is the durable, versioned event storage. Writes are kind-aware:
// replaceable and parameterized-replaceable policy, the id-uniqueness no-op
// on duplicates, and deletion-event tombstones are all applied inside a
// single transaction per event.
//
// Queries and counts must translate the Filter vocabulary into storage
// predicates that agree exactly with Filter.Matches, and unconditionally
// exclude tombstoned and expired rows.
type EventStore interface {
	// SaveEvent stores the event, applying the kind policy atomically.
	// Saving an already-stored id is a no-op, not an error.
	SaveEvent(ctx context.Context, e *Event) error

	// QueryByFilter returns matching events ordered by created_at
	// descending, capped at min(filter limit, hard cap).
	QueryByFilter(ctx context.Context, f Filter) ([]*Event, error)

	// CountByFilter returns the number of matching events.
	CountByFilter(ctx context.Context, f Filter) (int64, error)

	// Tombstone marks a single event deleted by id.
	Tombstone(ctx context.Context, id string) error

	// TombstoneReferenced marks every listed id deleted, but only rows
	// authored by the given pubkey.
	TombstoneReferenced(ctx context.Context, ids []string, pubkey string) error

	// SweepExpired physically removes rows whose expiration passed and
	// tombstoned rows older than the retention cutoff (unix seconds).
	// Returns the number of rows removed.
	SweepExpired(ctx context.Context, now int64, tombstoneCutoff int64) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying connection pool.
	Close() error
}

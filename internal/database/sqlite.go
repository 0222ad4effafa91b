package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"nrelay/internal/relay"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the relay.EventStore interface using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	clock relay.Clock
	path  string
}

// NewSQLiteStore creates a new SQLite event store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string, clock relay.Clock) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, clock: clock, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB, clock relay.Clock) *SQLiteStore {
	return &SQLiteStore{db: db, clock: clock}
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the relay relies on. Exported for tools and tests that need a properly
// configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Foreign keys drive event_tags cleanup; WAL and the busy timeout keep
	// concurrent connection goroutines from tripping over the write lock.
	// LIKE must be case-sensitive so the compiled prefix predicate agrees
	// with the in-memory matcher.
	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA case_sensitive_like = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	return db, nil
}

// SaveEvent stores the event, applying the kind policy in one transaction:
// replaceable and parameterized-replaceable tombstoning, the insert itself,
// and deletion-event tombstones. A crash can never leave a
// tombstoned-but-not-replaced state.
//
// SQLite serializes writers, so two concurrent saves for the same
// (pubkey, kind[, d]) uniqueness key cannot interleave between the
// tombstone and the insert.
func (s *SQLiteStore) SaveEvent(ctx context.Context, e *relay.Event) error {
	tagsJSON, err := json.Marshal(tagsOrEmpty(e.Tags))
	if err != nil {
		return fmt.Errorf("encoding tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// The supersede updates exclude the incoming id: re-sending an
	// already-stored replaceable event must stay a no-op, not tombstone
	// the row it is about to fail to re-insert.
	if e.IsReplaceable() {
		_, err = tx.ExecContext(ctx,
			"UPDATE events SET deleted = 1 WHERE pubkey = ? AND kind = ? AND deleted = 0 AND id != ?",
			e.Pubkey, e.Kind, e.ID)
		if err != nil {
			return fmt.Errorf("superseding replaceable rows: %w", err)
		}
	}

	if e.IsParamReplaceable() {
		_, err = tx.ExecContext(ctx,
			"UPDATE events SET deleted = 1 WHERE pubkey = ? AND kind = ? AND d_tag = ? AND deleted = 0 AND id != ?",
			e.Pubkey, e.Kind, e.DTag(), e.ID)
		if err != nil {
			return fmt.Errorf("superseding parameterized rows: %w", err)
		}
	}

	dTag := e.DTag()
	var expiresAt any
	if exp := e.ExpiresAt(); exp > 0 {
		expiresAt = exp
	}

	// INSERT OR IGNORE makes re-sending an already-stored id a no-op
	// instead of a constraint error.
	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (id, kind, pubkey, created_at, content, tags, d_tag, expires_at, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		e.ID, e.Kind, e.Pubkey, e.CreatedAt, e.Content, string(tagsJSON), dTag, expiresAt)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking insert result: %w", err)
	}
	if inserted > 0 {
		for _, t := range e.Tags {
			if len(t) < 2 {
				continue
			}
			_, err = tx.ExecContext(ctx,
				"INSERT INTO event_tags (event_id, name, value) VALUES (?, ?, ?)",
				e.ID, t[0], t[1])
			if err != nil {
				return fmt.Errorf("inserting tag row: %w", err)
			}
		}
	}

	if e.Kind == relay.KindDeletion {
		targets := e.TagValues("e")
		if len(targets) > 0 {
			args := make([]any, 0, len(targets)+1)
			for _, id := range targets {
				args = append(args, id)
			}
			args = append(args, e.Pubkey)
			_, err = tx.ExecContext(ctx,
				"UPDATE events SET deleted = 1 WHERE id IN ("+placeholders(len(targets))+") AND pubkey = ?",
				args...)
			if err != nil {
				return fmt.Errorf("tombstoning referenced events: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// QueryByFilter returns matching events ordered by created_at descending,
// id as tiebreak, capped at min(filter limit, hard cap).
func (s *SQLiteStore) QueryByFilter(ctx context.Context, f relay.Filter) ([]*relay.Event, error) {
	where, args := filterSQL(f, s.clock.Now().Unix())
	args = append(args, queryLimit(f))

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, pubkey, created_at, content, tags FROM events
		 WHERE `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*relay.Event
	for rows.Next() {
		var e relay.Event
		var tagsJSON string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Pubkey, &e.CreatedAt, &e.Content, &tagsJSON); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags for %s: %w", e.ID, err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

// CountByFilter returns the number of matching events.
func (s *SQLiteStore) CountByFilter(ctx context.Context, f relay.Filter) (int64, error) {
	where, args := filterSQL(f, s.clock.Now().Unix())
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// Tombstone marks a single event deleted by id.
func (s *SQLiteStore) Tombstone(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE events SET deleted = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("tombstoning event: %w", err)
	}
	return nil
}

// TombstoneReferenced marks every listed id deleted, scoped to rows authored
// by the given pubkey so a deletion event cannot remove someone else's events.
func (s *SQLiteStore) TombstoneReferenced(ctx context.Context, ids []string, pubkey string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, pubkey)
	_, err := s.db.ExecContext(ctx,
		"UPDATE events SET deleted = 1 WHERE id IN ("+placeholders(len(ids))+") AND pubkey = ?",
		args...)
	if err != nil {
		return fmt.Errorf("tombstoning referenced events: %w", err)
	}
	return nil
}

// SweepExpired physically removes rows whose expiration passed and
// tombstoned rows older than the retention cutoff. Tag rows follow through
// the foreign key cascade.
func (s *SQLiteStore) SweepExpired(ctx context.Context, now int64, tombstoneCutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events
		 WHERE (expires_at IS NOT NULL AND expires_at <= ?)
		    OR (deleted = 1 AND created_at < ?)`,
		now, tombstoneCutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting swept rows: %w", err)
	}
	return n, nil
}

// Ping verifies the backend is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func tagsOrEmpty(tags [][]string) [][]string {
	if tags == nil {
		return [][]string{}
	}
	return tags
}

// Compile-time check that SQLiteStore implements relay.EventStore
var _ relay.EventStore = (*SQLiteStore)(nil)

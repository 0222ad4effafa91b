package testutil

import (
	"testing"

	"nrelay/internal/database"
	"nrelay/internal/relay"
)

// NewTestStore creates a new in-memory SQLite event store with schema
// applied. The store is automatically closed when the test completes.
func NewTestStore(t *testing.T, clock relay.Clock) *database.SQLiteStore {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	// Every pooled connection to :memory: would get its own database.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(sqlDB, clock)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

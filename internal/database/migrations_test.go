package database

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	err := MigrateUp(db)
	if err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Verify tables were created
	tables := []string{"events", "event_tags", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Fresh database should need migration
	err := CheckDBMigrationStatus(db)
	if err == nil {
		t.Error("CheckDBMigrationStatus() expected error for fresh database, got nil")
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}

	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after double migration returned error: %v", err)
	}
}

func TestMigratedSchema_ForeignKeyCascade(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	// Tag rows must only reference existing events.
	_, err := db.Exec("INSERT INTO event_tags (event_id, name, value) VALUES ('ghost', 'e', 'x')")
	if err == nil {
		t.Error("Expected foreign key constraint violation, but insert succeeded")
	}

	if _, err := db.Exec(
		"INSERT INTO events (id, kind, pubkey, created_at, content, tags) VALUES ('ev1', 1, 'pk', 100, '', '[]')"); err != nil {
		t.Fatalf("Failed to insert event: %v", err)
	}
	if _, err := db.Exec(
		"INSERT INTO event_tags (event_id, name, value) VALUES ('ev1', 'e', 'x')"); err != nil {
		t.Fatalf("Failed to insert tag: %v", err)
	}

	// Deleting the event removes its tag rows.
	if _, err := db.Exec("DELETE FROM events WHERE id = 'ev1'"); err != nil {
		t.Fatalf("Failed to delete event: %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM event_tags WHERE event_id = 'ev1'").Scan(&n); err != nil {
		t.Fatalf("Failed to count tags: %v", err)
	}
	if n != 0 {
		t.Errorf("tag rows remaining after cascade = %d, want 0", n)
	}
}

func TestMigratedSchema_MatchesSchemaConstant(t *testing.T) {
	migrated := openTestDB(t)
	defer migrated.Close()
	if err := MigrateUp(migrated); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	direct := openTestDB(t)
	defer direct.Close()
	if _, err := direct.Exec(Schema); err != nil {
		t.Fatalf("applying Schema constant failed: %v", err)
	}

	// Both paths must produce the same tables and indexes.
	names := func(db *sql.DB) map[string]bool {
		rows, err := db.Query(
			"SELECT name FROM sqlite_master WHERE type IN ('table','index') AND name NOT LIKE 'sqlite_%' AND name NOT LIKE 'schema_migrations%'")
		if err != nil {
			t.Fatalf("querying sqlite_master: %v", err)
		}
		defer rows.Close()
		out := make(map[string]bool)
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				t.Fatalf("scanning name: %v", err)
			}
			out[n] = true
		}
		return out
	}

	fromMigrations := names(migrated)
	fromConstant := names(direct)

	for n := range fromMigrations {
		if !fromConstant[n] {
			t.Errorf("object %s produced by migrations but missing from Schema constant", n)
		}
	}
	for n := range fromConstant {
		if !fromMigrations[n] {
			t.Errorf("object %s in Schema constant but not produced by migrations", n)
		}
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	return db
}

package database

import (
	"fmt"
	"os"
	"path/filepath"

	"nrelay/internal/config"
	"nrelay/internal/relay"
)

// NewStoreFromConfig creates an EventStore implementation based on the database config type.
func NewStoreFromConfig(cfg config.DatabaseConfig, clock relay.Clock) (relay.EventStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dbPath := filepath.Join(cfg.DataDir, "events.db")
		return NewSQLiteStore(dbPath, clock)
	case "memory":
		store, err := NewSQLiteStore(":memory:", clock)
		if err != nil {
			return nil, err
		}
		// Every pooled connection to :memory: would get its own database.
		store.db.SetMaxOpenConns(1)
		// In-memory databases start empty every run, so migrate up front.
		if err := MigrateUp(store.db); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrating in-memory database: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

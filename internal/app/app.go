// Package app is the application layer between the CLI and the relay: it
// constructs every dependency from config and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"nrelay/internal/blob"
	"nrelay/internal/bus"
	"nrelay/internal/config"
	"nrelay/internal/database"
	"nrelay/internal/httpapi"
	"nrelay/internal/relay"
	"nrelay/internal/sweeper"
	"nrelay/internal/ws"
)

// RelayApp is a fully wired relay instance. The caller must call Close when
// done.
type RelayApp struct {
	cfg      *config.Config
	store    relay.EventStore
	eventBus relay.Bus
	blobs    relay.BlobStore
	registry *relay.Registry
	ingestor *relay.Ingestor
	httpSrv  *http.Server
	sweeper  *sweeper.Sweeper
	logger   relay.Logger
	logFile  *os.File
}

// NewRelayApp creates a relay instance from the given config.
func NewRelayApp(ctx context.Context, cfg *config.Config, version string) (*RelayApp, error) {
	instanceID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, instanceID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	clock := relay.RealClock{}

	store, err := database.NewStoreFromConfig(cfg.Database, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating event store: %w", err)
	}

	if checker, ok := store.(interface{ CheckMigrations() error }); ok {
		if err := checker.CheckMigrations(); err != nil {
			store.Close()
			logFile.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	eventBus, err := bus.NewBusFromConfig(cfg.Bus, logger)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	blobs, err := blob.NewStoreFromConfig(ctx, cfg.Blob)
	if err != nil {
		eventBus.Close()
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	if err := blobs.ValidateSetup(ctx); err != nil {
		eventBus.Close()
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("validating blob store: %w", err)
	}

	validator := relay.NewValidator(clock)
	moderator := relay.NewModerator(cfg.Relay.Moderation.Enabled, cfg.Relay.Moderation.Keywords, cfg.Relay.Moderation.BannedPubkeys)
	ingestor := relay.NewIngestor(store, eventBus, validator, moderator, clock, logger)

	registry := relay.NewRegistry(logger)
	if err := eventBus.Subscribe(registry.Dispatch); err != nil {
		eventBus.Close()
		store.Close()
		logFile.Close()
		return nil, fmt.Errorf("subscribing to event bus: %w", err)
	}

	wsServer := ws.NewServer(ingestor, store, registry, validator, clock, relay.UUIDGenerator{}, logger, ws.SessionConfig{
		AuthRequired:   cfg.Relay.AuthRequired,
		MaxContentSize: cfg.Relay.MaxContentSize,
		MaxFilters:     cfg.Relay.MaxFilters,
		MaxLimit:       cfg.Relay.MaxLimit,
		MessageRate:    20,
		MessageBurst:   100,
	})

	api := httpapi.NewServer(wsServer, store, blobs, cfg, version, logger)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sw := sweeper.New(store, clock, logger,
		time.Duration(cfg.Sweep.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Sweep.RetentionDays)*24*time.Hour)

	return &RelayApp{
		cfg:      cfg,
		store:    store,
		eventBus: eventBus,
		blobs:    blobs,
		registry: registry,
		ingestor: ingestor,
		httpSrv:  httpSrv,
		sweeper:  sw,
		logger:   logger,
		logFile:  logFile,
	}, nil
}

// Run serves until ctx is cancelled, then shuts the listener down
// gracefully.
func (a *RelayApp) Run(ctx context.Context) error {
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go a.sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("relay listening", "addr", a.cfg.ListenAddr)
		errCh <- a.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	}
}

// Sweep performs a single retention pass, for the sweep CLI command.
func (a *RelayApp) Sweep(ctx context.Context) (int64, error) {
	return a.sweeper.Sweep(ctx)
}

// Close releases every resource the app holds.
func (a *RelayApp) Close() error {
	var firstErr error

	if err := a.eventBus.Close(); err != nil {
		firstErr = fmt.Errorf("closing event bus: %w", err)
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing event store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// Migrate brings the configured database up to the latest schema version.
func Migrate(cfg *config.Config) error {
	if cfg.Database.Type != "sqlite" {
		return fmt.Errorf("migrate requires a sqlite database, got %q", cfg.Database.Type)
	}
	if cfg.Database.DataDir == "" {
		return fmt.Errorf("data_dir required for sqlite database")
	}
	if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Database.DataDir, "events.db")
	db, err := database.OpenConnection(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := database.MigrateUp(db); err != nil {
		return fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return nil
}

// Package sweeper runs the periodic retention pass that physically removes
// expired events and long-dead tombstones. It is the only code path that
// deletes rows; everything else tombstones.
package sweeper

import (
	"context"
	"time"

	"nrelay/internal/relay"
)

// Sweeper periodically purges expired events and aged-out tombstones.
type Sweeper struct {
	store     relay.EventStore
	clock     relay.Clock
	logger    relay.Logger
	interval  time.Duration
	retention time.Duration
}

// New creates a Sweeper. retention is how long tombstoned rows are kept
// before physical removal.
func New(store relay.EventStore, clock relay.Clock, logger relay.Logger, interval, retention time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		clock:     clock,
		logger:    logger,
		interval:  interval,
		retention: retention,
	}
}

// Run sweeps once immediately, then on every interval tick until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs one retention pass and returns the number of rows removed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.retention)

	removed, err := s.store.SweepExpired(ctx, now.Unix(), cutoff.Unix())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("retention sweep removed rows", "count", removed)
	} else {
		s.logger.Debug("retention sweep found nothing to remove")
	}
	return removed, nil
}

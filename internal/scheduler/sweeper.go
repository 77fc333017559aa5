// Package scheduler runs the background maintenance jobs for the TripWise
// platform. The only job today is the pending-signup sweeper: unconfirmed
// signups hold an email claim, and the sweeper releases claims whose
// confirmation window has lapsed.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"tripwise/internal/types"
)

// PendingPurger removes pending signups older than the given TTL and
// reports how many were purged.
type PendingPurger interface {
	PurgeExpiredPending(ctx context.Context, ttl time.Duration) (int, error)
}

// sweepTimeout bounds a single sweep run. The purge walks one flat file, so
// anything slower than this indicates a stuck store.
const sweepTimeout = 30 * time.Second

// Sweeper periodically purges expired pending signups on a cron schedule.
type Sweeper struct {
	purger   PendingPurger
	ttl      time.Duration
	schedule string
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewSweeper creates a Sweeper. schedule is a standard 5-field cron
// expression; ttl is the confirmation window after which a pending signup
// is considered abandoned.
func NewSweeper(purger PendingPurger, schedule string, ttl time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if purger == nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid, "sweeper requires a purger", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sweeper{
		purger:   purger,
		ttl:      ttl,
		schedule: schedule,
		logger:   logger,
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, s.runOnce); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigInvalid,
			"invalid sweep schedule "+schedule, err)
	}
	s.cron = c
	return s, nil
}

// Start begins scheduled execution in a background goroutine.
func (s *Sweeper) Start() {
	s.logger.Info("pending signup sweeper started",
		"schedule", s.schedule,
		"ttl", s.ttl.String())
	s.cron.Start()
}

// Stop halts the schedule and waits for any in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("pending signup sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runOnce is the cron entry point.
func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if err := s.Sweep(ctx); err != nil {
		s.logger.Error("pending signup sweep failed", "error", err)
	}
}

// Sweep performs a single purge pass. Exposed so operators can trigger a
// sweep outside the schedule.
func (s *Sweeper) Sweep(ctx context.Context) error {
	start := time.Now()
	purged, err := s.purger.PurgeExpiredPending(ctx, s.ttl)
	if err != nil {
		return err
	}

	if purged > 0 {
		s.logger.Info("purged expired pending signups",
			"purged", purged,
			"duration_ms", time.Since(start).Milliseconds())
	} else {
		s.logger.Debug("no expired pending signups",
			"duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}

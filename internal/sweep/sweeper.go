package sweep

import (
	"context"
	"log/slog"
	"time"
)

// JobCleaner prunes old terminal jobs.
type JobCleaner interface {
	CleanupOld() (int, error)
}

// PendingPruner drops expired pending confirmations.
type PendingPruner interface {
	PruneExpired() (int, error)
}

// Sweeper periodically prunes expired pending confirmations and old terminal
// jobs. It is the only timer in the system; everything else observes time
// lazily.
type Sweeper struct {
	jobs    JobCleaner
	pending PendingPruner
	poll    time.Duration
	logger  *slog.Logger
}

// New creates a Sweeper. If pollInterval is <= 0, it defaults to 30s.
func New(jobs JobCleaner, pending PendingPruner, pollInterval time.Duration) *Sweeper {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Sweeper{
		jobs:    jobs,
		pending: pending,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

// Run sweeps on an interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs a single sweep pass. Errors are logged, never fatal: a
// failed sweep just waits for the next tick.
func (s *Sweeper) RunOnce() {
	if n, err := s.pending.PruneExpired(); err != nil {
		s.logger.Error("pruning expired pending confirmations failed", "error", err)
	} else if n > 0 {
		s.logger.Debug("pruned expired pending confirmations", "count", n)
	}

	if n, err := s.jobs.CleanupOld(); err != nil {
		s.logger.Error("cleaning up old jobs failed", "error", err)
	} else if n > 0 {
		s.logger.Debug("cleaned up old jobs", "count", n)
	}
}

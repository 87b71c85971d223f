// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Job is the single unit of work a Scheduler runs.
type Job func(ctx context.Context)

// Scheduler owns the periodic fetch-and-purge job. It is an explicit
// process-owned service: Run starts it, cancelling the context stops it.
type Scheduler struct {
	interval time.Duration
	job      Job
	logger   *slog.Logger
}

// New creates a Scheduler with one registered job.
func New(interval time.Duration, job Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		job:      job,
		logger:   logger,
	}
}

// Run fires the job immediately, then on every interval tick, until ctx is
// cancelled. It blocks for the lifetime of the scheduler.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Starting scheduler", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.job(ctx) // Initial run

	for {
		select {
		case <-ticker.C:
			s.job(ctx)
		case <-ctx.Done():
			s.logger.Info("Scheduler shutting down", "reason", ctx.Err())
			return
		}
	}
}

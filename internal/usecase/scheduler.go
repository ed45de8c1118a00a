package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NoteSalesTracker/internal/logging"
	"NoteSalesTracker/internal/ports"
)

// Schedules holds the cron specs of the recurring jobs; an empty spec
// disables its job.
type Schedules struct {
	Reconcile string
	Expire    string
	Poll      string
}

// SchedulerDeps wires the recurring jobs.
type SchedulerDeps struct {
	Driver    ports.Scheduler
	Pipeline  *Pipeline
	Ingestor  *Ingestor
	Poller    *Poller
	Schedules Schedules
	Clock     ports.Clock
	Logger    *slog.Logger
}

// Scheduler wires the cron driver with the use cases.
type Scheduler struct {
	driver    ports.Scheduler
	pipeline  *Pipeline
	ingestor  *Ingestor
	poller    *Poller
	schedules Schedules
	now       ports.Clock
	logger    *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Scheduler{
		driver:    deps.Driver,
		pipeline:  deps.Pipeline,
		ingestor:  deps.Ingestor,
		poller:    deps.Poller,
		schedules: deps.Schedules,
		now:       deps.Clock,
		logger:    deps.Logger,
	}
}

// Start registers the jobs with the provided scheduler and starts it. Job
// failures are logged; the next tick runs regardless.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	if s.pipeline != nil && s.schedules.Reconcile != "" {
		if err := s.driver.Add(s.schedules.Reconcile, func(jobCtx context.Context) {
			if _, err := s.pipeline.Reconcile(jobCtx, s.now()); err != nil {
				s.logger.Error("scheduled reconcile failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule reconcile: %w", err)
		}
	}

	if s.ingestor != nil && s.schedules.Expire != "" {
		if err := s.driver.Add(s.schedules.Expire, func(jobCtx context.Context) {
			if _, err := s.ingestor.ExpireTracking(jobCtx); err != nil {
				s.logger.Error("scheduled expiry failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule expiry: %w", err)
		}
	}

	if s.poller != nil && s.schedules.Poll != "" {
		if err := s.driver.Add(s.schedules.Poll, func(jobCtx context.Context) {
			if _, err := s.poller.Poll(jobCtx); err != nil {
				s.logger.Error("scheduled poll failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("schedule poll: %w", err)
		}
	}

	return s.driver.Start(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

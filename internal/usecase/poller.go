package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"NoteSalesTracker/internal/logging"
	"NoteSalesTracker/internal/ports"
	"NoteSalesTracker/internal/tracking"
)

// PollerDeps wires the tracking poller.
type PollerDeps struct {
	Ingestor *Ingestor
	Checker  ports.PurchaseChecker
	MinDelay time.Duration
	MaxDelay time.Duration
	// Sleep waits between page checks; tests replace it.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// PollReport summarizes one polling round.
type PollReport struct {
	Checked   int
	Hits      int
	Failed    int
	Updated   int
	Completed int
}

// Poller checks every Active tracking item once and submits the results.
type Poller struct {
	ingestor *Ingestor
	checker  ports.PurchaseChecker
	minDelay time.Duration
	maxDelay time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewPoller constructs the polling use case.
func NewPoller(deps PollerDeps) *Poller {
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.MaxDelay < deps.MinDelay {
		deps.MaxDelay = deps.MinDelay
	}
	return &Poller{
		ingestor: deps.Ingestor,
		checker:  deps.Checker,
		minDelay: deps.MinDelay,
		maxDelay: deps.MaxDelay,
		sleep:    deps.Sleep,
		logger:   deps.Logger,
	}
}

// Poll runs one round. Pages that fail to load are left out of the results
// so their items stay untouched.
func (p *Poller) Poll(ctx context.Context) (PollReport, error) {
	items, err := p.ingestor.TrackingList(ctx)
	if err != nil {
		return PollReport{}, err
	}
	if len(items) == 0 {
		p.logger.Info("no active tracking items")
		return PollReport{}, nil
	}

	var report PollReport
	results := make(map[string]bool, len(items))
	for idx, item := range items {
		purchased, err := p.checker.CheckPurchased(ctx, item.URL)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			p.logger.Warn("purchase check failed", "url", item.URL, "error", err)
		} else {
			report.Checked++
			if purchased {
				report.Hits++
			}
			results[item.URL] = purchased
			p.logger.Debug("purchase checked", "url", item.URL, "purchased", purchased)
		}

		if idx < len(items)-1 {
			if err := p.sleep(ctx, p.delay()); err != nil {
				return report, err
			}
		}
	}

	if len(results) == 0 {
		return report, nil
	}
	update, err := p.ingestor.UpdateTracking(ctx, results)
	if err != nil && !errors.Is(err, tracking.ErrNoTrackingData) {
		return report, err
	}
	report.Updated = update.Updated
	report.Completed = update.Completed
	p.logger.Info("poll finished",
		"checked", report.Checked,
		"hits", report.Hits,
		"failed", report.Failed,
		"completed", report.Completed,
	)
	return report, nil
}

func (p *Poller) delay() time.Duration {
	spread := p.maxDelay - p.minDelay
	if spread <= 0 {
		return p.minDelay
	}
	return p.minDelay + rand.N(spread)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

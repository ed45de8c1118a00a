package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"NoteSalesTracker/internal/ports"
)

// CronScheduler runs jobs on six-field cron specs (seconds first) in a
// fixed timezone. A job never overlaps with its own previous run.
type CronScheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	started bool
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler evaluating specs in loc.
func NewCronScheduler(loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	c := &CronScheduler{logger: logger, baseCtx: context.Background()}
	adapter := cronLogger{logger: logger}
	c.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	return c
}

// Add registers job under spec. Jobs receive the context given to Start.
func (c *CronScheduler) Add(spec string, job func(context.Context)) error {
	_, err := c.cron.AddFunc(spec, func() {
		job(c.context())
	})
	return err
}

// Start begins firing jobs until ctx is done or Stop is called.
func (c *CronScheduler) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.baseCtx = ctx
	c.started = true
	c.cron.Start()
	c.info("cron started", "entries", len(c.cron.Entries()))
	return nil
}

// Stop halts the scheduler and waits for running jobs or ctx, whichever ends first.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.mu.Unlock()

	done := c.cron.Stop()
	select {
	case <-done.Done():
		c.info("cron stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronScheduler) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseCtx
}

func (c *CronScheduler) info(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Debug(msg, keysAndValues...)
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	if l.logger != nil {
		l.logger.Error(msg, append(keysAndValues, "error", err)...)
	}
}

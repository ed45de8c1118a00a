package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"NoteSalesTracker/internal/classify"
	"NoteSalesTracker/internal/config"
	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/infrastructure/httpapi"
	"NoteSalesTracker/internal/infrastructure/parser"
	"NoteSalesTracker/internal/infrastructure/scheduler"
	"NoteSalesTracker/internal/infrastructure/slack"
	"NoteSalesTracker/internal/infrastructure/storage"
	"NoteSalesTracker/internal/infrastructure/telegram"
	"NoteSalesTracker/internal/logging"
	"NoteSalesTracker/internal/ports"
	"NoteSalesTracker/internal/reconcile"
	"NoteSalesTracker/internal/tracking"
	"NoteSalesTracker/internal/upsert"
	"NoteSalesTracker/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     ports.TableStore
	closeFn   func() error
	source    ports.TableRef
	pipeline  *usecase.Pipeline
	ingestor  *usecase.Ingestor
	poller    *usecase.Poller
	scheduler *usecase.Scheduler
	// writers serializes every read-modify-write of the tables.
	writers *sync.Mutex
}

// New builds the application from configuration.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	loc := cfg.Scheduler.Location()

	store, closeFn, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	source := ports.TableRef{Workbook: cfg.Source.WorkbookID, Table: cfg.Source.Table}
	trackingRef := ports.TableRef{Workbook: cfg.Tracking.WorkbookID, Table: cfg.Tracking.Table}
	if p, ok := store.(ports.WorkbookProvisioner); ok {
		workbooks := []struct{ id, title string }{
			{source.Workbook, source.Workbook},
			{trackingRef.Workbook, trackingRef.Workbook},
			{cfg.Target.WorkbookID, cfg.Target.Title},
		}
		for _, wb := range workbooks {
			if wb.id == "" {
				continue
			}
			if err := p.EnsureWorkbook(ctx, wb.id, wb.title); err != nil {
				_ = closeFn()
				return nil, fmt.Errorf("provision workbook %s: %w", wb.id, err)
			}
		}
	}

	classifier, err := classify.New(cfg.RuleTable())
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	writers := &sync.Mutex{}
	reconciler := reconcile.NewEngine(loc, baseLogger.With("component", "reconcile"))
	machine := tracking.NewMachine(store, trackingRef, tracking.Options{
		TrackingDays: cfg.Tracking.Days,
		Location:     loc,
		Logger:       baseLogger.With("component", "tracking"),
	})

	ingestor := usecase.NewIngestor(usecase.IngestDeps{
		Store:          store,
		Source:         source,
		Tracker:        machine,
		Reconciler:     reconciler,
		ExcludeAuthors: cfg.ExcludeAuthors,
		Location:       loc,
		Logger:         baseLogger.With("component", "ingest"),
		Lock:           writers,
	})

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Store:      store,
		Reconciler: reconciler,
		Classifier: classifier,
		Upserter:   upsert.NewEngine(store, loc, baseLogger.With("component", "upsert")),
		Notifier:   buildNotifiers(cfg.Notifications, baseLogger),
		Source:     source,
		Target: usecase.TargetSettings{
			WorkbookID:       cfg.Target.WorkbookID,
			Title:            cfg.Target.Title,
			NewArrivalsTable: cfg.Target.NewArrivalsTable,
		},
		Location: loc,
		Logger:   baseLogger.With("component", "pipeline"),
		Lock:     writers,
	})

	checker := parser.NewPurchaseChecker(
		&http.Client{Timeout: cfg.Poller.Timeout},
		cfg.Poller.Selector,
		cfg.Poller.UserAgent,
	)
	poller := usecase.NewPoller(usecase.PollerDeps{
		Ingestor: ingestor,
		Checker:  checker,
		MinDelay: cfg.Poller.MinDelay,
		MaxDelay: cfg.Poller.MaxDelay,
		Logger:   baseLogger.With("component", "poller"),
	})

	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		Driver:   scheduler.NewCronScheduler(loc, baseLogger.With("component", "cron")),
		Pipeline: pipeline,
		Ingestor: ingestor,
		Poller:   poller,
		Schedules: usecase.Schedules{
			Reconcile: cfg.Scheduler.ReconcileCron,
			Expire:    cfg.Scheduler.ExpireCron,
			Poll:      cfg.Scheduler.PollCron,
		},
		Logger: baseLogger.With("component", "scheduler"),
	})

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		closeFn:   closeFn,
		source:    source,
		pipeline:  pipeline,
		ingestor:  ingestor,
		poller:    poller,
		scheduler: sched,
		writers:   writers,
	}, nil
}

// Serve runs the HTTP receiver and the scheduled jobs until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.scheduler.Stop(stopCtx); err != nil {
			a.logger.Warn("scheduler stop", "error", err)
		}
	}()

	router := httpapi.NewRouter(httpapi.Deps{
		Ingestor: a.ingestor,
		Pipeline: a.pipeline,
		Store:    a.store,
		Source:   a.source,
		Location: a.cfg.Scheduler.Location(),
		Logger:   a.logger.With("component", "http"),
	})
	return httpapi.NewServer(a.cfg.HTTP.Addr, router, a.logger).Run(ctx)
}

// Reconcile performs a single reconciliation pass.
func (a *Application) Reconcile(ctx context.Context) (usecase.Summary, error) {
	return a.pipeline.Reconcile(ctx, time.Now().In(a.cfg.Scheduler.Location()))
}

// Clean merges duplicate observations in the source table.
func (a *Application) Clean(ctx context.Context) (reconcile.Result, error) {
	return a.ingestor.Clean(ctx)
}

// Expire completes tracking items whose window has ended.
func (a *Application) Expire(ctx context.Context) (int, error) {
	return a.ingestor.ExpireTracking(ctx)
}

// Poll checks every active tracking item once.
func (a *Application) Poll(ctx context.Context) (usecase.PollReport, error) {
	return a.poller.Poll(ctx)
}

// Stats summarizes the source table.
func (a *Application) Stats(ctx context.Context) (usecase.StatsReport, error) {
	a.writers.Lock()
	defer a.writers.Unlock()

	if _, err := a.store.EnsureTable(ctx, a.source, domain.SourceHeaders); err != nil {
		return usecase.StatsReport{}, fmt.Errorf("ensure source table: %w", err)
	}
	return usecase.Stats(ctx, a.store, a.source)
}

// Close releases the store.
func (a *Application) Close() error {
	if a.closeFn == nil {
		return nil
	}
	return a.closeFn()
}

func openStore(cfg config.StorageConfig) (ports.TableStore, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "memory":
		return storage.NewMemoryStore(), func() error { return nil }, nil
	case "", "sqlite", "sqlite3":
		store, err := storage.NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func buildNotifiers(cfg config.NotificationConfig, logger *slog.Logger) ports.Notifier {
	var out usecase.Notifiers
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		out = append(out, telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	if cfg.Slack.WebhookURL != "" {
		out = append(out, slack.NewNotifier(cfg.Slack.WebhookURL, nil))
	}
	if len(out) == 0 {
		logger.Info("no notification channel configured")
		return nil
	}
	return out
}

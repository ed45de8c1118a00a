package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"NoteSalesTracker/internal/classify"
	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/logging"
	"NoteSalesTracker/internal/ports"
	"NoteSalesTracker/internal/reconcile"
	"NoteSalesTracker/internal/upsert"
)

// TargetSettings locates the classified output workbook.
type TargetSettings struct {
	WorkbookID       string
	Title            string
	NewArrivalsTable string
}

// PipelineDeps wires all driven adapters into the reconciliation pass.
type PipelineDeps struct {
	Store      ports.TableStore
	Reconciler *reconcile.Engine
	Classifier *classify.Classifier
	Upserter   *upsert.Engine
	Notifier   ports.Notifier
	Source     ports.TableRef
	Target     TargetSettings
	Location   *time.Location
	Logger     *slog.Logger
	// Lock serializes table writers; share it with the Ingestor.
	Lock *sync.Mutex
}

// Summary describes one reconciliation pass.
type Summary struct {
	RunID          string
	TargetWorkbook string
	// TargetCreated is set when the configured workbook no longer resolved
	// and a fresh one was created; the operator must record its ID.
	TargetCreated bool
	Removed       int
	Remaining     int
	Processed     int
	NewArrivals   int
	Categories    []CategoryCount
	Reports       []upsert.Report
}

// Pipeline implements the periodic reconciliation pass.
type Pipeline struct {
	store      ports.TableStore
	reconciler *reconcile.Engine
	classifier *classify.Classifier
	upserter   *upsert.Engine
	notifier   ports.Notifier
	source     ports.TableRef
	target     TargetSettings
	location   *time.Location
	logger     *slog.Logger
	pass       *sync.Mutex

	mu       sync.Mutex
	targetID string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	if deps.Lock == nil {
		deps.Lock = &sync.Mutex{}
	}
	if deps.Target.NewArrivalsTable == "" {
		deps.Target.NewArrivalsTable = "New Arrivals"
	}
	return &Pipeline{
		store:      deps.Store,
		reconciler: deps.Reconciler,
		classifier: deps.Classifier,
		upserter:   deps.Upserter,
		notifier:   deps.Notifier,
		source:     deps.Source,
		target:     deps.Target,
		location:   loc,
		logger:     deps.Logger,
		pass:       deps.Lock,
		targetID:   deps.Target.WorkbookID,
	}
}

// TargetWorkbook returns the workbook currently receiving category tables.
func (p *Pipeline) TargetWorkbook() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.targetID
}

// Reconcile runs one pass: clean the source, classify unprocessed valuable
// records into category tables, then mark them processed. Failures are
// reported through the notifier and returned.
func (p *Pipeline) Reconcile(ctx context.Context, now time.Time) (Summary, error) {
	summary := Summary{RunID: uuid.NewString()}
	logger := p.log().With("run_id", summary.RunID)
	logger.Info("reconcile pass started")

	p.pass.Lock()
	err := p.reconcile(ctx, now, logger, &summary)
	p.pass.Unlock()
	if err != nil {
		logger.Error("reconcile pass failed", "error", err)
		p.notify(ctx, ports.LevelError, errorMessage(now.In(p.location), err))
		return summary, err
	}

	if summary.Processed == 0 {
		p.notify(ctx, ports.LevelInfo, noDataMessage(now.In(p.location), summary))
	} else {
		p.notify(ctx, ports.LevelSuccess, completeMessage(now.In(p.location), summary))
	}
	logger.Info("reconcile pass finished",
		"processed", summary.Processed,
		"removed", summary.Removed,
		"new_arrivals", summary.NewArrivals,
	)
	return summary, nil
}

func (p *Pipeline) reconcile(ctx context.Context, now time.Time, logger *slog.Logger, summary *Summary) error {
	if _, err := p.store.EnsureTable(ctx, p.source, domain.SourceHeaders); err != nil {
		return fmt.Errorf("ensure source table: %w", err)
	}

	cleaned, err := p.reconciler.CleanTable(ctx, p.store, p.source)
	if err != nil {
		return fmt.Errorf("clean source table: %w", err)
	}
	summary.Removed = cleaned.Removed
	summary.Remaining = cleaned.Remaining()
	logger.Info("source cleaned", "removed", cleaned.Removed, "remaining", cleaned.Remaining())

	targetID, created, err := p.resolveTarget(ctx, logger)
	if err != nil {
		return err
	}
	summary.TargetWorkbook = targetID
	summary.TargetCreated = created

	records, err := p.readSource(ctx)
	if err != nil {
		return err
	}
	pending := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r.Valuable() && !r.Processed() {
			pending = append(pending, r)
		}
	}
	logger.Info("pending records selected", "count", len(pending))

	if len(pending) == 0 {
		return nil
	}

	arrivals := ports.TableRef{Workbook: targetID, Table: p.target.NewArrivalsTable}
	summary.NewArrivals, err = p.upserter.ReplaceNewArrivals(ctx, arrivals, pending, now)
	if err != nil {
		return fmt.Errorf("replace new arrivals: %w", err)
	}

	partitions := p.classifier.Partition(pending)
	for _, category := range p.classifier.Order() {
		batch := partitions[category]
		summary.Categories = append(summary.Categories, CategoryCount{Category: category, Count: len(batch)})
		if len(batch) == 0 {
			continue
		}

		rows := make([][]any, len(batch))
		for i, r := range batch {
			rows[i] = r.OutputCells()
		}
		report, err := p.upserter.Upsert(ctx, ports.TableRef{Workbook: targetID, Table: category}, rows)
		if err != nil {
			return fmt.Errorf("upsert category %s: %w", category, err)
		}
		summary.Reports = append(summary.Reports, report)
		logger.Debug("category upserted",
			"category", category,
			"inserted", len(report.Inserted),
			"updated", len(report.Updated),
			"unchanged", report.Unchanged,
		)
	}

	if err := p.markProcessed(ctx, pending, now); err != nil {
		return err
	}
	summary.Processed = len(pending)
	return nil
}

// resolveTarget returns the target workbook, creating a fresh one when the
// configured identifier is empty or no longer resolves.
func (p *Pipeline) resolveTarget(ctx context.Context, logger *slog.Logger) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.targetID != "" {
		ok, err := p.store.WorkbookExists(ctx, p.targetID)
		if err != nil {
			return "", false, fmt.Errorf("resolve target workbook: %w", err)
		}
		if ok {
			return p.targetID, false, nil
		}
		logger.Warn("target workbook not found", "workbook", p.targetID)
	}

	id, err := p.store.CreateWorkbook(ctx, p.target.Title)
	if err != nil {
		return "", false, fmt.Errorf("create target workbook: %w", err)
	}
	logger.Warn("created target workbook; set target.workbookId to keep using it", "workbook", id)
	p.targetID = id
	return id, true, nil
}

func (p *Pipeline) readSource(ctx context.Context) ([]domain.Record, error) {
	lastRow, err := p.store.LastRow(ctx, p.source)
	if err != nil {
		return nil, fmt.Errorf("source last row: %w", err)
	}
	if lastRow <= 1 {
		return nil, nil
	}
	data, err := p.store.ReadRegion(ctx, p.source, 2, 1, lastRow-1, domain.SourceColumns)
	if err != nil {
		return nil, fmt.Errorf("read source table: %w", err)
	}
	records := make([]domain.Record, len(data))
	for i, row := range data {
		records[i] = domain.RecordFromCells(row, i+2, p.location)
	}
	return records, nil
}

// markProcessed stamps the processed column of the given rows with one
// column-wide bulk write.
func (p *Pipeline) markProcessed(ctx context.Context, records []domain.Record, now time.Time) error {
	lastRow, err := p.store.LastRow(ctx, p.source)
	if err != nil {
		return fmt.Errorf("source last row: %w", err)
	}
	if lastRow <= 1 {
		return nil
	}

	col := domain.ColProcessedAt + 1
	column, err := p.store.ReadRegion(ctx, p.source, 2, col, lastRow-1, 1)
	if err != nil {
		return fmt.Errorf("read processed column: %w", err)
	}

	stamp := now.In(p.location)
	for _, r := range records {
		idx := r.Row - 2
		if idx >= 0 && idx < len(column) {
			column[idx] = []any{stamp}
		}
	}

	header, err := p.store.ReadRegion(ctx, p.source, 1, col, 1, 1)
	if err != nil {
		return fmt.Errorf("read processed header: %w", err)
	}
	if domain.IsBlank(header[0][0]) {
		if err := p.store.WriteRegion(ctx, p.source, 1, col, [][]any{{domain.SourceHeaders[domain.ColProcessedAt]}}); err != nil {
			return fmt.Errorf("write processed header: %w", err)
		}
	}

	if err := p.store.WriteRegion(ctx, p.source, 2, col, column); err != nil {
		return fmt.Errorf("write processed column: %w", err)
	}
	return nil
}

func (p *Pipeline) notify(ctx context.Context, level ports.Level, message string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, level, message); err != nil {
		p.log().Warn("notification failed", "level", level, "error", err)
	}
}

func (p *Pipeline) log() *slog.Logger {
	if p.logger == nil {
		return logging.Discard()
	}
	return p.logger
}

package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/logging"
	"NoteSalesTracker/internal/ports"
	"NoteSalesTracker/internal/reconcile"
	"NoteSalesTracker/internal/tracking"
)

// ErrMalformedEvent marks inbound payloads that cannot be recorded.
var ErrMalformedEvent = errors.New("malformed event")

// Event is one observation pushed by the scraper.
type Event struct {
	RecordedAt   string `json:"recordedAt"`
	CreatedAt    string `json:"createdAt"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	AuthorURL    string `json:"authorUrl"`
	URL          string `json:"url"`
	Likes        int64  `json:"likes"`
	HighRating   int64  `json:"highRating"`
	Price        int64  `json:"price"`
	Tags         string `json:"tags"`
	SalesClaim   string `json:"salesClaim"`
	Purchased24h bool   `json:"purchased24h"`
}

// DecodeEvent parses a JSON event. Every failure wraps ErrMalformedEvent.
func DecodeEvent(raw []byte) (Event, error) {
	var ev Event
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if strings.TrimSpace(ev.URL) == "" {
		return Event{}, fmt.Errorf("%w: url is required", ErrMalformedEvent)
	}
	return ev, nil
}

// IngestResult reports what Record did with an event.
type IngestResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Skipped       bool   `json:"skipped,omitempty"`
	Author        string `json:"author,omitempty"`
	Row           int    `json:"row,omitempty"`
	IsUpdate      bool   `json:"isUpdate"`
	RecordCount   int    `json:"recordCount"`
	TrackingAdded bool   `json:"trackingAdded"`
}

// IngestDeps wires the receiver side.
type IngestDeps struct {
	Store          ports.TableStore
	Source         ports.TableRef
	Tracker        *tracking.Machine
	Reconciler     *reconcile.Engine
	ExcludeAuthors []string
	Location       *time.Location
	Clock          ports.Clock
	Logger         *slog.Logger
	// Lock serializes table writers; share it with the Pipeline.
	Lock *sync.Mutex
}

// Ingestor appends observations to the source table and feeds the tracker.
type Ingestor struct {
	store      ports.TableStore
	source     ports.TableRef
	tracker    *tracking.Machine
	reconciler *reconcile.Engine
	exclude    []string
	location   *time.Location
	now        ports.Clock
	logger     *slog.Logger
	lock       *sync.Mutex
}

// NewIngestor constructs the receiver use case.
func NewIngestor(deps IngestDeps) *Ingestor {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Lock == nil {
		deps.Lock = &sync.Mutex{}
	}
	exclude := make([]string, 0, len(deps.ExcludeAuthors))
	for _, a := range deps.ExcludeAuthors {
		if a != "" {
			exclude = append(exclude, a)
		}
	}
	return &Ingestor{
		store:      deps.Store,
		source:     deps.Source,
		tracker:    deps.Tracker,
		reconciler: deps.Reconciler,
		exclude:    exclude,
		location:   deps.Location,
		now:        deps.Clock,
		logger:     deps.Logger,
		lock:       deps.Lock,
	}
}

// Record appends ev as a new history row. Repeated URLs are kept as history;
// the result says how many rows the URL now has.
func (i *Ingestor) Record(ctx context.Context, ev Event) (IngestResult, error) {
	if strings.TrimSpace(ev.URL) == "" {
		return IngestResult{}, fmt.Errorf("%w: url is required", ErrMalformedEvent)
	}
	for _, excluded := range i.exclude {
		if strings.Contains(ev.Author, excluded) {
			i.logger.Info("event skipped for excluded author", "author", ev.Author, "url", ev.URL)
			return IngestResult{Success: true, Message: "skipped: excluded author", Skipped: true, Author: ev.Author}, nil
		}
	}

	i.lock.Lock()
	defer i.lock.Unlock()

	if _, err := i.store.EnsureTable(ctx, i.source, domain.SourceHeaders); err != nil {
		return IngestResult{}, fmt.Errorf("ensure source table: %w", err)
	}
	width, err := i.rowWidth(ctx)
	if err != nil {
		return IngestResult{}, err
	}

	record := i.toRecord(ev)
	if err := i.store.AppendRow(ctx, i.source, record.Cells()[:width]); err != nil {
		return IngestResult{}, fmt.Errorf("append observation: %w", err)
	}

	lastRow, err := i.store.LastRow(ctx, i.source)
	if err != nil {
		return IngestResult{}, fmt.Errorf("source last row: %w", err)
	}
	urls, err := i.store.ReadRegion(ctx, i.source, 2, domain.ColURL+1, lastRow-1, 1)
	if err != nil {
		return IngestResult{}, fmt.Errorf("read url column: %w", err)
	}
	count := 0
	for _, cell := range urls {
		if domain.CellString(cell[0]) == record.URL {
			count++
		}
	}

	result := IngestResult{
		Success:     true,
		Message:     "recorded",
		Row:         lastRow,
		IsUpdate:    count > 1,
		RecordCount: count,
	}
	if result.IsUpdate {
		result.Message = fmt.Sprintf("recorded as update (observation %d)", count)
	}

	if record.Purchased24h && i.tracker != nil {
		added, err := i.tracker.Add(ctx, tracking.Candidate{
			URL:    record.URL,
			Title:  record.Title,
			Author: record.Author,
			Price:  record.Price,
		})
		if err != nil {
			return IngestResult{}, fmt.Errorf("start tracking: %w", err)
		}
		result.TrackingAdded = added
	}

	i.logger.Debug("observation recorded", "url", record.URL, "row", lastRow, "count", count, "tracking_added", result.TrackingAdded)
	return result, nil
}

// UpdateTracking applies one polling round of results.
func (i *Ingestor) UpdateTracking(ctx context.Context, results map[string]bool) (tracking.UpdateReport, error) {
	if i.tracker == nil {
		return tracking.UpdateReport{}, tracking.ErrNoTrackingData
	}
	i.lock.Lock()
	defer i.lock.Unlock()

	report, err := i.tracker.UpdateResults(ctx, results)
	if err != nil {
		return tracking.UpdateReport{}, fmt.Errorf("update tracking results: %w", err)
	}
	i.logger.Info("tracking updated", "updated", report.Updated, "completed", report.Completed)
	return report, nil
}

// ExpireTracking completes items whose window is over.
func (i *Ingestor) ExpireTracking(ctx context.Context) (int, error) {
	if i.tracker == nil {
		return 0, nil
	}
	i.lock.Lock()
	defer i.lock.Unlock()

	n, err := i.tracker.ExpireOld(ctx)
	if err != nil {
		return 0, fmt.Errorf("expire tracking: %w", err)
	}
	i.logger.Info("tracking expired", "expired", n)
	return n, nil
}

// TrackingList returns the Active tracking items.
func (i *Ingestor) TrackingList(ctx context.Context) ([]domain.TrackingItem, error) {
	if i.tracker == nil {
		return nil, nil
	}
	i.lock.Lock()
	defer i.lock.Unlock()

	items, err := i.tracker.ActiveItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracking: %w", err)
	}
	return items, nil
}

// Clean runs the duplicate merge over the source table on demand.
func (i *Ingestor) Clean(ctx context.Context) (reconcile.Result, error) {
	i.lock.Lock()
	defer i.lock.Unlock()

	if _, err := i.store.EnsureTable(ctx, i.source, domain.SourceHeaders); err != nil {
		return reconcile.Result{}, fmt.Errorf("ensure source table: %w", err)
	}
	result, err := i.reconciler.CleanTable(ctx, i.store, i.source)
	if err != nil {
		return reconcile.Result{}, fmt.Errorf("clean source table: %w", err)
	}
	i.logger.Info("source cleaned", "removed", result.Removed, "remaining", result.Remaining())
	return result, nil
}

// rowWidth keeps appends inside the header: legacy tables get the raw
// columns only.
func (i *Ingestor) rowWidth(ctx context.Context) (int, error) {
	lastCol, err := i.store.LastColumn(ctx, i.source)
	if err != nil {
		return 0, fmt.Errorf("source last column: %w", err)
	}
	if lastCol < domain.OutputColumns {
		return domain.LegacyColumns, nil
	}
	return domain.SourceColumns, nil
}

func (i *Ingestor) toRecord(ev Event) domain.Record {
	r := domain.Record{
		Title:        ev.Title,
		Author:       ev.Author,
		AuthorURL:    ev.AuthorURL,
		URL:          strings.TrimSpace(ev.URL),
		Likes:        ev.Likes,
		HighRating:   ev.HighRating,
		Price:        ev.Price,
		Tags:         ev.Tags,
		SalesClaim:   ev.SalesClaim,
		Purchased24h: ev.Purchased24h,
	}

	r.RecordedAt = i.now().In(i.location)
	if ev.RecordedAt != "" {
		if t, ok := domain.CellTime(ev.RecordedAt, i.location); ok {
			r.RecordedAt = t.In(i.location)
		} else {
			i.logger.Warn("unparsable recordedAt, using receive time", "value", ev.RecordedAt, "url", r.URL)
		}
	}
	if ev.CreatedAt != "" {
		if t, ok := domain.CellTime(ev.CreatedAt, i.location); ok {
			created := domain.DateOf(t, i.location)
			r.CreatedAt = &created
		} else {
			i.logger.Warn("unparsable createdAt", "value", ev.CreatedAt, "url", r.URL)
		}
	}
	return r
}

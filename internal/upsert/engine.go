// Package upsert merges category batches into destination tables by URL
// without disturbing unrelated rows.
package upsert

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/ports"
)

// Report summarizes one Upsert call.
type Report struct {
	Table     string
	Created   bool
	Inserted  []string
	Updated   []string
	Unchanged int
	Reordered bool
	// Writes counts region writes and appends issued to the store.
	Writes int
}

// Engine owns read-modify-write of destination tables.
type Engine struct {
	store    ports.TableStore
	location *time.Location
	logger   *slog.Logger
}

// NewEngine wires the destination store.
func NewEngine(store ports.TableStore, loc *time.Location, logger *slog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{store: store, location: loc, logger: logger}
}

type tableRow struct {
	cells []any
}

func (r tableRow) url() string {
	return domain.CellString(r.cells[domain.ColURL])
}

func (r tableRow) highRating() int64 {
	return domain.CellInt(r.cells[domain.ColHighRating])
}

// Upsert writes rows (output projections) into ref. Rows whose URL exists are
// rewritten only when a field differs; unknown URLs are appended. The table is
// then ordered by high rating, descending, and restyled.
func (e *Engine) Upsert(ctx context.Context, ref ports.TableRef, rows [][]any) (Report, error) {
	report := Report{Table: ref.Table}

	created, err := e.store.EnsureTable(ctx, ref, domain.OutputHeaders)
	if err != nil {
		return report, fmt.Errorf("ensure table %s: %w", ref.Table, err)
	}
	report.Created = created

	existing, width, err := e.readData(ctx, ref)
	if err != nil {
		return report, err
	}

	index := make(map[string]int, len(existing))
	for i, row := range existing {
		if u := row.url(); u != "" {
			index[u] = i
		}
	}

	for _, in := range rows {
		incoming := fit(in, domain.OutputColumns)
		key := domain.CellString(incoming[domain.ColURL])
		if key == "" {
			continue
		}

		if i, ok := index[key]; ok {
			current := existing[i].cells[:domain.OutputColumns]
			if domain.RowsEqual(current, incoming) {
				report.Unchanged++
				continue
			}
			if err := e.store.WriteRegion(ctx, ref, i+2, 1, [][]any{incoming}); err != nil {
				return report, fmt.Errorf("update %s in %s: %w", key, ref.Table, err)
			}
			copy(existing[i].cells, incoming)
			report.Updated = append(report.Updated, key)
			report.Writes++
			e.debug("row updated", "table", ref.Table, "url", key)
			continue
		}

		if err := e.store.AppendRow(ctx, ref, incoming); err != nil {
			return report, fmt.Errorf("append %s to %s: %w", key, ref.Table, err)
		}
		index[key] = len(existing)
		existing = append(existing, tableRow{cells: fit(incoming, width)})
		report.Inserted = append(report.Inserted, key)
		report.Writes++
		e.debug("row inserted", "table", ref.Table, "url", key)
	}

	reordered, err := e.sortByHighRating(ctx, ref, existing)
	if err != nil {
		return report, err
	}
	if reordered {
		report.Reordered = true
		report.Writes++
	}

	if err := e.style(ctx, ref); err != nil {
		return report, err
	}

	return report, nil
}

// ReplaceNewArrivals rewrites ref with the records observed on today's date,
// highest rating first, and returns how many were written.
func (e *Engine) ReplaceNewArrivals(ctx context.Context, ref ports.TableRef, records []domain.Record, today time.Time) (int, error) {
	if _, err := e.store.EnsureTable(ctx, ref, domain.OutputHeaders); err != nil {
		return 0, fmt.Errorf("ensure table %s: %w", ref.Table, err)
	}

	lastRow, err := e.store.LastRow(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("last row of %s: %w", ref.Table, err)
	}
	lastCol, err := e.store.LastColumn(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("last column of %s: %w", ref.Table, err)
	}
	if lastCol < domain.OutputColumns {
		lastCol = domain.OutputColumns
	}
	if lastRow > 1 {
		if err := e.store.ClearRegion(ctx, ref, 2, 1, lastRow-1, lastCol); err != nil {
			return 0, fmt.Errorf("clear %s: %w", ref.Table, err)
		}
	}

	todayDate := domain.DateOf(today, e.location)
	var fresh []domain.Record
	for _, r := range records {
		if r.RecordedAt.IsZero() {
			continue
		}
		if domain.DateOf(r.RecordedAt, e.location).Equal(todayDate) {
			fresh = append(fresh, r)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].HighRating > fresh[j].HighRating
	})
	out := make([][]any, len(fresh))
	for i, r := range fresh {
		out[i] = r.OutputCells()
	}
	if err := e.store.WriteRegion(ctx, ref, 2, 1, out); err != nil {
		return 0, fmt.Errorf("write %s: %w", ref.Table, err)
	}

	if err := e.style(ctx, ref); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

func (e *Engine) readData(ctx context.Context, ref ports.TableRef) ([]tableRow, int, error) {
	lastRow, err := e.store.LastRow(ctx, ref)
	if err != nil {
		return nil, 0, fmt.Errorf("last row of %s: %w", ref.Table, err)
	}
	lastCol, err := e.store.LastColumn(ctx, ref)
	if err != nil {
		return nil, 0, fmt.Errorf("last column of %s: %w", ref.Table, err)
	}
	width := lastCol
	if width < domain.OutputColumns {
		width = domain.OutputColumns
	}
	if lastRow <= 1 {
		return nil, width, nil
	}

	data, err := e.store.ReadRegion(ctx, ref, 2, 1, lastRow-1, width)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", ref.Table, err)
	}
	rows := make([]tableRow, len(data))
	for i, cells := range data {
		rows[i] = tableRow{cells: cells}
	}
	return rows, width, nil
}

// sortByHighRating rewrites the data region only when the stable order differs.
func (e *Engine) sortByHighRating(ctx context.Context, ref ports.TableRef, rows []tableRow) (bool, error) {
	if len(rows) < 2 {
		return false, nil
	}

	perm := make([]int, len(rows))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return rows[perm[i]].highRating() > rows[perm[j]].highRating()
	})

	changed := false
	for i, p := range perm {
		if p != i {
			changed = true
			break
		}
	}
	if !changed {
		return false, nil
	}

	out := make([][]any, len(perm))
	for i, p := range perm {
		out[i] = rows[p].cells
	}
	if err := e.store.WriteRegion(ctx, ref, 2, 1, out); err != nil {
		return false, fmt.Errorf("sort %s: %w", ref.Table, err)
	}
	return true, nil
}

func (e *Engine) style(ctx context.Context, ref ports.TableRef) error {
	styler, ok := e.store.(ports.Styler)
	if !ok {
		return nil
	}
	if err := styler.StyleTable(ctx, ref); err != nil {
		return fmt.Errorf("style %s: %w", ref.Table, err)
	}
	return nil
}

func (e *Engine) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

// fit copies row into a slice of exactly n cells.
func fit(row []any, n int) []any {
	out := make([]any, n)
	copy(out, row)
	return out
}

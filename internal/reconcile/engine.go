// Package reconcile collapses the append-only observation history down to at
// most one authoritative record per article URL.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/ports"
)

// Policy parameterizes the merge for the table it runs against.
type Policy struct {
	// TrackProcessed enables the "already committed downstream wins" tie-break.
	// Tables without a processed column run without it.
	TrackProcessed bool
}

// Result describes one merge.
type Result struct {
	Retained []domain.Record
	Removed  int
}

// Remaining is the number of surviving rows.
func (r Result) Remaining() int {
	return len(r.Retained)
}

// Engine applies the merge policy to in-memory snapshots and tables.
type Engine struct {
	location *time.Location
	logger   *slog.Logger
}

// NewEngine builds an engine; loc resolves textual timestamps.
func NewEngine(loc *time.Location, logger *slog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc, logger: logger}
}

// Merge keeps zero or one record per URL and preserves the input order of
// the survivors. Records without a URL are dropped.
func Merge(records []domain.Record, policy Policy) Result {
	groups := make(map[string][]int)
	for i, r := range records {
		if r.URL == "" {
			continue
		}
		groups[r.URL] = append(groups[r.URL], i)
	}

	keep := make(map[int]struct{}, len(groups))
	for _, idx := range groups {
		if winner, ok := pick(records, idx, policy); ok {
			keep[winner] = struct{}{}
		}
	}

	retained := make([]domain.Record, 0, len(keep))
	for i, r := range records {
		if _, ok := keep[i]; ok {
			retained = append(retained, r)
		}
	}

	return Result{Retained: retained, Removed: len(records) - len(retained)}
}

// pick returns the index of the surviving record of one URL group.
func pick(records []domain.Record, idx []int, policy Policy) (int, bool) {
	if len(idx) == 1 {
		return idx[0], records[idx[0]].Valuable()
	}

	// Newest first; among equal timestamps the later row counts as newer.
	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(a, b int) bool {
		ra, rb := records[sorted[a]], records[sorted[b]]
		if !ra.RecordedAt.Equal(rb.RecordedAt) {
			return ra.RecordedAt.After(rb.RecordedAt)
		}
		return sorted[a] > sorted[b]
	})

	if records[sorted[0]].Purchased24h {
		return sorted[0], true
	}

	if policy.TrackProcessed {
		for _, i := range sorted {
			// Only valuable rows are ever marked processed; the check keeps
			// hand-edited rows from shadowing real evidence.
			if records[i].Processed() && records[i].Valuable() {
				return i, true
			}
		}
	}

	for _, i := range sorted {
		if records[i].Valuable() {
			return i, true
		}
	}
	return 0, false
}

// PolicyFor derives the policy from the table width: only tables carrying
// the processed column take the processed tie-break.
func PolicyFor(columns int) Policy {
	return Policy{TrackProcessed: columns >= domain.SourceColumns}
}

// CleanTable merges the whole data region of ref and rewrites it in one bulk
// replace: clear, write survivors, drop the tail.
func (e *Engine) CleanTable(ctx context.Context, store ports.TableStore, ref ports.TableRef) (Result, error) {
	lastRow, err := store.LastRow(ctx, ref)
	if err != nil {
		return Result{}, fmt.Errorf("last row: %w", err)
	}
	if lastRow <= 1 {
		return Result{}, nil
	}

	lastCol, err := store.LastColumn(ctx, ref)
	if err != nil {
		return Result{}, fmt.Errorf("last column: %w", err)
	}
	width := lastCol
	if width < domain.LegacyColumns {
		width = domain.LegacyColumns
	}

	data, err := store.ReadRegion(ctx, ref, 2, 1, lastRow-1, width)
	if err != nil {
		return Result{}, fmt.Errorf("read data region: %w", err)
	}

	records := make([]domain.Record, len(data))
	for i, row := range data {
		records[i] = domain.RecordFromCells(row, i+2, e.location)
	}

	policy := PolicyFor(lastCol)
	result := Merge(records, policy)
	e.debug("merge done", "table", ref.String(), "rows", len(records), "removed", result.Removed, "track_processed", policy.TrackProcessed)

	if result.Removed == 0 {
		return result, nil
	}

	if result.Remaining() == 0 {
		if err := store.DeleteRows(ctx, ref, 2, lastRow-1); err != nil {
			return Result{}, fmt.Errorf("delete all data rows: %w", err)
		}
		return result, nil
	}

	keep := make([][]any, 0, result.Remaining())
	for i := range result.Retained {
		keep = append(keep, data[result.Retained[i].Row-2])
		result.Retained[i].Row = i + 2
	}

	if err := store.ClearRegion(ctx, ref, 2, 1, lastRow-1, width); err != nil {
		return Result{}, fmt.Errorf("clear data region: %w", err)
	}
	if err := store.WriteRegion(ctx, ref, 2, 1, keep); err != nil {
		return Result{}, fmt.Errorf("write retained rows: %w", err)
	}
	newLast := len(keep) + 1
	if lastRow > newLast {
		if err := store.DeleteRows(ctx, ref, newLast+1, lastRow-newLast); err != nil {
			return Result{}, fmt.Errorf("delete tail rows: %w", err)
		}
	}

	return result, nil
}

func (e *Engine) debug(msg string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

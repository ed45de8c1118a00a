package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/infrastructure/storage"
	"NoteSalesTracker/internal/ports"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newMachine(t *testing.T, start time.Time) (*Machine, *fakeClock, *storage.MemoryStore, ports.TableRef) {
	t.Helper()
	store := storage.NewMemoryStore()
	if err := store.EnsureWorkbook(context.Background(), "recv", "Receiver"); err != nil {
		t.Fatalf("ensure workbook: %v", err)
	}
	ref := ports.TableRef{Workbook: "recv", Table: "Tracking"}
	clock := &fakeClock{now: start}
	m := NewMachine(store, ref, Options{TrackingDays: 14, Location: time.UTC, Clock: clock.Now})
	return m, clock, store, ref
}

func date(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 10, 30, 0, 0, time.UTC)
}

func TestAddInitializesItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _, _, _ := newMachine(t, date(2024, 1, 1))

	added, err := m.Add(ctx, Candidate{URL: "u1", Title: "T", Author: "A", Price: 300})
	if err != nil || !added {
		t.Fatalf("add: added=%v err=%v", added, err)
	}

	items, err := m.ActiveItems(ctx)
	if err != nil {
		t.Fatalf("active items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.CheckCount != 0 || item.HitCount != 1 {
		t.Fatalf("unexpected counters: check=%d hit=%d", item.CheckCount, item.HitCount)
	}
	if item.ListInDate.Format("2006-01-02") != "2024-01-01" || item.EndDate.Format("2006-01-02") != "2024-01-15" {
		t.Fatalf("unexpected window: %s - %s", item.ListInDate, item.EndDate)
	}
	if _, ok := item.HitRate(); ok {
		t.Fatalf("hit rate must be blank before the first check")
	}
	if item.Cells()[domain.TrackColHitRate] != "" {
		t.Fatalf("hit rate cell must be blank, got %#v", item.Cells()[domain.TrackColHitRate])
	}
}

func TestAddSuppressesDuplicateActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, clock, _, _ := newMachine(t, date(2024, 1, 1))

	if added, _ := m.Add(ctx, Candidate{URL: "u1"}); !added {
		t.Fatalf("first add should succeed")
	}
	if added, err := m.Add(ctx, Candidate{URL: "u1"}); err != nil || added {
		t.Fatalf("duplicate add: added=%v err=%v", added, err)
	}

	clock.now = date(2024, 2, 1)
	if n, err := m.ExpireOld(ctx); err != nil || n != 1 {
		t.Fatalf("expire: n=%d err=%v", n, err)
	}
	if added, err := m.Add(ctx, Candidate{URL: "u1"}); err != nil || !added {
		t.Fatalf("re-add after completion: added=%v err=%v", added, err)
	}
}

func TestUpdateResultsAfterWindowCompletes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, clock, store, ref := newMachine(t, date(2024, 1, 1))
	if _, err := m.Add(ctx, Candidate{URL: "u1"}); err != nil {
		t.Fatalf("add: %v", err)
	}

	clock.now = date(2024, 1, 20)
	report, err := m.UpdateResults(ctx, map[string]bool{"u1": false})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if report.Updated != 1 || report.Completed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	rows, _ := store.ReadRegion(ctx, ref, 2, 1, 1, domain.TrackingColumns)
	item := domain.TrackingItemFromCells(rows[0], 2, time.UTC)
	if item.Status != domain.TrackingCompleted || item.CheckCount != 1 {
		t.Fatalf("unexpected item: %+v", item)
	}
}

func TestUpdateResultsCountsHits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, clock, _, _ := newMachine(t, date(2024, 1, 1))
	_, _ = m.Add(ctx, Candidate{URL: "hit"})
	_, _ = m.Add(ctx, Candidate{URL: "miss"})
	_, _ = m.Add(ctx, Candidate{URL: "skipped"})

	clock.now = date(2024, 1, 2)
	for i := 0; i < 3; i++ {
		if _, err := m.UpdateResults(ctx, map[string]bool{"hit": true, "miss": false, "unknown": true}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	items, err := m.ActiveItems(ctx)
	if err != nil {
		t.Fatalf("active items: %v", err)
	}
	byURL := map[string]domain.TrackingItem{}
	for _, it := range items {
		byURL[it.URL] = it
	}

	hit := byURL["hit"]
	if hit.CheckCount != 3 || hit.HitCount != 4 {
		t.Fatalf("hit counters: %+v", hit)
	}
	if rate, ok := hit.HitRate(); !ok || rate != 100 {
		t.Fatalf("hit rate must be clamped to 100, got %d %v", rate, ok)
	}

	miss := byURL["miss"]
	if miss.CheckCount != 3 || miss.HitCount != 1 {
		t.Fatalf("miss counters: %+v", miss)
	}
	if rate, _ := miss.HitRate(); rate != 33 {
		t.Fatalf("miss hit rate = %d, want 33", rate)
	}

	skipped := byURL["skipped"]
	if skipped.CheckCount != 0 || !skipped.LastCheckedDate.Equal(domain.DateOf(date(2024, 1, 1), time.UTC)) {
		t.Fatalf("skipped item must be untouched: %+v", skipped)
	}
}

func TestUpdateResultsEmptyTable(t *testing.T) {
	t.Parallel()

	m, _, _, _ := newMachine(t, date(2024, 1, 1))
	if _, err := m.UpdateResults(context.Background(), map[string]bool{"x": true}); !errors.Is(err, ErrNoTrackingData) {
		t.Fatalf("expected ErrNoTrackingData, got %v", err)
	}
}

func TestExpireOldBoundary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, clock, _, _ := newMachine(t, date(2024, 1, 1))
	_, _ = m.Add(ctx, Candidate{URL: "u1"})

	clock.now = date(2024, 1, 14)
	if n, err := m.ExpireOld(ctx); err != nil || n != 0 {
		t.Fatalf("day before end: n=%d err=%v", n, err)
	}

	clock.now = time.Date(2024, 1, 15, 0, 0, 1, 0, time.UTC)
	if n, err := m.ExpireOld(ctx); err != nil || n != 1 {
		t.Fatalf("end day: n=%d err=%v", n, err)
	}
	if items, _ := m.ActiveItems(ctx); len(items) != 0 {
		t.Fatalf("no item may remain active: %+v", items)
	}
}

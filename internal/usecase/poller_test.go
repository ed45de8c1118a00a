package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"NoteSalesTracker/internal/infrastructure/storage"
	"NoteSalesTracker/internal/ports"
	"NoteSalesTracker/internal/reconcile"
	"NoteSalesTracker/internal/tracking"
)

type stubChecker struct {
	results map[string]bool
	fail    map[string]bool
	calls   []string
}

func (c *stubChecker) CheckPurchased(_ context.Context, url string) (bool, error) {
	c.calls = append(c.calls, url)
	if c.fail[url] {
		return false, errors.New("page unavailable")
	}
	return c.results[url], nil
}

func newIngestor(t *testing.T, now *time.Time) (*Ingestor, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	if err := store.EnsureWorkbook(context.Background(), "receiver", "Receiver"); err != nil {
		t.Fatalf("ensure workbook: %v", err)
	}
	clock := func() time.Time { return *now }
	machine := tracking.NewMachine(store, ports.TableRef{Workbook: "receiver", Table: "Tracking"}, tracking.Options{
		TrackingDays: 14,
		Location:     time.UTC,
		Clock:        clock,
	})
	return NewIngestor(IngestDeps{
		Store:      store,
		Source:     sourceRef,
		Tracker:    machine,
		Reconciler: reconcile.NewEngine(time.UTC, nil),
		Location:   time.UTC,
		Clock:      clock,
	}), store
}

func TestPollSubmitsResults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	ingestor, _ := newIngestor(t, &now)
	for _, url := range []string{"hit", "miss", "broken"} {
		if _, err := ingestor.Record(ctx, Event{URL: url, Purchased24h: true}); err != nil {
			t.Fatalf("record %s: %v", url, err)
		}
	}

	checker := &stubChecker{results: map[string]bool{"hit": true}, fail: map[string]bool{"broken": true}}
	var sleeps []time.Duration
	poller := NewPoller(PollerDeps{
		Ingestor: ingestor,
		Checker:  checker,
		MinDelay: 2 * time.Second,
		MaxDelay: 4 * time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	})

	now = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	report, err := poller.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if report.Checked != 2 || report.Hits != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Updated != 2 || report.Completed != 2 {
		t.Fatalf("expected both checked items to complete on the end date: %+v", report)
	}
	if len(checker.calls) != 3 {
		t.Fatalf("expected 3 checks, got %v", checker.calls)
	}
	if len(sleeps) != 2 {
		t.Fatalf("expected a pause between pages only, got %v", sleeps)
	}
	for _, d := range sleeps {
		if d < 2*time.Second || d > 4*time.Second {
			t.Fatalf("delay %s outside [2s,4s]", d)
		}
	}

	items, err := ingestor.TrackingList(ctx)
	if err != nil {
		t.Fatalf("tracking list: %v", err)
	}
	if len(items) != 1 || items[0].URL != "broken" || items[0].CheckCount != 0 {
		t.Fatalf("failed page must stay untouched and active: %+v", items)
	}
}

func TestPollWithoutItems(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ingestor, _ := newIngestor(t, &now)
	checker := &stubChecker{}

	report, err := NewPoller(PollerDeps{Ingestor: ingestor, Checker: checker}).Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if report != (PollReport{}) || len(checker.calls) != 0 {
		t.Fatalf("nothing should be checked: %+v %v", report, checker.calls)
	}
}

func TestPollStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ingestor, _ := newIngestor(t, &now)
	for _, url := range []string{"a", "b"} {
		if _, err := ingestor.Record(ctx, Event{URL: url, Purchased24h: true}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	poller := NewPoller(PollerDeps{
		Ingestor: ingestor,
		Checker:  &stubChecker{},
		Sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})
	if _, err := poller.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

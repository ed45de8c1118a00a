package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"NoteSalesTracker/internal/ports"
)

type provisionedStore interface {
	ports.TableStore
	ports.WorkbookProvisioner
}

func TestMemoryStoreContract(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStoreContract(t *testing.T) {
	t.Parallel()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tables.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStoreConcurrentAppends(t *testing.T) {
	t.Parallel()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "appends.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	ref := ports.TableRef{Workbook: "book", Table: "sheet"}
	if err := store.EnsureWorkbook(ctx, "book", "Book"); err != nil {
		t.Fatalf("ensure workbook: %v", err)
	}
	if _, err := store.EnsureTable(ctx, ref, []string{"n"}); err != nil {
		t.Fatalf("ensure table: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- store.AppendRow(ctx, ref, []any{int64(n)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	last, err := store.LastRow(ctx, ref)
	if err != nil || last != writers+1 {
		t.Fatalf("last row = %d, want %d (err=%v)", last, writers+1, err)
	}
	rows, err := store.ReadRegion(ctx, ref, 2, 1, writers, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	seen := make(map[int64]bool, writers)
	for _, row := range rows {
		seen[row[0].(int64)] = true
	}
	if len(seen) != writers {
		t.Fatalf("appends overwrote each other: %d distinct values", len(seen))
	}
}

func exerciseStore(t *testing.T, store provisionedStore) {
	t.Helper()
	ctx := context.Background()
	ref := ports.TableRef{Workbook: "book", Table: "sheet"}

	if _, err := store.EnsureTable(ctx, ref, []string{"a"}); !errors.Is(err, ports.ErrWorkbookNotFound) {
		t.Fatalf("expected ErrWorkbookNotFound, got %v", err)
	}

	if err := store.EnsureWorkbook(ctx, "book", "Book"); err != nil {
		t.Fatalf("ensure workbook: %v", err)
	}
	if _, err := store.LastRow(ctx, ref); !errors.Is(err, ports.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}

	created, err := store.EnsureTable(ctx, ref, []string{"url", "n", "at"})
	if err != nil || !created {
		t.Fatalf("ensure table: created=%v err=%v", created, err)
	}
	created, err = store.EnsureTable(ctx, ref, []string{"url", "n", "at"})
	if err != nil || created {
		t.Fatalf("second ensure table: created=%v err=%v", created, err)
	}

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, row := range [][]any{
		{"u1", int64(1), at},
		{"u2", int64(2), true},
		{"u3", 3.5, ""},
		{"u4", int64(4), nil},
	} {
		if err := store.AppendRow(ctx, ref, row); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	last, err := store.LastRow(ctx, ref)
	if err != nil || last != 5 {
		t.Fatalf("last row = %d, %v; want 5", last, err)
	}
	lastCol, err := store.LastColumn(ctx, ref)
	if err != nil || lastCol != 3 {
		t.Fatalf("last column = %d, %v; want 3", lastCol, err)
	}

	got, err := store.ReadRegion(ctx, ref, 2, 1, 2, 3)
	if err != nil {
		t.Fatalf("read region: %v", err)
	}
	if got[0][0] != "u1" || got[0][1] != int64(1) {
		t.Fatalf("unexpected first row: %#v", got[0])
	}
	if ts, ok := got[0][2].(time.Time); !ok || !ts.Equal(at) {
		t.Fatalf("timestamp not preserved: %#v", got[0][2])
	}
	if got[1][2] != true {
		t.Fatalf("bool not preserved: %#v", got[1][2])
	}

	if err := store.DeleteRows(ctx, ref, 3, 2); err != nil {
		t.Fatalf("delete rows: %v", err)
	}
	rows, err := store.ReadRegion(ctx, ref, 2, 1, 2, 1)
	if err != nil {
		t.Fatalf("read after delete: %v", err)
	}
	if rows[0][0] != "u1" || rows[1][0] != "u4" {
		t.Fatalf("rows not shifted: %#v", rows)
	}

	if err := store.WriteRegion(ctx, ref, 2, 2, [][]any{{int64(10), nil}}); err != nil {
		t.Fatalf("write region: %v", err)
	}
	rows, err = store.ReadRegion(ctx, ref, 2, 1, 1, 3)
	if err != nil {
		t.Fatalf("read after write: %v", err)
	}
	if rows[0][0] != "u1" || rows[0][1] != int64(10) || rows[0][2] != nil {
		t.Fatalf("unexpected row after write: %#v", rows[0])
	}

	if err := store.ClearRegion(ctx, ref, 2, 1, 2, 3); err != nil {
		t.Fatalf("clear region: %v", err)
	}
	last, err = store.LastRow(ctx, ref)
	if err != nil || last != 1 {
		t.Fatalf("last row after clear = %d, %v; want 1", last, err)
	}

	id, err := store.CreateWorkbook(ctx, "Fresh")
	if err != nil {
		t.Fatalf("create workbook: %v", err)
	}
	if ok, err := store.WorkbookExists(ctx, id); err != nil || !ok {
		t.Fatalf("created workbook missing: %v %v", ok, err)
	}
}

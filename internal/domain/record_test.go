package domain

import (
	"testing"
	"time"
)

func TestRecordDerivedFields(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	r := Record{
		RecordedAt: time.Date(2024, 1, 11, 1, 0, 0, 0, time.UTC),
		CreatedAt:  &created,
		Likes:      3,
		HighRating: 1,
		Price:      980,
	}

	if days, ok := r.ElapsedDays(); !ok || days != 10 {
		t.Fatalf("elapsed days = %d, %v", days, ok)
	}
	if got := r.MinRevenueEstimate(); got != 980 {
		t.Fatalf("min revenue = %d", got)
	}
	rate, ok := r.PurchaseRate()
	if !ok || rate.String() != "33.3" {
		t.Fatalf("purchase rate = %s, %v", rate, ok)
	}

	r.Likes = 0
	if _, ok := r.PurchaseRate(); ok {
		t.Fatalf("purchase rate must be blank without likes")
	}
	r.CreatedAt = nil
	if _, ok := r.ElapsedDays(); ok {
		t.Fatalf("elapsed days must be blank without created date")
	}

	cells := r.Cells()
	if cells[ColElapsedDays] != "" || cells[ColPurchaseRate] != "" {
		t.Fatalf("blank derived cells expected, got %v %v", cells[ColElapsedDays], cells[ColPurchaseRate])
	}
	if len(r.OutputCells()) != OutputColumns {
		t.Fatalf("output projection has %d cells", len(r.OutputCells()))
	}
}

func TestValuable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		r    Record
		want bool
	}{
		{Record{}, false},
		{Record{HighRating: 1}, true},
		{Record{Purchased24h: true}, true},
		{Record{Likes: 100, Price: 500}, false},
	}
	for i, tc := range cases {
		if got := tc.r.Valuable(); got != tc.want {
			t.Fatalf("case %d: Valuable() = %v, want %v", i, got, tc.want)
		}
	}
}

func TestRecordFromCellsLegacyRow(t *testing.T) {
	t.Parallel()

	jst := time.FixedZone("JST", 9*60*60)
	row := []any{"2024/03/01 10:00:00", "2024/02/20", "T", "A", "", "https://note.com/a/n/1", "12", 2.0, int64(300), "x, y", "", "○"}

	r := RecordFromCells(row, 5, jst)
	if r.Row != 5 || r.URL != "https://note.com/a/n/1" {
		t.Fatalf("unexpected identity: %+v", r)
	}
	if r.Likes != 12 || r.HighRating != 2 || r.Price != 300 || !r.Purchased24h {
		t.Fatalf("unexpected metrics: %+v", r)
	}
	if want := time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC); !r.RecordedAt.Equal(want) {
		t.Fatalf("recordedAt = %v, want %v", r.RecordedAt, want)
	}
	if r.CreatedAt == nil || r.Processed() {
		t.Fatalf("created/processed mismatch: %+v", r)
	}
}

func TestRecordFromCellsProcessedMarker(t *testing.T) {
	t.Parallel()

	base := make([]any, SourceColumns)
	base[ColURL] = "u"
	base[ColRecordedAt] = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, marker := range []any{"2024-03-02 10:00:00", "done", true, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)} {
		row := append([]any{}, base...)
		row[ColProcessedAt] = marker
		if !RecordFromCells(row, 2, time.UTC).Processed() {
			t.Fatalf("marker %v should count as processed", marker)
		}
	}
	for _, marker := range []any{nil, "", "  ", false} {
		row := append([]any{}, base...)
		row[ColProcessedAt] = marker
		if RecordFromCells(row, 2, time.UTC).Processed() {
			t.Fatalf("marker %#v should not count as processed", marker)
		}
	}
}

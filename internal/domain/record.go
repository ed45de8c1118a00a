package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source table columns, 0-based. The first OutputColumns are copied to category tables.
const (
	ColRecordedAt = iota
	ColCreatedAt
	ColTitle
	ColAuthor
	ColAuthorURL
	ColURL
	ColLikes
	ColHighRating
	ColPrice
	ColTags
	ColSalesClaim
	ColPurchased24h
	ColElapsedDays
	ColMinRevenue
	ColPurchaseRate
	ColProcessedAt
)

const (
	// LegacyColumns is the width of tables created before the analysis columns existed.
	LegacyColumns = ColPurchased24h + 1
	OutputColumns = ColPurchaseRate + 1
	SourceColumns = ColProcessedAt + 1
)

// OutputHeaders is the fixed header row of category and new-arrival tables.
var OutputHeaders = []string{
	"Recorded At", "Created At", "Title", "Author", "Author URL", "URL",
	"Likes", "High Rating", "Price", "Tags", "Sales Claim",
	"Purchased 24h", "Elapsed Days", "Min Revenue Estimate", "Purchase Rate (%)",
}

// SourceHeaders is the header row of the observation table.
var SourceHeaders = append(append([]string{}, OutputHeaders...), "Processed At")

// Record is one observation of an article's public metrics.
type Record struct {
	// Row is the 1-based table row the record was read from; 0 when not persisted.
	Row int

	RecordedAt   time.Time
	CreatedAt    *time.Time
	Title        string
	Author       string
	AuthorURL    string
	URL          string
	Likes        int64
	HighRating   int64
	Price        int64
	Tags         string
	SalesClaim   string
	Purchased24h bool
	ProcessedAt  *time.Time
}

// Valuable reports whether the record carries any monetization evidence.
func (r Record) Valuable() bool {
	return r.HighRating > 0 || r.Purchased24h
}

// Processed reports whether the record was already committed downstream.
func (r Record) Processed() bool {
	return r.ProcessedAt != nil
}

// ElapsedDays is the day count from publication to observation; false when
// the publication date is unknown or later than the observation.
func (r Record) ElapsedDays() (int, bool) {
	if r.CreatedAt == nil || r.RecordedAt.IsZero() {
		return 0, false
	}
	days := DaysBetween(*r.CreatedAt, r.RecordedAt)
	if days < 0 {
		return 0, false
	}
	return days, true
}

// MinRevenueEstimate assumes every high rating is at least one purchase.
func (r Record) MinRevenueEstimate() int64 {
	return r.HighRating * r.Price
}

// PurchaseRate is highRating / likes * 100 rounded to one decimal; false when likes is 0.
func (r Record) PurchaseRate() (decimal.Decimal, bool) {
	if r.Likes == 0 {
		return decimal.Zero, false
	}
	rate := decimal.NewFromInt(r.HighRating).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(r.Likes)).
		Round(1)
	return rate, true
}

// Cells renders the full source row, derived columns included.
func (r Record) Cells() []any {
	row := make([]any, SourceColumns)
	row[ColRecordedAt] = r.RecordedAt
	row[ColCreatedAt] = ""
	if r.CreatedAt != nil {
		row[ColCreatedAt] = *r.CreatedAt
	}
	row[ColTitle] = r.Title
	row[ColAuthor] = r.Author
	row[ColAuthorURL] = r.AuthorURL
	row[ColURL] = r.URL
	row[ColLikes] = r.Likes
	row[ColHighRating] = r.HighRating
	row[ColPrice] = r.Price
	row[ColTags] = r.Tags
	row[ColSalesClaim] = r.SalesClaim
	row[ColPurchased24h] = r.Purchased24h

	row[ColElapsedDays] = ""
	if days, ok := r.ElapsedDays(); ok {
		row[ColElapsedDays] = int64(days)
	}
	row[ColMinRevenue] = r.MinRevenueEstimate()
	row[ColPurchaseRate] = ""
	if rate, ok := r.PurchaseRate(); ok {
		row[ColPurchaseRate] = rate.InexactFloat64()
	}

	row[ColProcessedAt] = ""
	if r.ProcessedAt != nil {
		row[ColProcessedAt] = *r.ProcessedAt
	}
	return row
}

// OutputCells is the projection written to category tables.
func (r Record) OutputCells() []any {
	return r.Cells()[:OutputColumns]
}

// RecordFromCells decodes a table row. Short rows (legacy tables) leave the
// missing fields at their zero value; loc is used for textual timestamps.
func RecordFromCells(row []any, rowNum int, loc *time.Location) Record {
	cell := func(i int) any {
		if i < len(row) {
			return row[i]
		}
		return nil
	}

	r := Record{
		Row:          rowNum,
		Title:        CellString(cell(ColTitle)),
		Author:       CellString(cell(ColAuthor)),
		AuthorURL:    CellString(cell(ColAuthorURL)),
		URL:          CellString(cell(ColURL)),
		Likes:        CellInt(cell(ColLikes)),
		HighRating:   CellInt(cell(ColHighRating)),
		Price:        CellInt(cell(ColPrice)),
		Tags:         CellString(cell(ColTags)),
		SalesClaim:   CellString(cell(ColSalesClaim)),
		Purchased24h: CellBool(cell(ColPurchased24h)),
	}
	if t, ok := CellTime(cell(ColRecordedAt), loc); ok {
		r.RecordedAt = t
	}
	if t, ok := CellTime(cell(ColCreatedAt), loc); ok {
		r.CreatedAt = &t
	}
	if t, ok := CellTime(cell(ColProcessedAt), loc); ok {
		r.ProcessedAt = &t
	} else if v := cell(ColProcessedAt); !IsBlank(v) && v != false {
		// Any non-blank marker counts as processed, matching the sheet semantics.
		processed := r.RecordedAt
		r.ProcessedAt = &processed
	}
	return r
}

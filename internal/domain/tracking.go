package domain

import (
	"math"
	"strings"
	"time"
)

// TrackingStatus is the lifecycle state of a tracking item.
type TrackingStatus string

const (
	TrackingActive    TrackingStatus = "Active"
	TrackingCompleted TrackingStatus = "Completed"
)

// DefaultTrackingDays is the length of the polling window.
const DefaultTrackingDays = 14

// Tracking table columns, 0-based.
const (
	TrackColURL = iota
	TrackColTitle
	TrackColAuthor
	TrackColPrice
	TrackColListInDate
	TrackColEndDate
	TrackColCheckCount
	TrackColHitCount
	TrackColLastChecked
	TrackColStatus
	TrackColHitRate

	TrackingColumns
)

// TrackingHeaders is the header row of the tracking table.
var TrackingHeaders = []string{
	"URL", "Title", "Author", "Price", "List-In Date", "End Date",
	"Check Count", "Hit Count", "Last Checked", "Status", "Hit Rate (%)",
}

// TrackingItem follows a confirmed-sale article through its polling window.
type TrackingItem struct {
	Row int

	URL             string
	Title           string
	Author          string
	Price           int64
	ListInDate      time.Time
	EndDate         time.Time
	CheckCount      int64
	HitCount        int64
	LastCheckedDate time.Time
	Status          TrackingStatus
}

// HitRate is round(hitCount/checkCount*100) clamped into [0,100]; false while unchecked.
func (t TrackingItem) HitRate() (int64, bool) {
	if t.CheckCount <= 0 {
		return 0, false
	}
	rate := int64(math.Round(float64(t.HitCount) / float64(t.CheckCount) * 100))
	if rate > 100 {
		rate = 100
	}
	if rate < 0 {
		rate = 0
	}
	return rate, true
}

// Expired reports whether today has reached the end date, both taken as calendar dates in loc.
func (t TrackingItem) Expired(today time.Time, loc *time.Location) bool {
	return !DateOf(today, loc).Before(DateOf(t.EndDate, loc))
}

// Cells renders the tracking row.
func (t TrackingItem) Cells() []any {
	row := make([]any, TrackingColumns)
	row[TrackColURL] = t.URL
	row[TrackColTitle] = t.Title
	row[TrackColAuthor] = t.Author
	row[TrackColPrice] = t.Price
	row[TrackColListInDate] = t.ListInDate
	row[TrackColEndDate] = t.EndDate
	row[TrackColCheckCount] = t.CheckCount
	row[TrackColHitCount] = t.HitCount
	row[TrackColLastChecked] = ""
	if !t.LastCheckedDate.IsZero() {
		row[TrackColLastChecked] = t.LastCheckedDate
	}
	row[TrackColStatus] = string(t.Status)
	row[TrackColHitRate] = ""
	if rate, ok := t.HitRate(); ok {
		row[TrackColHitRate] = rate
	}
	return row
}

// TrackingItemFromCells decodes a tracking row.
func TrackingItemFromCells(row []any, rowNum int, loc *time.Location) TrackingItem {
	cell := func(i int) any {
		if i < len(row) {
			return row[i]
		}
		return nil
	}

	item := TrackingItem{
		Row:        rowNum,
		URL:        CellString(cell(TrackColURL)),
		Title:      CellString(cell(TrackColTitle)),
		Author:     CellString(cell(TrackColAuthor)),
		Price:      CellInt(cell(TrackColPrice)),
		CheckCount: CellInt(cell(TrackColCheckCount)),
		HitCount:   CellInt(cell(TrackColHitCount)),
		Status:     ParseTrackingStatus(CellString(cell(TrackColStatus))),
	}
	if t, ok := CellTime(cell(TrackColListInDate), loc); ok {
		item.ListInDate = t
	}
	if t, ok := CellTime(cell(TrackColEndDate), loc); ok {
		item.EndDate = t
	}
	if t, ok := CellTime(cell(TrackColLastChecked), loc); ok {
		item.LastCheckedDate = t
	}
	return item
}

// ParseTrackingStatus accepts the English labels and the legacy Japanese ones.
func ParseTrackingStatus(s string) TrackingStatus {
	switch strings.TrimSpace(s) {
	case string(TrackingActive), "追跡中":
		return TrackingActive
	case string(TrackingCompleted), "完了":
		return TrackingCompleted
	}
	return TrackingStatus(strings.TrimSpace(s))
}

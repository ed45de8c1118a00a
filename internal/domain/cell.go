package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Cells are the dynamically typed values of a table: nil, string, int64,
// float64, bool or time.Time. Blank cells are nil or "".

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006/01/02 15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006-01-02",
}

// IsBlank reports whether the cell carries no value.
func IsBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

// CellString coerces any cell to its textual form. Numbers and times are formatted, nil is "".
func CellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// CellInt coerces numeric and numeric-looking cells. Anything else is 0.
func CellInt(v any) int64 {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int64:
		return val
	case float64:
		return int64(math.Round(val))
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(math.Round(f))
		}
	}
	return 0
}

// CellBool accepts true, "○" (the legacy purchase marker) and "true" in any case.
func CellBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.TrimSpace(val)
		return s == "○" || strings.EqualFold(s, "true")
	}
	return false
}

// CellTime returns the cell as a timestamp. Strings are parsed in loc.
func CellTime(v any, loc *time.Location) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return time.Time{}, false
		}
		return val, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return time.Time{}, false
		}
		if loc == nil {
			loc = time.UTC
		}
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// CellsEqual compares two cells by value: timestamps by instant, numbers
// numerically, blanks as equal to each other.
func CellsEqual(a, b any) bool {
	if IsBlank(a) || IsBlank(b) {
		return IsBlank(a) && IsBlank(b)
	}

	ta, aIsTime := a.(time.Time)
	tb, bIsTime := b.(time.Time)
	if aIsTime || bIsTime {
		return aIsTime && bIsTime && ta.Equal(tb)
	}

	fa, aIsNum := number(a)
	fb, bIsNum := number(b)
	if aIsNum || bIsNum {
		return aIsNum && bIsNum && fa == fb
	}

	return a == b
}

// RowsEqual compares two rows cell by cell; lengths must match.
func RowsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !CellsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func number(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}

// DateOf truncates t to midnight of its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween counts calendar days from start to end, both taken in end's location.
func DaysBetween(start, end time.Time) int {
	loc := end.Location()
	s := DateOf(start, loc)
	e := DateOf(end, loc)
	su := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	eu := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	return int(eu.Sub(su).Hours() / 24)
}

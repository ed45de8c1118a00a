package ports

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWorkbookNotFound is returned when a workbook identifier no longer resolves.
	ErrWorkbookNotFound = errors.New("workbook not found")
	// ErrTableNotFound is returned for region operations on a table that was never created.
	ErrTableNotFound = errors.New("table not found")
)

// TableRef addresses one table (sheet) inside a workbook.
type TableRef struct {
	Workbook string
	Table    string
}

func (r TableRef) String() string {
	return r.Workbook + "/" + r.Table
}

// TableStore is a sheet-like store addressed by 1-based row and column
// numbers. Row 1 holds the header. Cells are nil, string, int64, float64,
// bool or time.Time.
type TableStore interface {
	WorkbookExists(ctx context.Context, workbook string) (bool, error)
	CreateWorkbook(ctx context.Context, title string) (string, error)

	// EnsureTable creates the table with the given header when it is absent
	// and reports whether it did so.
	EnsureTable(ctx context.Context, ref TableRef, header []string) (bool, error)

	ReadRegion(ctx context.Context, ref TableRef, rowStart, colStart, rowCount, colCount int) ([][]any, error)
	WriteRegion(ctx context.Context, ref TableRef, rowStart, colStart int, values [][]any) error
	AppendRow(ctx context.Context, ref TableRef, values []any) error
	DeleteRows(ctx context.Context, ref TableRef, startRow, count int) error
	ClearRegion(ctx context.Context, ref TableRef, rowStart, colStart, rowCount, colCount int) error

	LastRow(ctx context.Context, ref TableRef) (int, error)
	LastColumn(ctx context.Context, ref TableRef) (int, error)
}

// WorkbookProvisioner is implemented by stores that can register a workbook
// under a caller-chosen identifier (the observation and tracking workbooks).
type WorkbookProvisioner interface {
	EnsureWorkbook(ctx context.Context, id, title string) error
}

// Styler is implemented by stores that can mark header and borders.
type Styler interface {
	StyleTable(ctx context.Context, ref TableRef) error
}

// Level grades outbound notifications.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Emoji is the chat prefix for the level.
func (l Level) Emoji() string {
	switch l {
	case LevelInfo:
		return "ℹ️"
	case LevelSuccess:
		return "✅"
	case LevelWarning:
		return "⚠️"
	case LevelError:
		return "🚨"
	default:
		return "📝"
	}
}

// Notifier delivers operator messages to chat channels (Telegram, Slack).
type Notifier interface {
	Notify(ctx context.Context, level Level, message string) error
}

// PurchaseChecker tells whether an article page currently shows a purchase
// within the last 24 hours.
type PurchaseChecker interface {
	CheckPurchased(ctx context.Context, url string) (bool, error)
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Add(spec string, job func(context.Context)) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Clock supplies the current time; tests pin it.
type Clock func() time.Time

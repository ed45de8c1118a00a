package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/ports"
)

const (
	kindString = "s"
	kindInt    = "i"
	kindFloat  = "f"
	kindBool   = "b"
	kindTime   = "t"

	// cells per INSERT; six bind variables each stays well below SQLite's limit.
	insertBatch = 500
)

// SQLiteStore persists workbooks as a sparse cell table in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ ports.TableStore          = (*SQLiteStore)(nil)
	_ ports.WorkbookProvisioner = (*SQLiteStore)(nil)
	_ ports.Styler              = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the database file and applies the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; the store is the serialization point.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) EnsureWorkbook(ctx context.Context, id, title string) error {
	query, args, err := sq.Insert("workbooks").
		Columns("id", "title").
		Values(id, title).
		Suffix("ON CONFLICT(id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert workbook: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert workbook: %w", err)
	}
	return nil
}

func (s *SQLiteStore) WorkbookExists(ctx context.Context, workbook string) (bool, error) {
	query, args, err := sq.Select("COUNT(*)").From("workbooks").Where(sq.Eq{"id": workbook}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build workbook query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("query workbook: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateWorkbook(ctx context.Context, title string) (string, error) {
	id := uuid.NewString()
	if err := s.EnsureWorkbook(ctx, id, title); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStore) EnsureTable(ctx context.Context, ref ports.TableRef, header []string) (bool, error) {
	exists, err := s.WorkbookExists(ctx, ref.Workbook)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, fmt.Errorf("%s: %w", ref.Workbook, ports.ErrWorkbookNotFound)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := sq.Insert("sheets").
		Columns("workbook_id", "name").
		Values(ref.Workbook, ref.Table).
		Suffix("ON CONFLICT(workbook_id, name) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert sheet: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert sheet: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if len(header) > 0 {
		row := make([]any, len(header))
		for i, h := range header {
			row[i] = h
		}
		if err := insertCells(ctx, tx, ref, 1, 1, [][]any{row}); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) ReadRegion(ctx context.Context, ref ports.TableRef, rowStart, colStart, rowCount, colCount int) ([][]any, error) {
	if err := checkRegion(rowStart, colStart, rowCount, colCount); err != nil {
		return nil, err
	}
	if err := s.requireTable(ctx, ref); err != nil {
		return nil, err
	}

	out := make([][]any, rowCount)
	for i := range out {
		out[i] = make([]any, colCount)
	}
	if rowCount == 0 || colCount == 0 {
		return out, nil
	}

	query, args, err := sq.Select("row_no", "col_no", "kind", "value").
		From("cells").
		Where(sq.Eq{"workbook_id": ref.Workbook, "sheet": ref.Table}).
		Where(sq.GtOrEq{"row_no": rowStart}).
		Where(sq.Lt{"row_no": rowStart + rowCount}).
		Where(sq.GtOrEq{"col_no": colStart}).
		Where(sq.Lt{"col_no": colStart + colCount}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build region query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query region: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r, c        int
			kind, value string
		)
		if err := rows.Scan(&r, &c, &kind, &value); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		v, err := decodeCell(kind, value)
		if err != nil {
			return nil, fmt.Errorf("cell %d,%d: %w", r, c, err)
		}
		out[r-rowStart][c-colStart] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return out, nil
}

func (s *SQLiteStore) WriteRegion(ctx context.Context, ref ports.TableRef, rowStart, colStart int, values [][]any) error {
	if rowStart < 1 || colStart < 1 {
		return fmt.Errorf("invalid region start %d,%d", rowStart, colStart)
	}
	if err := s.requireTable(ctx, ref); err != nil {
		return err
	}

	width := 0
	for _, row := range values {
		if len(row) > width {
			width = len(row)
		}
	}
	if len(values) == 0 || width == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearCells(ctx, tx, ref, rowStart, colStart, len(values), width); err != nil {
		return err
	}
	if err := insertCells(ctx, tx, ref, rowStart, colStart, values); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendRow picks the next row and writes it in one transaction.
func (s *SQLiteStore) AppendRow(ctx context.Context, ref ports.TableRef, values []any) error {
	if err := s.requireTable(ctx, ref); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	last, err := maxOf(ctx, tx, ref, "row_no")
	if err != nil {
		return err
	}
	if err := insertCells(ctx, tx, ref, last+1, 1, [][]any{values}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteRows(ctx context.Context, ref ports.TableRef, startRow, count int) error {
	if startRow < 1 || count < 0 {
		return fmt.Errorf("invalid row range %d+%d", startRow, count)
	}
	if err := s.requireTable(ctx, ref); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	scope := sq.Eq{"workbook_id": ref.Workbook, "sheet": ref.Table}

	del, args, err := sq.Delete("cells").
		Where(scope).
		Where(sq.GtOrEq{"row_no": startRow}).
		Where(sq.Lt{"row_no": startRow + count}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}

	// Shift in two steps through negative row numbers so the primary key
	// never collides mid-update.
	shift, args, err := sq.Update("cells").
		Set("row_no", sq.Expr("-(row_no - ?)", count)).
		Where(scope).
		Where(sq.GtOrEq{"row_no": startRow + count}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build shift rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, shift, args...); err != nil {
		return fmt.Errorf("shift rows: %w", err)
	}
	restore, args, err := sq.Update("cells").
		Set("row_no", sq.Expr("-row_no")).
		Where(scope).
		Where(sq.Lt{"row_no": 0}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build restore rows: %w", err)
	}
	if _, err := tx.ExecContext(ctx, restore, args...); err != nil {
		return fmt.Errorf("restore rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearRegion(ctx context.Context, ref ports.TableRef, rowStart, colStart, rowCount, colCount int) error {
	if err := checkRegion(rowStart, colStart, rowCount, colCount); err != nil {
		return err
	}
	if err := s.requireTable(ctx, ref); err != nil {
		return err
	}
	return clearCells(ctx, s.db, ref, rowStart, colStart, rowCount, colCount)
}

func (s *SQLiteStore) LastRow(ctx context.Context, ref ports.TableRef) (int, error) {
	if err := s.requireTable(ctx, ref); err != nil {
		return 0, err
	}
	return maxOf(ctx, s.db, ref, "row_no")
}

func (s *SQLiteStore) LastColumn(ctx context.Context, ref ports.TableRef) (int, error) {
	if err := s.requireTable(ctx, ref); err != nil {
		return 0, err
	}
	return maxOf(ctx, s.db, ref, "col_no")
}

// StyleTable flags the sheet as styled; rendering is left to whoever exports it.
func (s *SQLiteStore) StyleTable(ctx context.Context, ref ports.TableRef) error {
	query, args, err := sq.Update("sheets").
		Set("styled", 1).
		Where(sq.Eq{"workbook_id": ref.Workbook, "name": ref.Table}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build style update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("style table: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func maxOf(ctx context.Context, db queryer, ref ports.TableRef, column string) (int, error) {
	query, args, err := sq.Select("COALESCE(MAX(" + column + "), 0)").
		From("cells").
		Where(sq.Eq{"workbook_id": ref.Workbook, "sheet": ref.Table}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build max query: %w", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("query max %s: %w", column, err)
	}
	return n, nil
}

func (s *SQLiteStore) requireTable(ctx context.Context, ref ports.TableRef) error {
	query, args, err := sq.Select("COUNT(*)").
		From("sheets").
		Where(sq.Eq{"workbook_id": ref.Workbook, "name": ref.Table}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build sheet query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return fmt.Errorf("query sheet: %w", err)
	}
	if n > 0 {
		return nil
	}

	exists, err := s.WorkbookExists(ctx, ref.Workbook)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%s: %w", ref.Workbook, ports.ErrWorkbookNotFound)
	}
	return fmt.Errorf("%s: %w", ref, ports.ErrTableNotFound)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func clearCells(ctx context.Context, db execer, ref ports.TableRef, rowStart, colStart, rowCount, colCount int) error {
	query, args, err := sq.Delete("cells").
		Where(sq.Eq{"workbook_id": ref.Workbook, "sheet": ref.Table}).
		Where(sq.GtOrEq{"row_no": rowStart}).
		Where(sq.Lt{"row_no": rowStart + rowCount}).
		Where(sq.GtOrEq{"col_no": colStart}).
		Where(sq.Lt{"col_no": colStart + colCount}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear region: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear region: %w", err)
	}
	return nil
}

func insertCells(ctx context.Context, db execer, ref ports.TableRef, rowStart, colStart int, values [][]any) error {
	builder := newCellInsert()
	pending := 0

	flush := func() error {
		if pending == 0 {
			return nil
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return fmt.Errorf("build insert cells: %w", err)
		}
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert cells: %w", err)
		}
		builder = newCellInsert()
		pending = 0
		return nil
	}

	for i, row := range values {
		for j, v := range row {
			if domain.IsBlank(v) {
				continue
			}
			kind, text, err := encodeCell(v)
			if err != nil {
				return fmt.Errorf("cell %d,%d: %w", rowStart+i, colStart+j, err)
			}
			builder = builder.Values(ref.Workbook, ref.Table, rowStart+i, colStart+j, kind, text)
			pending++
			if pending == insertBatch {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

func newCellInsert() sq.InsertBuilder {
	return sq.Insert("cells").
		Columns("workbook_id", "sheet", "row_no", "col_no", "kind", "value").
		Suffix("ON CONFLICT(workbook_id, sheet, row_no, col_no) DO UPDATE SET kind = excluded.kind, value = excluded.value")
}

func encodeCell(v any) (string, string, error) {
	switch val := v.(type) {
	case string:
		return kindString, val, nil
	case int:
		return kindInt, strconv.Itoa(val), nil
	case int64:
		return kindInt, strconv.FormatInt(val, 10), nil
	case float64:
		return kindFloat, strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		return kindBool, strconv.FormatBool(val), nil
	case time.Time:
		return kindTime, val.Format(time.RFC3339Nano), nil
	}
	return "", "", fmt.Errorf("unsupported cell type %T", v)
}

func decodeCell(kind, value string) (any, error) {
	switch kind {
	case kindString:
		return value, nil
	case kindInt:
		return strconv.ParseInt(value, 10, 64)
	case kindFloat:
		return strconv.ParseFloat(value, 64)
	case kindBool:
		return strconv.ParseBool(value)
	case kindTime:
		return time.Parse(time.RFC3339Nano, value)
	}
	return nil, errors.New("unknown cell kind " + kind)
}

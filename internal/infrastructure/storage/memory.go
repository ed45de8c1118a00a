package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"NoteSalesTracker/internal/domain"
	"NoteSalesTracker/internal/ports"
)

// MemoryStore keeps workbooks in process memory. It backs dry runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	workbooks map[string]*memWorkbook
}

type memWorkbook struct {
	title  string
	tables map[string]*memTable
}

type memTable struct {
	rows   [][]any
	styled bool
}

var (
	_ ports.TableStore          = (*MemoryStore)(nil)
	_ ports.WorkbookProvisioner = (*MemoryStore)(nil)
	_ ports.Styler              = (*MemoryStore)(nil)
)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workbooks: map[string]*memWorkbook{}}
}

// EnsureWorkbook registers id if it is not known yet.
func (m *MemoryStore) EnsureWorkbook(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workbooks[id]; !ok {
		m.workbooks[id] = &memWorkbook{title: title, tables: map[string]*memTable{}}
	}
	return nil
}

// RemoveWorkbook drops a workbook, simulating a deleted spreadsheet.
func (m *MemoryStore) RemoveWorkbook(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workbooks, id)
}

func (m *MemoryStore) WorkbookExists(_ context.Context, workbook string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workbooks[workbook]
	return ok, nil
}

func (m *MemoryStore) CreateWorkbook(_ context.Context, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.workbooks[id] = &memWorkbook{title: title, tables: map[string]*memTable{}}
	return id, nil
}

func (m *MemoryStore) EnsureTable(_ context.Context, ref ports.TableRef, header []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wb, ok := m.workbooks[ref.Workbook]
	if !ok {
		return false, fmt.Errorf("%s: %w", ref.Workbook, ports.ErrWorkbookNotFound)
	}
	if _, ok := wb.tables[ref.Table]; ok {
		return false, nil
	}
	t := &memTable{}
	if len(header) > 0 {
		row := make([]any, len(header))
		for i, h := range header {
			row[i] = h
		}
		t.rows = append(t.rows, row)
	}
	wb.tables[ref.Table] = t
	return true, nil
}

func (m *MemoryStore) ReadRegion(_ context.Context, ref ports.TableRef, rowStart, colStart, rowCount, colCount int) ([][]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(ref)
	if err != nil {
		return nil, err
	}
	if err := checkRegion(rowStart, colStart, rowCount, colCount); err != nil {
		return nil, err
	}

	out := make([][]any, rowCount)
	for i := range out {
		out[i] = make([]any, colCount)
		r := rowStart - 1 + i
		if r >= len(t.rows) {
			continue
		}
		for j := range out[i] {
			c := colStart - 1 + j
			if c < len(t.rows[r]) {
				out[i][j] = t.rows[r][c]
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) WriteRegion(_ context.Context, ref ports.TableRef, rowStart, colStart int, values [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(ref)
	if err != nil {
		return err
	}
	if rowStart < 1 || colStart < 1 {
		return fmt.Errorf("invalid region start %d,%d", rowStart, colStart)
	}
	for i, vals := range values {
		t.set(rowStart+i, colStart, vals)
	}
	t.trim()
	return nil
}

func (m *MemoryStore) AppendRow(_ context.Context, ref ports.TableRef, values []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(ref)
	if err != nil {
		return err
	}
	t.set(t.lastRow()+1, 1, values)
	return nil
}

func (m *MemoryStore) DeleteRows(_ context.Context, ref ports.TableRef, startRow, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(ref)
	if err != nil {
		return err
	}
	if startRow < 1 || count < 0 {
		return fmt.Errorf("invalid row range %d+%d", startRow, count)
	}
	from := startRow - 1
	if from >= len(t.rows) || count == 0 {
		return nil
	}
	to := from + count
	if to > len(t.rows) {
		to = len(t.rows)
	}
	t.rows = append(t.rows[:from], t.rows[to:]...)
	return nil
}

func (m *MemoryStore) ClearRegion(_ context.Context, ref ports.TableRef, rowStart, colStart, rowCount, colCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(ref)
	if err != nil {
		return err
	}
	if err := checkRegion(rowStart, colStart, rowCount, colCount); err != nil {
		return err
	}
	for i := 0; i < rowCount; i++ {
		r := rowStart - 1 + i
		if r >= len(t.rows) {
			break
		}
		for j := 0; j < colCount; j++ {
			c := colStart - 1 + j
			if c < len(t.rows[r]) {
				t.rows[r][c] = nil
			}
		}
	}
	t.trim()
	return nil
}

func (m *MemoryStore) LastRow(_ context.Context, ref ports.TableRef) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(ref)
	if err != nil {
		return 0, err
	}
	return t.lastRow(), nil
}

func (m *MemoryStore) LastColumn(_ context.Context, ref ports.TableRef) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(ref)
	if err != nil {
		return 0, err
	}
	last := 0
	for _, row := range t.rows {
		for c := len(row); c > last; c-- {
			if !domain.IsBlank(row[c-1]) {
				last = c
				break
			}
		}
	}
	return last, nil
}

// StyleTable records that the table was styled; memory tables have no visual form.
func (m *MemoryStore) StyleTable(_ context.Context, ref ports.TableRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.table(ref)
	if err != nil {
		return err
	}
	t.styled = true
	return nil
}

func (m *MemoryStore) table(ref ports.TableRef) (*memTable, error) {
	wb, ok := m.workbooks[ref.Workbook]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref.Workbook, ports.ErrWorkbookNotFound)
	}
	t, ok := wb.tables[ref.Table]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ports.ErrTableNotFound)
	}
	return t, nil
}

func (t *memTable) set(row, col int, values []any) {
	for len(t.rows) < row {
		t.rows = append(t.rows, nil)
	}
	r := t.rows[row-1]
	if need := col - 1 + len(values); len(r) < need {
		grown := make([]any, need)
		copy(grown, r)
		r = grown
	}
	copy(r[col-1:], values)
	t.rows[row-1] = r
}

func (t *memTable) lastRow() int {
	for r := len(t.rows); r > 0; r-- {
		for _, v := range t.rows[r-1] {
			if !domain.IsBlank(v) {
				return r
			}
		}
	}
	return 0
}

// trim drops trailing blank rows so appends land right after the content.
func (t *memTable) trim() {
	t.rows = t.rows[:t.lastRow()]
}

func checkRegion(rowStart, colStart, rowCount, colCount int) error {
	if rowStart < 1 || colStart < 1 || rowCount < 0 || colCount < 0 {
		return fmt.Errorf("invalid region %d,%d %dx%d", rowStart, colStart, rowCount, colCount)
	}
	return nil
}

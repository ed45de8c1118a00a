package storage

const schema = `
CREATE TABLE IF NOT EXISTS workbooks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sheets (
	workbook_id TEXT NOT NULL,
	name TEXT NOT NULL,
	styled INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (workbook_id, name),
	FOREIGN KEY (workbook_id) REFERENCES workbooks(id) ON DELETE CASCADE
);

-- Only non-blank cells are stored; a missing cell reads back as nil.
CREATE TABLE IF NOT EXISTS cells (
	workbook_id TEXT NOT NULL,
	sheet TEXT NOT NULL,
	row_no INTEGER NOT NULL,
	col_no INTEGER NOT NULL,
	kind TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (workbook_id, sheet, row_no, col_no)
);
CREATE INDEX IF NOT EXISTS idx_cells_row ON cells(workbook_id, sheet, row_no);
`

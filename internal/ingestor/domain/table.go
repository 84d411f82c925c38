package domain

// MemTable is the in-memory buffer accumulating ingested rows between
// flushes. It is owned exclusively by one ingestion coordinator goroutine
// and therefore carries no locking; Version increases by one with every
// flush promotion.
type MemTable struct {
	version int64
	rows    []Row
}

// NewMemTable returns an empty table at the given version.
func NewMemTable(version int64) *MemTable {
	return &MemTable{version: version}
}

// Version returns the table's monotonic version.
func (t *MemTable) Version() int64 { return t.version }

// RowCount returns the number of buffered rows.
func (t *MemTable) RowCount() int { return len(t.rows) }

// Append buffers an entire batch. Capacity policy lives in the
// coordinator; the table itself never refuses rows.
func (t *MemTable) Append(rows []Row) {
	t.rows = append(t.rows, rows...)
}

// Rows exposes the buffered rows for reprojection. The coordinator stops
// writing to a table before handing it to a flush, so no copy is made.
func (t *MemTable) Rows() []Row { return t.rows }

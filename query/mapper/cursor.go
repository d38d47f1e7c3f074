package mapper

import "reflect"

// Column describes one result column.
type Column struct {
	Name string
	// Type is the Go type the provider reports for the column; nil when
	// unknown.
	Type reflect.Type
	// DatabaseType is the provider's type name, e.g. "TEXT" or "INT8".
	DatabaseType string
	// Large marks text and binary columns read in chunks when the cursor
	// supports it.
	Large bool
}

// Cursor is a forward-only result cursor.
type Cursor interface {
	Columns() []Column
	Next() bool
	IsNull(i int) bool
	Value(i int) (any, error)
	Err() error
}

// ChunkReader is implemented by cursors that can read a large column of
// the current row in bounded pieces. ReadChunk copies bytes starting at
// offset into buf and returns the count copied; zero means the end.
type ChunkReader interface {
	ReadChunk(i int, offset int64, buf []byte) (int, error)
}

// SliceCursor is an in-memory Cursor over rows of values. A nil value is a
// null cell.
type SliceCursor struct {
	columns []Column
	rows    [][]any
	pos     int
}

// NewSliceCursor creates a cursor over rows.
func NewSliceCursor(columns []Column, rows [][]any) *SliceCursor {
	return &SliceCursor{columns: columns, rows: rows, pos: -1}
}

func (c *SliceCursor) Columns() []Column { return c.columns }

func (c *SliceCursor) Next() bool {
	if c.pos+1 >= len(c.rows) {
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) IsNull(i int) bool { return c.rows[c.pos][i] == nil }

func (c *SliceCursor) Value(i int) (any, error) { return c.rows[c.pos][i], nil }

func (c *SliceCursor) Err() error { return nil }

// ReadChunk implements ChunkReader for string and []byte cells.
func (c *SliceCursor) ReadChunk(i int, offset int64, buf []byte) (int, error) {
	return CopyChunk(c.rows[c.pos][i], offset, buf), nil
}

// CopyChunk copies the bytes of a string or []byte cell from offset. It is
// the ReadChunk body for cursors that buffer the current row.
func CopyChunk(cell any, offset int64, buf []byte) int {
	var data []byte
	switch v := cell.(type) {
	case []byte:
		data = v
	case string:
		if offset >= int64(len(v)) {
			return 0
		}
		return copy(buf, v[offset:])
	default:
		return 0
	}
	if offset >= int64(len(data)) {
		return 0
	}
	return copy(buf, data[offset:])
}

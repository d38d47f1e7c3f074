package executor

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/satishbabariya/exprsql/query/mapper"
)

// Rows is a forward-only cursor over one or more result sets.
type Rows interface {
	mapper.Cursor
	mapper.ChunkReader
	// NextResultSet advances to the next result set.
	NextResultSet() bool
	Close() error
}

var (
	anyType   = reflect.TypeOf((*any)(nil)).Elem()
	bytesType = reflect.TypeOf([]byte(nil))
)

// scanTypes maps the nullable wrappers drivers report as scan types to the
// value type they hold.
var scanTypes = map[reflect.Type]reflect.Type{
	reflect.TypeOf(sql.NullString{}):  reflect.TypeOf(""),
	reflect.TypeOf(sql.NullInt64{}):   reflect.TypeOf(int64(0)),
	reflect.TypeOf(sql.NullInt32{}):   reflect.TypeOf(int32(0)),
	reflect.TypeOf(sql.NullInt16{}):   reflect.TypeOf(int16(0)),
	reflect.TypeOf(sql.NullByte{}):    reflect.TypeOf(byte(0)),
	reflect.TypeOf(sql.NullFloat64{}): reflect.TypeOf(float64(0)),
	reflect.TypeOf(sql.NullBool{}):    reflect.TypeOf(false),
	reflect.TypeOf(sql.NullTime{}):    reflect.TypeOf(time.Time{}),
	reflect.TypeOf(sql.RawBytes{}):    bytesType,
}

// largeTypes are database type names read in chunks.
var largeTypes = map[string]bool{
	"TEXT": true, "NTEXT": true, "CLOB": true, "NCLOB": true, "BLOB": true,
	"BYTEA": true, "IMAGE": true, "LONGTEXT": true, "MEDIUMTEXT": true,
	"LONGBLOB": true, "MEDIUMBLOB": true, "VARBINARY": true,
}

// sqlRows adapts *sql.Rows to Rows. Each row is scanned into boxed values so
// that nulls are visible before conversion.
type sqlRows struct {
	rows    *sql.Rows
	columns []mapper.Column
	values  []any
	ptrs    []any
	err     error
}

func newRows(rows *sql.Rows) (*sqlRows, error) {
	r := &sqlRows{rows: rows}
	if err := r.describe(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	return r, nil
}

func (r *sqlRows) describe() error {
	types, err := r.rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("failed to get columns: %w", err)
	}
	r.columns = make([]mapper.Column, len(types))
	for i, ct := range types {
		dbType := strings.ToUpper(ct.DatabaseTypeName())
		r.columns[i] = mapper.Column{
			Name:         ct.Name(),
			Type:         normalizeScanType(ct.ScanType()),
			DatabaseType: dbType,
			Large:        largeTypes[dbType],
		}
	}
	r.values = make([]any, len(types))
	r.ptrs = make([]any, len(types))
	for i := range r.values {
		r.ptrs[i] = &r.values[i]
	}
	return nil
}

func normalizeScanType(t reflect.Type) reflect.Type {
	if t == nil || t == anyType {
		return nil
	}
	if v, ok := scanTypes[t]; ok {
		return v
	}
	if t.Kind() == reflect.Ptr {
		return normalizeScanType(t.Elem())
	}
	return t
}

func (r *sqlRows) Columns() []mapper.Column { return r.columns }

func (r *sqlRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	for i := range r.values {
		r.values[i] = nil
	}
	if err := r.rows.Scan(r.ptrs...); err != nil {
		r.err = fmt.Errorf("failed to scan row: %w", err)
		return false
	}
	return true
}

func (r *sqlRows) IsNull(i int) bool { return r.values[i] == nil }

func (r *sqlRows) Value(i int) (any, error) { return r.values[i], nil }

func (r *sqlRows) ReadChunk(i int, offset int64, buf []byte) (int, error) {
	return mapper.CopyChunk(r.values[i], offset, buf), nil
}

func (r *sqlRows) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

func (r *sqlRows) NextResultSet() bool {
	if r.err != nil || !r.rows.NextResultSet() {
		return false
	}
	if err := r.describe(); err != nil {
		r.err = err
		return false
	}
	return true
}

func (r *sqlRows) Close() error { return r.rows.Close() }

// ResultSet is an in-memory result set.
type ResultSet struct {
	Columns []mapper.Column
	Rows    [][]any
}

// MemoryRows serves result sets held in memory. It backs test doubles and
// cached replays.
type MemoryRows struct {
	sets []ResultSet
	cur  *mapper.SliceCursor
	idx  int
}

// NewMemoryRows creates a cursor over sets, positioned on the first one.
func NewMemoryRows(sets ...ResultSet) *MemoryRows {
	m := &MemoryRows{sets: sets}
	m.open(0)
	return m
}

func (m *MemoryRows) open(i int) {
	m.idx = i
	if i < len(m.sets) {
		m.cur = mapper.NewSliceCursor(m.sets[i].Columns, m.sets[i].Rows)
		return
	}
	m.cur = mapper.NewSliceCursor(nil, nil)
}

func (m *MemoryRows) Columns() []mapper.Column { return m.cur.Columns() }
func (m *MemoryRows) Next() bool               { return m.cur.Next() }
func (m *MemoryRows) IsNull(i int) bool        { return m.cur.IsNull(i) }
func (m *MemoryRows) Value(i int) (any, error) { return m.cur.Value(i) }
func (m *MemoryRows) Err() error               { return nil }
func (m *MemoryRows) Close() error             { return nil }

func (m *MemoryRows) ReadChunk(i int, offset int64, buf []byte) (int, error) {
	return m.cur.ReadChunk(i, offset, buf)
}

func (m *MemoryRows) NextResultSet() bool {
	if m.idx+1 >= len(m.sets) {
		return false
	}
	m.open(m.idx + 1)
	return true
}

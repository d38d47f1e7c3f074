// Package mapper materializes rows of a forward-only cursor into typed
// values. Mapping plans are built once per (type, column signature) and
// reused for every row of every query with that shape.
package mapper

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// DefaultBufferSize is the chunk size for large column reads.
const DefaultBufferSize = 8192

// Materializer builds and caches mapping plans. It is safe for concurrent
// use.
type Materializer struct {
	mu         sync.RWMutex
	plans      map[planKey]*Plan
	bufferSize int
}

type planKey struct {
	typ       reflect.Type
	signature string
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithBufferSize sets the chunk size for large column reads.
func WithBufferSize(n int) Option {
	return func(m *Materializer) {
		if n > 0 {
			m.bufferSize = n
		}
	}
}

// New creates a materializer.
func New(opts ...Option) *Materializer {
	m := &Materializer{
		plans:      make(map[planKey]*Plan),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Plan returns the mapping plan for t over columns, building it on first
// use.
func (m *Materializer) Plan(t reflect.Type, columns []Column) (*Plan, error) {
	key := planKey{typ: t, signature: signature(columns)}
	m.mu.RLock()
	plan, ok := m.plans[key]
	m.mu.RUnlock()
	if ok {
		return plan, nil
	}

	plan, err := m.build(t, columns)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.plans[key] = plan
	m.mu.Unlock()
	return plan, nil
}

// Len returns the number of cached plans.
func (m *Materializer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plans)
}

func signature(columns []Column) string {
	var sb strings.Builder
	for _, c := range columns {
		sb.WriteString(c.Name)
		sb.WriteByte(':')
		if c.Type != nil {
			sb.WriteString(c.Type.String())
		}
		sb.WriteByte(';')
	}
	return sb.String()
}

// step fills one field from one column.
type step struct {
	field    []int
	property string
	column   int
	name     string
	from     reflect.Type
	to       reflect.Type
	large    bool
	conv     converter
}

// Record is a row read without a target type, keyed by column name. A
// null cell is a nil value.
type Record map[string]any

var recordType = reflect.TypeOf(Record(nil))

// Plan maps the current row of a cursor onto a value of one type.
type Plan struct {
	typ        reflect.Type
	steps      []step
	bufferSize int
	record     bool
}

// Type returns the type the plan produces.
func (p *Plan) Type() reflect.Type { return p.typ }

func (m *Materializer) build(t reflect.Type, columns []Column) (*Plan, error) {
	plan := &Plan{typ: t, bufferSize: m.bufferSize}

	if t == recordType {
		plan.record = true
		for i, c := range columns {
			plan.steps = append(plan.steps, step{property: c.Name, column: i, name: c.Name, from: c.Type, to: anyType})
		}
		return plan, nil
	}

	if !isEntity(t) {
		if len(columns) == 0 {
			return nil, fmt.Errorf("no columns to map onto %v", t)
		}
		st, err := newStep(nil, t.String(), t, 0, columns[0])
		if err != nil {
			return nil, err
		}
		plan.steps = []step{st}
		return plan, nil
	}

	fold := cases.Fold()
	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		key := fold.String(c.Name)
		if _, dup := byName[key]; !dup {
			byName[key] = i
		}
	}

	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		names := []string{f.Name}
		if tag, ok := f.Tag.Lookup("db"); ok {
			name, _, _ := strings.Cut(tag, ",")
			if name == "-" {
				continue
			}
			if name != "" {
				names = append([]string{name}, names...)
			}
		}
		for _, name := range names {
			idx, ok := byName[fold.String(name)]
			if !ok {
				continue
			}
			st, err := newStep(f.Index, f.Name, f.Type, idx, columns[idx])
			if err != nil {
				return nil, err
			}
			plan.steps = append(plan.steps, st)
			break
		}
	}
	return plan, nil
}

func newStep(field []int, property string, to reflect.Type, idx int, col Column) (step, error) {
	conv, err := rule(col.Type, to)
	if err != nil {
		return step{}, &ConversionError{Property: property, Column: col.Name, From: col.Type, To: to, Err: err}
	}
	if col.Type != nil {
		conv = typed(col.Type, conv)
	}
	return step{
		field:    field,
		property: property,
		column:   idx,
		name:     col.Name,
		from:     col.Type,
		to:       to,
		large:    col.Large && (to.Kind() == reflect.String || to == bytesType),
		conv:     conv,
	}, nil
}

// isEntity reports whether t maps column by column rather than from a
// single column.
func isEntity(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	switch {
	case t == timeType, t == uuidType:
		return false
	case reflect.PointerTo(t).Implements(scannerType):
		return false
	}
	return true
}

// Materialize maps the cursor's current row onto a new value.
func (p *Plan) Materialize(cur Cursor) (reflect.Value, error) {
	if p.record {
		return p.materializeRecord(cur)
	}
	out := reflect.New(p.typ).Elem()
	for i := range p.steps {
		st := &p.steps[i]
		if cur.IsNull(st.column) {
			continue
		}
		val, err := p.read(cur, st)
		if err != nil {
			return reflect.Value{}, err
		}
		dst := out
		if st.field != nil {
			dst = out.FieldByIndex(st.field)
		}
		if err := st.conv(val, dst); err != nil {
			if errors.Is(err, errNoRule) {
				err = nil
			}
			return reflect.Value{}, &ConversionError{
				Property: st.property,
				Column:   st.name,
				From:     reflect.TypeOf(val),
				To:       st.to,
				Err:      err,
			}
		}
	}
	return out, nil
}

func (p *Plan) materializeRecord(cur Cursor) (reflect.Value, error) {
	rec := make(Record, len(p.steps))
	for i := range p.steps {
		st := &p.steps[i]
		if cur.IsNull(st.column) {
			rec[st.name] = nil
			continue
		}
		val, err := cur.Value(st.column)
		if err != nil {
			return reflect.Value{}, err
		}
		rec[st.name] = val
	}
	return reflect.ValueOf(rec), nil
}

// read fetches a cell, concatenating bounded chunks for large columns when
// the cursor supports it.
func (p *Plan) read(cur Cursor, st *step) (any, error) {
	chunks, ok := cur.(ChunkReader)
	if !st.large || !ok {
		return cur.Value(st.column)
	}

	buf := make([]byte, p.bufferSize)
	var data []byte
	var offset int64
	for {
		n, err := chunks.ReadChunk(st.column, offset, buf)
		if err != nil {
			return nil, fmt.Errorf("read column %s: %w", st.name, err)
		}
		if n == 0 {
			break
		}
		data = append(data, buf[:n]...)
		offset += int64(n)
	}
	if st.to.Kind() == reflect.String {
		return string(data), nil
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// ReadAll materializes every remaining row into a []t.
func (m *Materializer) ReadAll(cur Cursor, t reflect.Type) (reflect.Value, error) {
	plan, err := m.Plan(t, cur.Columns())
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.MakeSlice(reflect.SliceOf(t), 0, 0)
	for cur.Next() {
		v, err := plan.Materialize(cur)
		if err != nil {
			return reflect.Value{}, err
		}
		out = reflect.Append(out, v)
	}
	if err := cur.Err(); err != nil {
		return reflect.Value{}, err
	}
	return out, nil
}

// Read materializes every remaining row into a []T.
func Read[T any](m *Materializer, cur Cursor) ([]T, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	rows, err := m.ReadAll(cur, t)
	if err != nil {
		return nil, err
	}
	return rows.Interface().([]T), nil
}

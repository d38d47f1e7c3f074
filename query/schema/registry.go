package schema

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Resolver provides the table schema of an entity type.
type Resolver interface {
	Resolve(t reflect.Type) (*TableSchema, error)
}

// Registry is a concurrent Resolver. Schemas are registered explicitly or
// derived on first use and then reused for the lifetime of the registry.
type Registry struct {
	mu     sync.RWMutex
	tables map[reflect.Type]*TableSchema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[reflect.Type]*TableSchema)}
}

// Register associates ts with entity type t. Column field indexes are bound
// by logical name when the caller left them empty.
func (r *Registry) Register(t reflect.Type, ts *TableSchema) error {
	t = indirect(t)
	if err := bindFields(t, ts); err != nil {
		return err
	}
	if err := ts.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.tables[t] = ts
	r.mu.Unlock()
	return nil
}

// Register associates ts with T.
func Register[T any](r *Registry, ts *TableSchema) error {
	return r.Register(reflect.TypeOf((*T)(nil)).Elem(), ts)
}

// Resolve returns the registered schema for t, deriving and caching one from
// the exported fields when none is registered.
func (r *Registry) Resolve(t reflect.Type) (*TableSchema, error) {
	t = indirect(t)
	r.mu.RLock()
	ts, ok := r.tables[t]
	r.mu.RUnlock()
	if ok {
		return ts, nil
	}

	ts, err := Derive(t)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	if existing, ok := r.tables[t]; ok {
		ts = existing
	} else {
		r.tables[t] = ts
	}
	r.mu.Unlock()
	return ts, nil
}

// Derive builds a schema from the exported fields of struct type t. The
// table takes the type name and columns take field names. A `db` struct tag
// overrides the physical name and may carry the options "key" and "auto":
//
//	ID int `db:"id,key,auto"`
func Derive(t reflect.Type) (*TableSchema, error) {
	t = indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, &ResolveError{Type: t, Reason: "not a struct"}
	}

	ts := &TableSchema{Name: t.Name()}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		col := ColumnSchema{Name: f.Name, Index: f.Index, Type: f.Type}
		if tag, ok := f.Tag.Lookup("db"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			col.DBName = parts[0]
			for _, opt := range parts[1:] {
				switch strings.TrimSpace(opt) {
				case "key":
					if ts.Key != "" {
						return nil, &ResolveError{Type: t, Reason: "more than one key column"}
					}
					ts.Key = f.Name
				case "auto":
					col.AutoGenerated = true
				}
			}
		}
		ts.Columns = append(ts.Columns, col)
	}
	if len(ts.Columns) == 0 {
		return nil, &ResolveError{Type: t, Reason: "no exported fields"}
	}
	if key, ok := ts.KeyColumn(); ok {
		ts.KeyAutoGenerated = key.AutoGenerated
	}
	return ts, nil
}

func bindFields(t reflect.Type, ts *TableSchema) error {
	if t.Kind() != reflect.Struct {
		return &ResolveError{Type: t, Reason: "not a struct"}
	}
	for i := range ts.Columns {
		c := &ts.Columns[i]
		if c.Index != nil {
			continue
		}
		f, ok := t.FieldByName(c.Name)
		if !ok {
			return fmt.Errorf("table %s: %v has no field %s", ts.Name, t, c.Name)
		}
		c.Index = f.Index
		c.Type = f.Type
	}
	return nil
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

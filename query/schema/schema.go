// Package schema describes how entity types map onto tables and columns.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrSchemaNotResolved is returned when no schema is registered for a type
// and none can be derived from its exported fields.
var ErrSchemaNotResolved = errors.New("schema not resolved")

// ResolveError reports the type whose schema could not be resolved.
type ResolveError struct {
	Type   reflect.Type
	Reason string
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	return fmt.Sprintf("schema not resolved for %v: %s", e.Type, e.Reason)
}

// Is reports whether target is ErrSchemaNotResolved.
func (e *ResolveError) Is(target error) bool {
	return target == ErrSchemaNotResolved
}

// ColumnSchema maps one entity field onto a table column.
type ColumnSchema struct {
	// Name is the logical name, unique within the table. It matches the
	// member names used in expressions.
	Name string
	// DBName is the physical column name; empty means Name.
	DBName string
	// Index is the field index path on the entity struct.
	Index []int
	// Type is the Go type of the field.
	Type reflect.Type
	// AutoGenerated marks columns the database fills in (identity, defaults).
	AutoGenerated bool
}

// Physical returns the column name used in SQL.
func (c *ColumnSchema) Physical() string {
	if c.DBName != "" {
		return c.DBName
	}
	return c.Name
}

// TableSchema maps an entity type onto a table.
type TableSchema struct {
	Name    string
	Schema  string
	Columns []ColumnSchema
	// Key is the logical name of the key column; empty when the table has none.
	Key string
	// KeyAutoGenerated marks a key assigned by the database on insert.
	KeyAutoGenerated bool
}

// Column returns the column with the given logical name.
func (t *TableSchema) Column(name string) (*ColumnSchema, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// KeyColumn returns the key column, if any.
func (t *TableSchema) KeyColumn() (*ColumnSchema, bool) {
	if t.Key == "" {
		return nil, false
	}
	return t.Column(t.Key)
}

// validate enforces unique logical names and a resolvable key.
func (t *TableSchema) validate() error {
	if t.Name == "" {
		return fmt.Errorf("table has no name")
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	if t.Key != "" {
		if _, ok := seen[t.Key]; !ok {
			return fmt.Errorf("table %s: key column %s is not a column", t.Name, t.Key)
		}
	}
	return nil
}

package commands

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/satishbabariya/exprsql/query/schema"
)

var columnTypes = map[string]reflect.Type{
	"int":     reflect.TypeOf(int64(0)),
	"int32":   reflect.TypeOf(int32(0)),
	"float":   reflect.TypeOf(float64(0)),
	"decimal": reflect.TypeOf(float64(0)),
	"string":  reflect.TypeOf(""),
	"text":    reflect.TypeOf(""),
	"bool":    reflect.TypeOf(false),
	"time":    reflect.TypeOf(time.Time{}),
	"date":    reflect.TypeOf(time.Time{}),
	"uuid":    reflect.TypeOf(uuid.UUID{}),
	"bytes":   reflect.TypeOf([]byte(nil)),
}

// dynamicEntity builds a struct type for a table described on the command
// line and registers its schema. Each spec is name[:type[:column]]; the
// type defaults to string and the column to name.
func dynamicEntity(table, key string, specs []string) (reflect.Type, *schema.Registry, error) {
	if table == "" {
		return nil, nil, fmt.Errorf("--table is required")
	}
	if len(specs) == 0 {
		return nil, nil, fmt.Errorf("table %s needs at least one --column", table)
	}

	fields := make([]reflect.StructField, 0, len(specs))
	columns := make([]schema.ColumnSchema, 0, len(specs))
	keyName := ""
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		name := strings.TrimSpace(parts[0])
		if name == "" || !isIdent(name) {
			return nil, nil, fmt.Errorf("invalid column name %q", name)
		}
		typeName := "string"
		if len(parts) > 1 && parts[1] != "" {
			typeName = strings.ToLower(parts[1])
		}
		t, ok := columnTypes[typeName]
		if !ok {
			return nil, nil, fmt.Errorf("column %s: unknown type %q", name, typeName)
		}
		dbName := name
		if len(parts) > 2 && parts[2] != "" {
			dbName = parts[2]
		}

		field := exported(name)
		if seen[field] {
			return nil, nil, fmt.Errorf("duplicate column %s", name)
		}
		seen[field] = true
		fields = append(fields, reflect.StructField{
			Name: field,
			Type: t,
			Tag:  reflect.StructTag(fmt.Sprintf(`db:%q`, dbName)),
		})
		columns = append(columns, schema.ColumnSchema{Name: field, DBName: dbName})
		if key != "" && strings.EqualFold(key, name) {
			keyName = field
		}
	}
	if key != "" && keyName == "" {
		return nil, nil, fmt.Errorf("key %s is not a column", key)
	}

	t := reflect.StructOf(fields)
	registry := schema.NewRegistry()
	ts := &schema.TableSchema{Name: table, Columns: columns, Key: keyName}
	if err := registry.Register(t, ts); err != nil {
		return nil, nil, err
	}
	return t, registry, nil
}

func exported(name string) string {
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func isIdent(name string) bool {
	for i, r := range name {
		if unicode.IsLetter(r) || (i > 0 && (r == '_' || unicode.IsDigit(r))) {
			continue
		}
		return false
	}
	return true
}

package dialect

import (
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"
	"github.com/hashicorp/go-version"
)

// returningSince is the first SQLite release with INSERT ... RETURNING.
var returningSince = version.Must(version.NewVersion("3.35.0"))

type sqlite struct {
	base
	version *version.Version
}

func newSQLite(v *version.Version) *sqlite {
	return &sqlite{
		version: v,
		base: base{
			id:       SQLite,
			prefix:   "?",
			format:   sq.Question,
			open:     `"`,
			close:    `"`,
			minDate:  "'0001-01-01 00:00:00'",
			maxDate:  "'9999-12-31 23:59:59'",
			now:      "datetime('now')",
			coalesce: "IFNULL",
			types: map[reflect.Kind]string{
				reflect.Bool:    "INTEGER",
				reflect.Int:     "INTEGER",
				reflect.Int8:    "INTEGER",
				reflect.Int16:   "INTEGER",
				reflect.Int32:   "INTEGER",
				reflect.Int64:   "INTEGER",
				reflect.Uint8:   "INTEGER",
				reflect.Uint16:  "INTEGER",
				reflect.Uint32:  "INTEGER",
				reflect.Uint64:  "INTEGER",
				reflect.Float32: "REAL",
				reflect.Float64: "REAL",
				reflect.String:  "TEXT",
			},
			special: map[reflect.Type]string{
				timeType:  "TEXT",
				uuidType:  "TEXT",
				bytesType: "BLOB",
			},
		},
	}
}

// supportsReturning reports whether the declared server version has
// RETURNING. An undeclared version is assumed to be current.
func (s *sqlite) supportsReturning() bool {
	return s.version == nil || s.version.GreaterThanOrEqual(returningSince)
}

// Insert uses RETURNING where available and falls back to
// last_insert_rowid().
func (s *sqlite) Insert(table string, columns []string, values []any, key string) (*InsertStatement, error) {
	if key == "" || s.supportsReturning() {
		return s.base.Insert(table, columns, values, key)
	}
	query, args, err := s.insertSQL(table, columns, values, "")
	if err != nil {
		return nil, err
	}
	return &InsertStatement{
		SQL:      query,
		Args:     args,
		Key:      KeyLastInsertID,
		KeyQuery: "SELECT last_insert_rowid()",
	}, nil
}

// ColumnTransform compares dates through datetime() since SQLite stores
// them as text.
func (s *sqlite) ColumnTransform(column string, t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		return fmt.Sprintf("datetime(%s)", column)
	}
	return column
}

// Page renders LIMIT/OFFSET; SQLite needs LIMIT -1 for an open upper bound.
func (s *sqlite) Page(offset, limit int, ordered bool) string {
	if offset > 0 && limit <= 0 {
		return fmt.Sprintf("LIMIT -1 OFFSET %d", offset)
	}
	return s.base.Page(offset, limit, ordered)
}

package dialect

import (
	"reflect"

	sq "github.com/Masterminds/squirrel"
)

type duckdb struct{ base }

func newDuckDB() *duckdb {
	return &duckdb{base{
		id:       DuckDB,
		prefix:   "$",
		numbered: true,
		format:   sq.Dollar,
		open:     `"`,
		close:    `"`,
		minDate:  "TIMESTAMP '0001-01-01 00:00:00'",
		maxDate:  "TIMESTAMP '9999-12-31 23:59:59'",
		now:      "current_timestamp",
		coalesce: "COALESCE",
		power:    "POW",
		types: map[reflect.Kind]string{
			reflect.Bool:    "BOOLEAN",
			reflect.Int:     "BIGINT",
			reflect.Int8:    "TINYINT",
			reflect.Int16:   "SMALLINT",
			reflect.Int32:   "INTEGER",
			reflect.Int64:   "BIGINT",
			reflect.Uint8:   "UTINYINT",
			reflect.Uint16:  "USMALLINT",
			reflect.Uint32:  "UINTEGER",
			reflect.Uint64:  "UBIGINT",
			reflect.Float32: "FLOAT",
			reflect.Float64: "DOUBLE",
			reflect.String:  "VARCHAR",
		},
		special: map[reflect.Type]string{
			timeType:  "TIMESTAMP",
			uuidType:  "UUID",
			bytesType: "BLOB",
		},
	}}
}

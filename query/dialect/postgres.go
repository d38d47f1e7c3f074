package dialect

import (
	"reflect"

	sq "github.com/Masterminds/squirrel"
)

type postgres struct{ base }

func newPostgres() *postgres {
	return &postgres{base{
		id:       Postgres,
		prefix:   "$",
		numbered: true,
		format:   sq.Dollar,
		open:     `"`,
		close:    `"`,
		minDate:  "TIMESTAMP '0001-01-01 00:00:00'",
		maxDate:  "TIMESTAMP '9999-12-31 23:59:59'",
		now:      "CURRENT_TIMESTAMP",
		coalesce: "COALESCE",
		power:    "POWER",
		types: map[reflect.Kind]string{
			reflect.Bool:    "boolean",
			reflect.Int:     "bigint",
			reflect.Int8:    "smallint",
			reflect.Int16:   "smallint",
			reflect.Int32:   "integer",
			reflect.Int64:   "bigint",
			reflect.Uint8:   "smallint",
			reflect.Uint16:  "integer",
			reflect.Uint32:  "bigint",
			reflect.Uint64:  "numeric",
			reflect.Float32: "real",
			reflect.Float64: "double precision",
			reflect.String:  "text",
		},
		special: map[reflect.Type]string{
			timeType:  "timestamptz",
			uuidType:  "uuid",
			bytesType: "bytea",
		},
	}}
}

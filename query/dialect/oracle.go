package dialect

import (
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

type oracle struct{ base }

func newOracle() *oracle {
	return &oracle{base{
		id:       Oracle,
		prefix:   ":",
		numbered: true,
		format:   sq.Colon,
		open:     `"`,
		close:    `"`,
		minDate:  "TO_DATE('0001-01-01', 'YYYY-MM-DD')",
		maxDate:  "TO_DATE('9999-12-31 23:59:59', 'YYYY-MM-DD HH24:MI:SS')",
		now:      "SYSTIMESTAMP",
		modFn:    functionMod,
		coalesce: "NVL",
		power:    "POWER",
		types: map[reflect.Kind]string{
			reflect.Bool:    "NUMBER(1)",
			reflect.Int:     "NUMBER(19)",
			reflect.Int8:    "NUMBER(3)",
			reflect.Int16:   "NUMBER(5)",
			reflect.Int32:   "NUMBER(10)",
			reflect.Int64:   "NUMBER(19)",
			reflect.Uint8:   "NUMBER(3)",
			reflect.Uint16:  "NUMBER(5)",
			reflect.Uint32:  "NUMBER(10)",
			reflect.Uint64:  "NUMBER(20)",
			reflect.Float32: "BINARY_FLOAT",
			reflect.Float64: "BINARY_DOUBLE",
			reflect.String:  "NVARCHAR2(2000)",
		},
		special: map[reflect.Type]string{
			timeType:  "TIMESTAMP",
			uuidType:  "RAW(16)",
			bytesType: "BLOB",
		},
	}}
}

// Insert wraps the statement in an anonymous block binding the generated
// key to a trailing OUT parameter.
func (o *oracle) Insert(table string, columns []string, values []any, key string) (*InsertStatement, error) {
	query, args, err := o.insertSQL(table, columns, values, "")
	if err != nil {
		return nil, err
	}
	if key == "" {
		return &InsertStatement{SQL: query, Args: args}, nil
	}
	out := o.Placeholder(len(args) + 1)
	return &InsertStatement{
		SQL:      fmt.Sprintf("BEGIN %s RETURNING %s INTO %s; END;", query, o.Quote(key), out),
		Args:     args,
		Key:      KeyOutParam,
		OutParam: out,
	}, nil
}

// Update renders UPDATE table alias SET ... WHERE ...
func (o *oracle) Update(table, alias string, set []Assignment, where string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s %s SET %s", table, alias, joinAssignments(set, alias))
	appendWhere(&sb, where)
	return sb.String()
}

// Delete renders DELETE FROM table alias WHERE ...
func (o *oracle) Delete(table, alias, where string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s %s", table, alias)
	appendWhere(&sb, where)
	return sb.String()
}

// Page renders OFFSET/FETCH.
func (o *oracle) Page(offset, limit int, _ bool) string {
	return offsetFetch(offset, limit)
}

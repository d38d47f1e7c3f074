package dialect

import (
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

type mysql struct{ base }

func newMySQL() *mysql {
	return &mysql{base{
		id:       MySQL,
		prefix:   "?",
		format:   sq.Question,
		open:     "`",
		close:    "`",
		minDate:  "'1000-01-01 00:00:00'",
		maxDate:  "'9999-12-31 23:59:59'",
		now:      "NOW()",
		concatFn: functionConcat,
		modFn:    functionMod,
		coalesce: "IFNULL",
		power:    "POW",
		types: map[reflect.Kind]string{
			reflect.Bool:    "TINYINT(1)",
			reflect.Int:     "BIGINT",
			reflect.Int8:    "TINYINT",
			reflect.Int16:   "SMALLINT",
			reflect.Int32:   "INT",
			reflect.Int64:   "BIGINT",
			reflect.Uint8:   "TINYINT UNSIGNED",
			reflect.Uint16:  "SMALLINT UNSIGNED",
			reflect.Uint32:  "INT UNSIGNED",
			reflect.Uint64:  "BIGINT UNSIGNED",
			reflect.Float32: "FLOAT",
			reflect.Float64: "DOUBLE",
			reflect.String:  "VARCHAR(255)",
		},
		special: map[reflect.Type]string{
			timeType:  "DATETIME",
			uuidType:  "CHAR(36)",
			bytesType: "BLOB",
		},
	}}
}

// Insert hands the key back through LAST_INSERT_ID().
func (m *mysql) Insert(table string, columns []string, values []any, key string) (*InsertStatement, error) {
	query, args, err := m.insertSQL(table, columns, values, "")
	if err != nil {
		return nil, err
	}
	st := &InsertStatement{SQL: query, Args: args}
	if key != "" {
		st.Key = KeyLastInsertID
		st.KeyQuery = "SELECT LAST_INSERT_ID()"
	}
	return st, nil
}

// Update renders the multi-table form: UPDATE table alias SET alias.col = ...
func (m *mysql) Update(table, alias string, set []Assignment, where string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s %s SET %s", table, alias, joinAssignments(set, alias))
	appendWhere(&sb, where)
	return sb.String()
}

// Delete renders DELETE alias FROM table alias WHERE ...
func (m *mysql) Delete(table, alias, where string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE %s FROM %s %s", alias, table, alias)
	appendWhere(&sb, where)
	return sb.String()
}

// Page renders LIMIT offset, count. MySQL has no OFFSET without LIMIT.
func (m *mysql) Page(offset, limit int, _ bool) string {
	switch {
	case offset <= 0 && limit <= 0:
		return ""
	case offset <= 0:
		return fmt.Sprintf("LIMIT %d", limit)
	case limit <= 0:
		return fmt.Sprintf("LIMIT %d, 18446744073709551615", offset)
	}
	return fmt.Sprintf("LIMIT %d, %d", offset, limit)
}

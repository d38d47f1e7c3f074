package dialect

import (
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

type sqlserver struct{ base }

func newSQLServer() *sqlserver {
	return &sqlserver{base{
		id:       SQLServer,
		prefix:   "@p",
		numbered: true,
		format:   sq.AtP,
		open:     "[",
		close:    "]",
		minDate:  "'1753-01-01T00:00:00'",
		maxDate:  "'9999-12-31T23:59:59'",
		now:      "GETDATE()",
		concatFn: func(parts []string) string { return "(" + strings.Join(parts, " + ") + ")" },
		coalesce: "ISNULL",
		power:    "POWER",
		types: map[reflect.Kind]string{
			reflect.Bool:    "bit",
			reflect.Int:     "bigint",
			reflect.Int8:    "smallint",
			reflect.Int16:   "smallint",
			reflect.Int32:   "int",
			reflect.Int64:   "bigint",
			reflect.Uint8:   "tinyint",
			reflect.Uint16:  "int",
			reflect.Uint32:  "bigint",
			reflect.Uint64:  "decimal(20,0)",
			reflect.Float32: "real",
			reflect.Float64: "float",
			reflect.String:  "nvarchar(max)",
		},
		special: map[reflect.Type]string{
			timeType:  "datetime2",
			uuidType:  "uniqueidentifier",
			bytesType: "varbinary(max)",
		},
	}}
}

// Insert places OUTPUT INSERTED.key between the column list and VALUES.
func (s *sqlserver) Insert(table string, columns []string, values []any, key string) (*InsertStatement, error) {
	query, args, err := s.insertSQL(table, columns, values, "")
	if err != nil {
		return nil, err
	}
	st := &InsertStatement{SQL: query, Args: args}
	if key != "" {
		output := "OUTPUT INSERTED." + s.Quote(key)
		if idx := strings.Index(query, " VALUES "); idx >= 0 {
			st.SQL = query[:idx] + " " + output + query[idx:]
		} else {
			st.SQL = strings.Replace(query, " DEFAULT VALUES", " "+output+" DEFAULT VALUES", 1)
		}
		st.Key = KeyReturning
	}
	return st, nil
}

// Update renders UPDATE alias SET ... FROM table alias WHERE ...
func (s *sqlserver) Update(table, alias string, set []Assignment, where string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s SET %s FROM %s %s", alias, joinAssignments(set, ""), table, alias)
	appendWhere(&sb, where)
	return sb.String()
}

// Delete renders DELETE alias FROM table alias WHERE ...
func (s *sqlserver) Delete(table, alias, where string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE %s FROM %s %s", alias, table, alias)
	appendWhere(&sb, where)
	return sb.String()
}

// Page renders OFFSET/FETCH, which T-SQL only accepts after an ORDER BY.
func (s *sqlserver) Page(offset, limit int, ordered bool) string {
	clause := offsetFetch(offset, limit)
	if clause == "" || ordered {
		return clause
	}
	return "ORDER BY (SELECT NULL) " + clause
}

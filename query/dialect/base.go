package dialect

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/satishbabariya/exprsql/query/expr"
)

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
)

// base carries the rendering shared by all dialects. Dialect types embed it
// and override the statements whose shape differs.
type base struct {
	id       ID
	prefix   string
	numbered bool
	format   sq.PlaceholderFormat

	open, close string // identifier quotes

	minDate, maxDate, now string

	// concatFn renders string concatenation; nil means the infix "||".
	concatFn func(parts []string) string
	// modFn renders modulo; nil means the infix "%".
	modFn    func(l, r string) string
	coalesce string
	// power is the power function name; empty means unsupported.
	power string

	types map[reflect.Kind]string
	// special maps non-kind types such as time.Time.
	special map[reflect.Type]string
}

func (b *base) ID() ID { return b.id }

func (b *base) BindPrefix() string { return b.prefix }

func (b *base) Placeholder(ordinal int) string {
	if !b.numbered {
		return b.prefix
	}
	return b.prefix + strconv.Itoa(ordinal)
}

func (b *base) ParamName(ordinal int) string {
	return "p" + strconv.Itoa(ordinal)
}

func (b *base) Quote(ident string) string {
	escaped := strings.ReplaceAll(ident, b.close, b.close+b.close)
	return b.open + escaped + b.close
}

func (b *base) Table(schema, name string) string {
	if schema == "" {
		return b.Quote(name)
	}
	return b.Quote(schema) + "." + b.Quote(name)
}

func (b *base) MinDate() string { return b.minDate }
func (b *base) MaxDate() string { return b.maxDate }
func (b *base) Now() string     { return b.now }

func (b *base) Concat(parts ...string) string {
	if b.concatFn != nil {
		return b.concatFn(parts)
	}
	return "(" + strings.Join(parts, " || ") + ")"
}

func (b *base) FormatOperator(op expr.BinaryOp, l, r string) (string, error) {
	switch op {
	case expr.And:
		return fmt.Sprintf("(%s AND %s)", l, r), nil
	case expr.Or:
		return fmt.Sprintf("(%s OR %s)", l, r), nil
	case expr.Equal:
		return fmt.Sprintf("%s = %s", l, r), nil
	case expr.NotEqual:
		return fmt.Sprintf("%s <> %s", l, r), nil
	case expr.GreaterThan:
		return fmt.Sprintf("%s > %s", l, r), nil
	case expr.LessThan:
		return fmt.Sprintf("%s < %s", l, r), nil
	case expr.GreaterOrEqual:
		return fmt.Sprintf("%s >= %s", l, r), nil
	case expr.LessOrEqual:
		return fmt.Sprintf("%s <= %s", l, r), nil
	case expr.Divide:
		return fmt.Sprintf("(%s / %s)", l, r), nil
	case expr.Multiply:
		return fmt.Sprintf("(%s * %s)", l, r), nil
	case expr.Subtract:
		return fmt.Sprintf("(%s - %s)", l, r), nil
	case expr.Add:
		return fmt.Sprintf("(%s + %s)", l, r), nil
	case expr.Modulo:
		if b.modFn != nil {
			return b.modFn(l, r), nil
		}
		return fmt.Sprintf("(%s %% %s)", l, r), nil
	case expr.Coalesce:
		return fmt.Sprintf("%s(%s, %s)", b.coalesce, l, r), nil
	case expr.Power:
		if b.power == "" {
			break
		}
		return fmt.Sprintf("%s(%s, %s)", b.power, l, r), nil
	}
	return "", &OperatorError{Dialect: b.id, Op: op}
}

func (b *base) ColumnTransform(column string, _ reflect.Type) string {
	return column
}

func (b *base) TypeCode(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	if code, ok := b.special[t]; ok {
		return code
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		if code, ok := b.special[bytesType]; ok {
			return code
		}
	}
	if code, ok := b.types[t.Kind()]; ok {
		return code
	}
	return "unknown"
}

// insertSQL renders the column list and VALUES clause through squirrel,
// which also numbers the placeholders in the dialect's bind syntax. table
// is quoted; suffix is appended verbatim.
func (b *base) insertSQL(table string, columns []string, values []any, suffix string) (string, []any, error) {
	if len(columns) == 0 {
		query := "INSERT INTO " + table + " DEFAULT VALUES"
		if suffix != "" {
			query += " " + suffix
		}
		return query, nil, nil
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = b.Quote(c)
	}
	ins := sq.Insert(table).
		Columns(quoted...).
		Values(values...).
		PlaceholderFormat(b.format)
	if suffix != "" {
		ins = ins.Suffix(suffix)
	}
	query, args, err := ins.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build insert into %s: %w", table, err)
	}
	return query, args, nil
}

// Insert renders INSERT ... RETURNING key, the default for dialects that
// support it.
func (b *base) Insert(table string, columns []string, values []any, key string) (*InsertStatement, error) {
	var suffix string
	mode := KeyNone
	if key != "" {
		suffix = "RETURNING " + b.Quote(key)
		mode = KeyReturning
	}
	query, args, err := b.insertSQL(table, columns, values, suffix)
	if err != nil {
		return nil, err
	}
	return &InsertStatement{SQL: query, Args: args, Key: mode}, nil
}

// Update renders UPDATE table AS alias SET ... WHERE ...
func (b *base) Update(table, alias string, set []Assignment, where string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s AS %s SET %s", table, alias, joinAssignments(set, ""))
	appendWhere(&sb, where)
	return sb.String()
}

// Delete renders DELETE FROM table AS alias WHERE ...
func (b *base) Delete(table, alias, where string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s AS %s", table, alias)
	appendWhere(&sb, where)
	return sb.String()
}

// Page renders LIMIT/OFFSET.
func (b *base) Page(offset, limit int, _ bool) string {
	var parts []string
	if limit > 0 {
		parts = append(parts, fmt.Sprintf("LIMIT %d", limit))
	}
	if offset > 0 {
		parts = append(parts, fmt.Sprintf("OFFSET %d", offset))
	}
	return strings.Join(parts, " ")
}

// offsetFetch renders the ANSI OFFSET/FETCH paging clause.
func offsetFetch(offset, limit int) string {
	if offset <= 0 && limit <= 0 {
		return ""
	}
	clause := fmt.Sprintf("OFFSET %d ROWS", offset)
	if limit > 0 {
		clause += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", limit)
	}
	return clause
}

func joinAssignments(set []Assignment, qualifier string) string {
	parts := make([]string, len(set))
	for i, a := range set {
		col := a.Column
		if qualifier != "" {
			col = qualifier + "." + col
		}
		parts[i] = col + " = " + a.Value
	}
	return strings.Join(parts, ", ")
}

func appendWhere(sb *strings.Builder, where string) {
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
}

func functionConcat(parts []string) string {
	return "CONCAT(" + strings.Join(parts, ", ") + ")"
}

func functionMod(l, r string) string {
	return "MOD(" + l + ", " + r + ")"
}

var bytesType = reflect.TypeOf([]byte(nil))

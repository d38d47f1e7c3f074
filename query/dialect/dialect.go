// Package dialect renders the backend-specific parts of SQL: bind
// variables, identifier quoting, operators, date literals, paging and the
// INSERT, UPDATE and DELETE statement shapes.
package dialect

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/satishbabariya/exprsql/query/expr"
)

// ID identifies a dialect.
type ID string

const (
	Postgres  ID = "postgres"
	MySQL     ID = "mysql"
	SQLite    ID = "sqlite"
	SQLServer ID = "sqlserver"
	Oracle    ID = "oracle"
	DuckDB    ID = "duckdb"
)

// ErrUnsupportedOperator is returned when a dialect has no rendering for a
// binary operator.
var ErrUnsupportedOperator = errors.New("unsupported operator")

// ErrUnknownDialect is returned by New for an unregistered ID.
var ErrUnknownDialect = errors.New("unknown dialect")

// OperatorError names the dialect and operator that could not be rendered.
type OperatorError struct {
	Dialect ID
	Op      expr.BinaryOp
}

// Error implements the error interface.
func (e *OperatorError) Error() string {
	return fmt.Sprintf("unsupported operator %s for dialect %s", e.Op, e.Dialect)
}

// Is reports whether target is ErrUnsupportedOperator.
func (e *OperatorError) Is(target error) bool {
	return target == ErrUnsupportedOperator
}

// KeyReturn describes how an INSERT hands back the generated key.
type KeyReturn int

const (
	// KeyNone returns nothing.
	KeyNone KeyReturn = iota
	// KeyReturning yields the key as a one-row result set.
	KeyReturning
	// KeyLastInsertID reads the key from the driver's last-insert-id.
	KeyLastInsertID
	// KeyOutParam binds the key to a trailing OUT parameter.
	KeyOutParam
)

// InsertStatement is a rendered INSERT.
type InsertStatement struct {
	SQL  string
	Args []any
	Key  KeyReturn
	// KeyQuery is the trailing last-insert-id SELECT for KeyLastInsertID.
	KeyQuery string
	// OutParam is the placeholder of the OUT parameter for KeyOutParam.
	OutParam string
}

// Text renders the statement as a single batch.
func (s *InsertStatement) Text() string {
	if s.KeyQuery != "" {
		return s.SQL + "; " + s.KeyQuery
	}
	return s.SQL
}

// Assignment is one SET clause item of an UPDATE. Column is already quoted
// and Value is rendered SQL.
type Assignment struct {
	Column string
	Value  string
}

// Formatter is the per-dialect rendering strategy. Implementations are
// stateless and safe for concurrent use.
type Formatter interface {
	ID() ID
	// BindPrefix is the bind variable prefix, e.g. "$" or "@p".
	BindPrefix() string
	// Placeholder renders the bind variable for a 1-based ordinal.
	Placeholder(ordinal int) string
	// ParamName is the name of the parameter at a 1-based ordinal.
	ParamName(ordinal int) string
	Quote(ident string) string
	// Table quotes a table name, qualified by schema when one is given.
	Table(schema, name string) string

	MinDate() string
	MaxDate() string
	Now() string
	Concat(parts ...string) string
	FormatOperator(op expr.BinaryOp, left, right string) (string, error)
	// ColumnTransform wraps a column reference whose Go type needs
	// conversion on this backend.
	ColumnTransform(column string, t reflect.Type) string
	// TypeCode is the backend type name used for a Go type.
	TypeCode(t reflect.Type) string

	// Insert, Update and Delete take a table already rendered by Table.
	Insert(table string, columns []string, values []any, key string) (*InsertStatement, error)
	Update(table, alias string, set []Assignment, where string) string
	Delete(table, alias, where string) string
	// Page renders the paging clause. ordered reports whether the statement
	// already has an ORDER BY.
	Page(offset, limit int, ordered bool) string
}

type options struct {
	version *version.Version
}

// Option configures a Formatter.
type Option func(*options) error

// WithServerVersion declares the backend server version so that features
// newer than it are not emitted.
func WithServerVersion(v string) Option {
	return func(o *options) error {
		parsed, err := version.NewVersion(v)
		if err != nil {
			return fmt.Errorf("invalid server version %q: %w", v, err)
		}
		o.version = parsed
		return nil
	}
}

var registry = map[ID]func(options) Formatter{
	Postgres:  func(options) Formatter { return newPostgres() },
	MySQL:     func(options) Formatter { return newMySQL() },
	SQLite:    func(o options) Formatter { return newSQLite(o.version) },
	SQLServer: func(options) Formatter { return newSQLServer() },
	Oracle:    func(options) Formatter { return newOracle() },
	DuckDB:    func(options) Formatter { return newDuckDB() },
}

var aliases = map[string]ID{
	"postgresql": Postgres,
	"pgx":        Postgres,
	"sqlite3":    SQLite,
	"mssql":      SQLServer,
}

// New returns the formatter for id.
func New(id ID, opts ...Option) (Formatter, error) {
	id = Normalize(string(id))
	ctor, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, id)
	}
	var o options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	return ctor(o), nil
}

// MustNew is like New but panics on error.
func MustNew(id ID, opts ...Option) Formatter {
	f, err := New(id, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Normalize maps provider names such as "postgresql" or "sqlite3" to an ID.
func Normalize(name string) ID {
	name = strings.ToLower(strings.TrimSpace(name))
	if id, ok := aliases[name]; ok {
		return id
	}
	return ID(name)
}

// IDs lists the registered dialects.
func IDs() []ID {
	ids := make([]ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

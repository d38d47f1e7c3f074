package executor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2" // DuckDB driver
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver (pgx)
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/satishbabariya/exprsql/query/dialect"
)

// ErrProceduresUnsupported is returned when a stored procedure command is
// sent to a backend without procedures.
var ErrProceduresUnsupported = errors.New("stored procedures are not supported")

// ErrUnknownBackend is returned by Lookup for an unregistered name.
var ErrUnknownBackend = errors.New("unknown backend")

// BackendDriver binds a database/sql driver to its dialect.
type BackendDriver interface {
	// DriverName is the name the driver registered with database/sql.
	DriverName() string
	Dialect() dialect.ID
	// VersionQuery returns the server version as a single value; empty
	// when the backend has no such query.
	VersionQuery() string
	// Procedure renders a call of the named procedure with n bound
	// arguments.
	Procedure(f dialect.Formatter, name string, n int) (string, error)
}

type backend struct {
	driver  string
	dialect dialect.ID
	version string
	call    func(name, args string) string
}

func (b *backend) DriverName() string   { return b.driver }
func (b *backend) Dialect() dialect.ID  { return b.dialect }
func (b *backend) VersionQuery() string { return b.version }

func (b *backend) Procedure(f dialect.Formatter, name string, n int) (string, error) {
	if b.call == nil {
		return "", fmt.Errorf("%w by %s", ErrProceduresUnsupported, b.driver)
	}
	args := make([]string, n)
	for i := range args {
		args[i] = f.Placeholder(i + 1)
	}
	return b.call(name, strings.Join(args, ", ")), nil
}

func selectFrom(name, args string) string { return "SELECT * FROM " + name + "(" + args + ")" }

var (
	driversMu sync.RWMutex
	drivers   = map[string]BackendDriver{
		"postgres": &backend{driver: "postgres", dialect: dialect.Postgres, version: "SHOW server_version", call: selectFrom},
		"pgx":      &backend{driver: "pgx", dialect: dialect.Postgres, version: "SHOW server_version", call: selectFrom},
		"mysql": &backend{driver: "mysql", dialect: dialect.MySQL, version: "SELECT VERSION()", call: func(name, args string) string {
			return "CALL " + name + "(" + args + ")"
		}},
		"sqlite3": &backend{driver: "sqlite3", dialect: dialect.SQLite, version: "SELECT sqlite_version()"},
		"duckdb":  &backend{driver: "duckdb", dialect: dialect.DuckDB, version: "SELECT version()", call: selectFrom},
	}
	backendAliases = map[string]string{
		"postgresql": "postgres",
		"sqlite":     "sqlite3",
	}
)

// Register makes a backend available under name. Registering an existing
// name replaces it.
func Register(name string, d BackendDriver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = d
}

// Lookup returns the backend registered under name.
func Lookup(name string) (BackendDriver, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := backendAliases[name]; ok {
		name = alias
	}
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return d, nil
}

// Backends lists the registered backend names.
func Backends() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

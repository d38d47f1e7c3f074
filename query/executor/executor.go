// Package executor runs compiled statements and scripts against a
// database/sql backend and exposes the results as forward-only cursors.
package executor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/satishbabariya/exprsql/internal/debug"
	"github.com/satishbabariya/exprsql/query/dialect"
)

// Executor is the collaborator that runs commands. Implementations must be
// safe for concurrent use.
type Executor interface {
	Dialect() dialect.Formatter
	// Query runs a command that returns rows. The caller closes the rows.
	Query(ctx context.Context, cmd Command) (Rows, error)
	// Exec runs a command that returns no rows. For an INSERT carrying a
	// key clause the generated key is returned in Result.Key.
	Exec(ctx context.Context, cmd Command) (Result, error)
}

// Result reports the outcome of Exec.
type Result struct {
	RowsAffected int64
	Key          any
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// DB is an Executor over a *sql.DB or, inside a transaction, a *sql.Tx.
type DB struct {
	db        *sql.DB
	q         querier
	backend   BackendDriver
	formatter dialect.Formatter
	logger    *slog.Logger

	prepare   bool
	stmtCache map[string]*sql.Stmt
	cacheMu   sync.RWMutex
}

// Option configures a DB.
type Option func(*DB)

// WithPreparedStatements caches a prepared statement per distinct SQL text.
func WithPreparedStatements(enable bool) Option {
	return func(d *DB) { d.prepare = enable }
}

// WithLogger sets the executor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) { d.logger = logger }
}

// WithFormatter overrides the formatter chosen from the backend dialect.
func WithFormatter(f dialect.Formatter) Option {
	return func(d *DB) { d.formatter = f }
}

// Open connects to dsn through the named backend. The server version is
// probed so that the formatter only emits supported syntax.
func Open(ctx context.Context, backendName, dsn string, opts ...Option) (*DB, error) {
	b, err := Lookup(backendName)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(b.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", backendName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", backendName, err)
	}

	var dialectOpts []dialect.Option
	if v := serverVersion(ctx, db, b); v != "" {
		dialectOpts = append(dialectOpts, dialect.WithServerVersion(v))
	}
	f, err := dialect.New(b.Dialect(), dialectOpts...)
	if err != nil {
		// An unparsable version string falls back to the modern syntax.
		f, err = dialect.New(b.Dialect())
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return New(db, b, append([]Option{WithFormatter(f)}, opts...)...)
}

// New wraps an open database. The formatter defaults to the backend's
// dialect without a declared server version.
func New(db *sql.DB, b BackendDriver, opts ...Option) (*DB, error) {
	d := &DB{
		db:        db,
		q:         db,
		backend:   b,
		logger:    debug.Logger(),
		stmtCache: make(map[string]*sql.Stmt),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.formatter == nil {
		f, err := dialect.New(b.Dialect())
		if err != nil {
			return nil, err
		}
		d.formatter = f
	}
	return d, nil
}

func serverVersion(ctx context.Context, db *sql.DB, b BackendDriver) string {
	query := b.VersionQuery()
	if query == "" {
		return ""
	}
	var v string
	if err := db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return ""
	}
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Dialect implements Executor.
func (d *DB) Dialect() dialect.Formatter { return d.formatter }

// Backend returns the backend driver.
func (d *DB) Backend() BackendDriver { return d.backend }

// DB returns the underlying database.
func (d *DB) DB() *sql.DB { return d.db }

// text resolves the SQL to send for cmd.
func (d *DB) text(cmd Command) (string, error) {
	if cmd.Kind != CommandStoredProcedure {
		return cmd.Text, nil
	}
	return d.backend.Procedure(d.formatter, strings.TrimSpace(cmd.Text), len(cmd.Params))
}

// Query implements Executor.
func (d *DB) Query(ctx context.Context, cmd Command) (Rows, error) {
	text, err := d.text(cmd)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("executing query", "sql", text, "kind", cmd.Kind, "params", len(cmd.Params))

	var rows *sql.Rows
	if stmt, ok, err := d.cachedStmt(ctx, text); err != nil {
		return nil, err
	} else if ok {
		rows, err = stmt.QueryContext(ctx, cmd.Args()...)
		if err != nil {
			return nil, fmt.Errorf("query execution failed: %w", err)
		}
	} else {
		rows, err = d.q.QueryContext(ctx, text, cmd.Args()...)
		if err != nil {
			return nil, fmt.Errorf("query execution failed: %w", err)
		}
	}
	return newRows(rows)
}

// Exec implements Executor.
func (d *DB) Exec(ctx context.Context, cmd Command) (Result, error) {
	text, err := d.text(cmd)
	if err != nil {
		return Result{}, err
	}
	args := cmd.Args()
	d.logger.Debug("executing statement", "sql", text, "kind", cmd.Kind, "params", len(args), "key", cmd.Key)

	switch cmd.Key {
	case dialect.KeyReturning:
		var key any
		if err := d.q.QueryRowContext(ctx, text, args...).Scan(&key); err != nil {
			return Result{}, fmt.Errorf("insert failed: %w", err)
		}
		return Result{RowsAffected: 1, Key: key}, nil

	case dialect.KeyOutParam:
		var key any
		args = append(args, sql.Out{Dest: &key})
		res, err := d.q.ExecContext(ctx, text, args...)
		if err != nil {
			return Result{}, fmt.Errorf("insert failed: %w", err)
		}
		n, _ := res.RowsAffected()
		return Result{RowsAffected: n, Key: key}, nil
	}

	res, err := d.q.ExecContext(ctx, text, args...)
	if err != nil {
		return Result{}, fmt.Errorf("statement execution failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Result{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	out := Result{RowsAffected: n}
	if cmd.Key == dialect.KeyLastInsertID {
		// The trailing key query is for batch clients; database/sql reports
		// the id on the result.
		id, err := res.LastInsertId()
		if err != nil {
			return Result{}, fmt.Errorf("failed to get last insert id: %w", err)
		}
		out.Key = id
	}
	return out, nil
}

// cachedStmt gets a cached prepared statement or creates one. It reports
// false when statement caching is off or the executor is bound to a
// transaction.
func (d *DB) cachedStmt(ctx context.Context, query string) (*sql.Stmt, bool, error) {
	if !d.prepare || d.db == nil {
		return nil, false, nil
	}
	d.cacheMu.RLock()
	stmt, ok := d.stmtCache[query]
	d.cacheMu.RUnlock()
	if ok {
		return stmt, true, nil
	}

	stmt, err := d.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("failed to prepare statement: %w", err)
	}
	d.cacheMu.Lock()
	if existing, ok := d.stmtCache[query]; ok {
		_ = stmt.Close()
		stmt = existing
	} else {
		d.stmtCache[query] = stmt
	}
	d.cacheMu.Unlock()
	return stmt, true, nil
}

// ClearStmtCache closes and forgets every cached prepared statement.
func (d *DB) ClearStmtCache() {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	for _, stmt := range d.stmtCache {
		_ = stmt.Close()
	}
	d.stmtCache = make(map[string]*sql.Stmt)
}

// Close releases cached statements and closes the database.
func (d *DB) Close() error {
	d.ClearStmtCache()
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// TxFunc runs inside a transaction with an executor bound to it.
type TxFunc func(tx *DB) error

// Transaction runs fn in a transaction, committing when it returns nil and
// rolling back otherwise.
func (d *DB) Transaction(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error {
	if d.db == nil {
		return fmt.Errorf("nested transactions are not supported")
	}
	sqlTx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &DB{
		q:         sqlTx,
		backend:   d.backend,
		formatter: d.formatter,
		logger:    d.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

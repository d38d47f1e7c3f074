// Package compiler lowers expression trees into dialect-specific SQL with
// ordered bound parameters, memoizing the SQL text by structural
// fingerprint.
package compiler

import (
	"fmt"
	"log/slog"
	"reflect"
	"strconv"

	"github.com/satishbabariya/exprsql/internal/debug"
	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/satishbabariya/exprsql/query/fingerprint"
	"github.com/satishbabariya/exprsql/query/schema"
)

// MaxInClauseValues is the largest IN list the compiler emits.
const MaxInClauseValues = 1000

// Operation is the statement kind being compiled.
type Operation int

const (
	OpSelect Operation = iota
	OpCount
	OpUpdate
	OpDelete
	OpInsert
)

func (op Operation) String() string {
	switch op {
	case OpSelect:
		return "select"
	case OpCount:
		return "count"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpInsert:
		return "insert"
	default:
		return "operation(" + strconv.Itoa(int(op)) + ")"
	}
}

// Order is one ORDER BY item; Column is a logical column name.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a SELECT or COUNT.
type Query struct {
	Entity reflect.Type
	// Where filters rows; nil selects all.
	Where *expr.Lambda
	// Columns projects the result; nil selects every mapped column.
	Columns *expr.Lambda
	OrderBy []Order
	Offset  int
	Limit   int
}

// Assignment sets a logical column to a value in an UPDATE.
type Assignment struct {
	Column string
	Value  expr.Node
}

// Statement is a compiled statement ready for execution.
type Statement struct {
	SQL         string
	Params      []ParameterDescriptor
	Operation   Operation
	Fingerprint uint64
	// Static is set when the statement's values all came from inline
	// constants.
	Static bool
	// Cached is set when the SQL text came from the plan cache.
	Cached bool

	// Key, KeyQuery and OutParam describe how an INSERT returns the
	// generated key.
	Key      dialect.KeyReturn
	KeyQuery string
	OutParam string
}

// Args returns the bound values in placeholder order.
func (s *Statement) Args() []any {
	args := make([]any, len(s.Params))
	for i, p := range s.Params {
		args[i] = p.Value
	}
	return args
}

// Compiler compiles expressions for one dialect. It is safe for concurrent
// use; each call owns its own Binder.
type Compiler struct {
	dialect       dialect.Formatter
	schemas       schema.Resolver
	plans         *PlanCache
	includeValues bool
	verify        bool
	logger        *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithPlanCache shares a plan cache between compilers.
func WithPlanCache(plans *PlanCache) Option {
	return func(c *Compiler) { c.plans = plans }
}

// WithIncludeValues mixes literal values into fingerprints. Plans are then
// per value, and static plans reuse their stored values on a hit.
func WithIncludeValues(include bool) Option {
	return func(c *Compiler) { c.includeValues = include }
}

// WithCollisionCheck stores a structural digest with each plan and
// recompiles, without caching, when a hit's digest does not match.
func WithCollisionCheck(verify bool) Option {
	return func(c *Compiler) { c.verify = verify }
}

// WithLogger sets the compiler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) { c.logger = logger }
}

// New creates a compiler for f resolving table mappings through schemas.
func New(f dialect.Formatter, schemas schema.Resolver, opts ...Option) *Compiler {
	c := &Compiler{
		dialect: f,
		schemas: schemas,
		logger:  debug.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.plans == nil {
		c.plans = NewPlanCache(0)
	}
	if c.schemas == nil {
		c.schemas = schema.NewRegistry()
	}
	return c
}

// Dialect returns the compiler's formatter.
func (c *Compiler) Dialect() dialect.Formatter { return c.dialect }

// Plans returns the compiler's plan cache.
func (c *Compiler) Plans() *PlanCache { return c.plans }

// Select compiles a SELECT.
func (c *Compiler) Select(q Query) (*Statement, error) {
	return c.query(OpSelect, q)
}

// Count compiles a SELECT COUNT(*).
func (c *Compiler) Count(q Query) (*Statement, error) {
	q.Columns = nil
	q.OrderBy = nil
	q.Offset, q.Limit = 0, 0
	return c.query(OpCount, q)
}

func (c *Compiler) query(op Operation, q Query) (*Statement, error) {
	ts, err := c.schemas.Resolve(q.Entity)
	if err != nil {
		return nil, err
	}
	in := fingerprint.Input{
		Dialect:   string(c.dialect.ID()),
		Operation: op.String(),
		Entity:    q.Entity,
		Predicate: lambdaNode(q.Where),
		Selector:  lambdaNode(q.Columns),
		Extra:     pageKey(q),
	}
	return c.compile(op, in, func(p *pass) (string, error) {
		return p.selectStatement(op, ts, q)
	})
}

// Delete compiles a DELETE of the rows matching where; a nil where deletes
// every row.
func (c *Compiler) Delete(entity reflect.Type, where *expr.Lambda) (*Statement, error) {
	ts, err := c.schemas.Resolve(entity)
	if err != nil {
		return nil, err
	}
	in := fingerprint.Input{
		Dialect:   string(c.dialect.ID()),
		Operation: OpDelete.String(),
		Entity:    entity,
		Predicate: lambdaNode(where),
	}
	return c.compile(OpDelete, in, func(p *pass) (string, error) {
		return p.deleteStatement(ts, where)
	})
}

// Update compiles an UPDATE setting each assignment on the rows matching
// where.
func (c *Compiler) Update(entity reflect.Type, set []Assignment, where *expr.Lambda) (*Statement, error) {
	if len(set) == 0 {
		return nil, fmt.Errorf("update of %v has no assignments", entity)
	}
	ts, err := c.schemas.Resolve(entity)
	if err != nil {
		return nil, err
	}
	updates := make([]fingerprint.Assignment, len(set))
	for i, a := range set {
		updates[i] = fingerprint.Assignment{Column: a.Column, Value: a.Value}
	}
	in := fingerprint.Input{
		Dialect:   string(c.dialect.ID()),
		Operation: OpUpdate.String(),
		Entity:    entity,
		Predicate: lambdaNode(where),
		Updates:   updates,
	}
	return c.compile(OpUpdate, in, func(p *pass) (string, error) {
		return p.updateStatement(ts, set, where)
	})
}

// DeleteEntity compiles a DELETE of the row whose key equals the key of
// entity.
func (c *Compiler) DeleteEntity(entity any) (*Statement, error) {
	t, ts, rv, err := c.entity(entity)
	if err != nil {
		return nil, err
	}
	key, ok := ts.KeyColumn()
	if !ok {
		return nil, missingKey(ts.Name)
	}
	return c.Delete(t, byKey(t, key, rv))
}

// UpdateEntity compiles an UPDATE writing every non-key, non-generated
// column of entity to the row with the same key.
func (c *Compiler) UpdateEntity(entity any) (*Statement, error) {
	t, ts, rv, err := c.entity(entity)
	if err != nil {
		return nil, err
	}
	key, ok := ts.KeyColumn()
	if !ok {
		return nil, missingKey(ts.Name)
	}
	var set []Assignment
	for _, col := range ts.Columns {
		if col.Name == key.Name || col.AutoGenerated {
			continue
		}
		set = append(set, Assignment{Column: col.Name, Value: expr.Const(rv.FieldByIndex(col.Index).Interface())})
	}
	return c.Update(t, set, byKey(t, key, rv))
}

// Insert compiles an INSERT of entity. Generated columns are skipped and a
// generated key is returned in the dialect's way.
func (c *Compiler) Insert(entity any) (*Statement, error) {
	_, ts, rv, err := c.entity(entity)
	if err != nil {
		return nil, err
	}
	var (
		columns []string
		values  []any
	)
	for _, col := range ts.Columns {
		if col.AutoGenerated {
			continue
		}
		columns = append(columns, col.Physical())
		values = append(values, rv.FieldByIndex(col.Index).Interface())
	}
	var returning string
	if key, ok := ts.KeyColumn(); ok && ts.KeyAutoGenerated {
		returning = key.Physical()
	}

	ins, err := c.dialect.Insert(c.dialect.Table(ts.Schema, ts.Name), columns, values, returning)
	if err != nil {
		return nil, err
	}
	return &Statement{
		SQL:       ins.SQL,
		Params:    rebind(c.dialect, ins.Args),
		Operation: OpInsert,
		Key:       ins.Key,
		KeyQuery:  ins.KeyQuery,
		OutParam:  ins.OutParam,
	}, nil
}

func (c *Compiler) entity(entity any) (reflect.Type, *schema.TableSchema, reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil, reflect.Value{}, fmt.Errorf("nil entity")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, nil, reflect.Value{}, &schema.ResolveError{Type: rv.Type(), Reason: "not a struct"}
	}
	ts, err := c.schemas.Resolve(rv.Type())
	if err != nil {
		return nil, nil, reflect.Value{}, err
	}
	return rv.Type(), ts, rv, nil
}

func byKey(t reflect.Type, key *schema.ColumnSchema, rv reflect.Value) *expr.Lambda {
	x := expr.ParamOf("x", t)
	return expr.Where(x, expr.Eq(expr.Field(x, key.Name), expr.Const(rv.FieldByIndex(key.Index).Interface())))
}

// compile consults the plan cache before rendering.
func (c *Compiler) compile(op Operation, in fingerprint.Input, render func(*pass) (string, error)) (*Statement, error) {
	fp := fingerprint.Compute(in, c.includeValues)
	var digest string
	if c.verify {
		digest = fingerprint.Digest(in, c.includeValues)
	}

	cacheable := true
	if plan, ok := c.plans.Get(fp); ok {
		if !c.verify || plan.Digest == digest {
			return c.reuse(op, fp, plan, render)
		}
		c.plans.recordCollision()
		c.logger.Warn("plan fingerprint collision, compiling uncached", "fingerprint", fp, "op", op)
		cacheable = false
	}

	p := newPass(c, false)
	sql, err := render(p)
	if err != nil {
		return nil, err
	}
	if cacheable {
		plan := &Plan{SQL: sql, Static: p.static, Digest: digest}
		if p.static {
			plan.Values = p.binder.Values()
		}
		c.plans.Put(fp, plan)
	}
	c.logger.Debug("compiled statement", "fingerprint", fp, "op", op, "sql", sql)

	return &Statement{
		SQL:         sql,
		Params:      p.binder.Params(),
		Operation:   op,
		Fingerprint: fp,
		Static:      p.static,
	}, nil
}

// reuse serves a statement from a cached plan. Stored values are only
// reused when they are part of the fingerprint; otherwise the tree is
// walked again to collect the current values without rendering SQL.
func (c *Compiler) reuse(op Operation, fp uint64, plan *Plan, render func(*pass) (string, error)) (*Statement, error) {
	st := &Statement{
		SQL:         plan.SQL,
		Operation:   op,
		Fingerprint: fp,
		Static:      plan.Static,
		Cached:      true,
	}
	if plan.Static && c.includeValues {
		st.Params = rebind(c.dialect, plan.Values)
		c.logger.Debug("plan cache hit", "fingerprint", fp, "op", op, "static", true)
		return st, nil
	}

	p := newPass(c, true)
	if _, err := render(p); err != nil {
		return nil, err
	}
	st.Params = p.binder.Params()
	c.logger.Debug("plan cache hit", "fingerprint", fp, "op", op, "static", plan.Static)
	return st, nil
}

func lambdaNode(l *expr.Lambda) expr.Node {
	if l == nil {
		return nil
	}
	return l
}

func pageKey(q Query) []string {
	extra := make([]string, 0, len(q.OrderBy)+2)
	for _, o := range q.OrderBy {
		dir := "asc"
		if o.Desc {
			dir = "desc"
		}
		extra = append(extra, o.Column+" "+dir)
	}
	return append(extra, "offset="+strconv.Itoa(q.Offset), "limit="+strconv.Itoa(q.Limit))
}

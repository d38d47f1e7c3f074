// Package engine wires the compiler, executor and materializer behind typed
// fetch operations and caches their results with TTL, refresh and clear
// semantics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"

	"github.com/satishbabariya/exprsql/internal/debug"
	"github.com/satishbabariya/exprsql/query/cache"
	"github.com/satishbabariya/exprsql/query/compiler"
	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/executor"
	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/satishbabariya/exprsql/query/mapper"
	"github.com/satishbabariya/exprsql/query/schema"
	"github.com/satishbabariya/exprsql/telemetry"
)

// Engine owns a plan cache, a materializer and a result-value cache. It is
// safe for concurrent use; independent engines share no state.
type Engine struct {
	cfg       Config
	exec      executor.Executor
	formatter dialect.Formatter
	compiler  *compiler.Compiler
	mapper    *mapper.Materializer
	logger    *slog.Logger
	telemetry *telemetry.Collector

	// entries holds one entry per cached key. With a Store the entry keeps
	// only the descriptor and the value lives in the store.
	entries *cache.LRUCache
	hits    atomic.Int64
	misses  atomic.Int64
}

// entry is a cached call: the descriptor Refresh replays and, without a
// Store, its value.
type entry struct {
	desc  CallDescriptor
	value any
}

// Stats is a snapshot of the engine caches. Results counts lookups in
// either mode; its Size is the number of calls the engine tracks.
type Stats struct {
	Plans       compiler.PlanStats
	Results     cache.Stats
	Descriptors int
	Telemetry   telemetry.Snapshot
}

// New creates an engine running commands on exec. A nil exec gives an
// engine that only compiles, using the configured dialect.
func New(exec executor.Executor, opts ...Option) (*Engine, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var f dialect.Formatter
	if exec != nil {
		f = exec.Dialect()
	} else {
		if cfg.Dialect == "" {
			return nil, fmt.Errorf("engine needs an executor or a dialect")
		}
		var err error
		if f, err = dialect.New(cfg.Dialect); err != nil {
			return nil, err
		}
	}
	if cfg.Store != nil && (cfg.Codec.Marshal == nil || cfg.Codec.Unmarshal == nil) {
		return nil, fmt.Errorf("result store needs a codec")
	}
	if cfg.Logger == nil {
		cfg.Logger = debug.Logger()
	}
	if cfg.Schemas == nil {
		cfg.Schemas = schema.NewRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = DefaultConfig().Clock
	}

	// a stored value expires in the store, its descriptor only by eviction
	ttl := cfg.TTL
	if cfg.Store != nil {
		ttl = 0
	}
	comp := compiler.New(f, cfg.Schemas,
		compiler.WithPlanCache(compiler.NewPlanCache(cfg.PlanCacheSize)),
		compiler.WithIncludeValues(cfg.IncludeValues),
		compiler.WithCollisionCheck(cfg.CollisionCheck),
		compiler.WithLogger(cfg.Logger),
	)
	return &Engine{
		cfg:       *cfg,
		exec:      exec,
		formatter: f,
		compiler:  comp,
		mapper:    mapper.New(mapper.WithBufferSize(cfg.BufferSize)),
		logger:    cfg.Logger,
		telemetry: cfg.Telemetry,
		entries:   cache.NewLRUCache(cfg.ResultCacheSize, ttl, cache.WithClock(cfg.Clock)),
	}, nil
}

// Dialect returns the engine's formatter.
func (e *Engine) Dialect() dialect.Formatter { return e.formatter }

// Compiler returns the engine's compiler.
func (e *Engine) Compiler() *compiler.Compiler { return e.compiler }

// prepared is a call resolved to executable commands.
type prepared struct {
	desc         CallDescriptor
	cmds         []executor.Command
	fingerprints []uint64
	args         []any
}

func (e *Engine) prepare(d CallDescriptor) (*prepared, error) {
	p := &prepared{desc: d}
	switch src := d.Source.(type) {
	case Script:
		if d.Kind == CallOne || d.Kind == CallList || d.Kind.arity() == len(d.Types) {
			cmd := executor.Script(e.formatter, src.Text, src.Args...)
			p.cmds = []executor.Command{cmd}
			p.args = src.Args
			return p, nil
		}
	case Expr:
		if d.Kind.arity() != 1 {
			return nil, fmt.Errorf("a %s needs a script or a batch of %d expressions", d.Kind, d.Kind.arity())
		}
		q := compiler.Query(src)
		if d.Kind == CallOne && q.Limit == 0 {
			q.Limit = 1
		}
		if err := e.add(p, q, d.Types[0]); err != nil {
			return nil, err
		}
		return p, nil
	case Batch:
		if len(src) != d.Kind.arity() || d.Kind.arity() != len(d.Types) {
			return nil, fmt.Errorf("a %s needs %d expressions, got %d", d.Kind, d.Kind.arity(), len(src))
		}
		for i, q := range src {
			if err := e.add(p, compiler.Query(q), d.Types[i]); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
	return nil, fmt.Errorf("cannot run %T as a %s", d.Source, d.Kind)
}

func (e *Engine) add(p *prepared, q compiler.Query, t reflect.Type) error {
	if q.Entity == nil {
		q.Entity = t
	}
	st, err := e.compile(func() (*compiler.Statement, error) { return e.compiler.Select(q) })
	if err != nil {
		return err
	}
	p.cmds = append(p.cmds, executor.FromStatement(st))
	p.fingerprints = append(p.fingerprints, st.Fingerprint)
	p.args = append(p.args, st.Args()...)
	return nil
}

func (e *Engine) compile(fn func() (*compiler.Statement, error)) (*compiler.Statement, error) {
	st, err := fn()
	if err != nil {
		return nil, err
	}
	if st.Cached {
		e.telemetry.Inc(telemetry.PlanHit)
	} else {
		e.telemetry.Inc(telemetry.PlanMiss)
	}
	return st, nil
}

func (e *Engine) key(p *prepared, explicit string) string {
	if explicit != "" {
		return cache.ExplicitKey(explicit)
	}
	if s, ok := p.desc.Source.(Script); ok {
		return cache.ScriptKey(p.desc.shape(), s.Text, string(e.formatter.ID()), s.Args)
	}
	return cache.ExpressionKey(p.desc.shape(), p.fingerprints, p.args)
}

// fetch serves d from the result cache or runs it and caches the result.
func (e *Engine) fetch(ctx context.Context, d CallDescriptor, opts []CallOption) (any, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	p, err := e.prepare(d)
	if err != nil {
		return nil, err
	}
	if o.noCache {
		return e.run(ctx, p)
	}

	key := e.key(p, o.key)
	if !o.refresh {
		v, ok, err := e.lookup(key, d)
		if err != nil {
			return nil, err
		}
		if ok {
			e.hits.Add(1)
			e.telemetry.Inc(telemetry.ResultHit)
			e.logger.Debug("result cache hit", "key", key, "kind", d.Kind)
			return v, nil
		}
		e.misses.Add(1)
		e.telemetry.Inc(telemetry.ResultMiss)
		e.logger.Debug("result cache miss", "key", key, "kind", d.Kind)
	} else {
		e.telemetry.Inc(telemetry.ResultRefresh)
		e.logger.Debug("result cache refresh", "key", key, "kind", d.Kind)
	}

	v, err := e.run(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := e.store(key, d, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) lookup(key string, d CallDescriptor) (any, bool, error) {
	if e.cfg.Store == nil {
		v, ok := e.entries.Get(key)
		if !ok {
			return nil, false, nil
		}
		return v.(*entry).value, true, nil
	}
	data, ok, err := e.cfg.Store.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := e.decode(d, data)
	if err != nil {
		return nil, false, err
	}
	// the value may have been written by another engine or before the
	// descriptor was evicted
	e.entries.Set(key, &entry{desc: d}, 0)
	return v, true, nil
}

func (e *Engine) store(key string, d CallDescriptor, v any) error {
	if e.cfg.Store == nil {
		e.entries.Set(key, &entry{desc: d, value: v}, 0)
		return nil
	}
	e.entries.Set(key, &entry{desc: d}, 0)
	data, err := e.encode(d, v)
	if err != nil {
		return err
	}
	return e.cfg.Store.Put(key, data, e.cfg.TTL)
}

func (e *Engine) encode(d CallDescriptor, v any) ([]byte, error) {
	if d.Kind.arity() == 1 {
		return e.cfg.Codec.Marshal(v)
	}
	lists := v.([]any)
	parts := make([][]byte, len(lists))
	for i, l := range lists {
		data, err := e.cfg.Codec.Marshal(l)
		if err != nil {
			return nil, err
		}
		parts[i] = data
	}
	return e.cfg.Codec.Marshal(parts)
}

func (e *Engine) decode(d CallDescriptor, data []byte) (any, error) {
	switch {
	case d.Kind == CallOne:
		ptr := reflect.New(d.Types[0])
		if err := e.cfg.Codec.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, err
		}
		return ptr.Elem().Interface(), nil
	case d.Kind == CallList:
		return decodeList(e.cfg.Codec, data, d.Types[0])
	}
	var parts [][]byte
	if err := e.cfg.Codec.Unmarshal(data, &parts); err != nil {
		return nil, err
	}
	if len(parts) != len(d.Types) {
		return nil, fmt.Errorf("cached %s holds %d lists", d.Kind, len(parts))
	}
	lists := make([]any, len(parts))
	for i, part := range parts {
		l, err := decodeList(e.cfg.Codec, part, d.Types[i])
		if err != nil {
			return nil, err
		}
		lists[i] = l
	}
	return lists, nil
}

func decodeList(codec cache.Codec, data []byte, t reflect.Type) (any, error) {
	ptr := reflect.New(reflect.SliceOf(t))
	if err := codec.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

// run executes a prepared call and materializes its result: a T for
// CallOne, a []T for CallList and a []any of lists for tuples.
func (e *Engine) run(ctx context.Context, p *prepared) (any, error) {
	d := p.desc
	if len(p.cmds) > 1 {
		lists := make([]any, len(p.cmds))
		for i, cmd := range p.cmds {
			l, err := e.queryList(ctx, cmd, d.Types[i])
			if err != nil {
				return nil, err
			}
			lists[i] = l
		}
		return lists, nil
	}

	rows, err := e.query(ctx, p.cmds[0])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	switch d.Kind {
	case CallOne:
		return e.readOne(rows, d.Types[0])
	case CallList:
		return e.readList(rows, d.Types[0])
	}
	lists := make([]any, len(d.Types))
	for i, t := range d.Types {
		if i > 0 && !rows.NextResultSet() {
			if err := rows.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("script returned %d result sets, want %d", i, len(d.Types))
		}
		l, err := e.readList(rows, t)
		if err != nil {
			return nil, err
		}
		lists[i] = l
	}
	return lists, nil
}

func (e *Engine) queryList(ctx context.Context, cmd executor.Command, t reflect.Type) (any, error) {
	rows, err := e.query(ctx, cmd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return e.readList(rows, t)
}

func (e *Engine) readOne(rows executor.Rows, t reflect.Type) (any, error) {
	plan, err := e.mapper.Plan(t, rows.Columns())
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoRows
	}
	v, err := plan.Materialize(rows)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func (e *Engine) readList(rows executor.Rows, t reflect.Type) (any, error) {
	v, err := e.mapper.ReadAll(rows, t)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func (e *Engine) query(ctx context.Context, cmd executor.Command) (executor.Rows, error) {
	if e.exec == nil {
		return nil, ErrNoExecutor
	}
	var rows executor.Rows
	event := &QueryEvent{SQL: cmd.Text, Params: len(cmd.Params)}
	err := chain(ctx, e.cfg.Middlewares, event, func() error {
		var err error
		rows, err = e.exec.Query(ctx, cmd)
		return err
	})
	e.telemetry.Observe(telemetry.ExecutorQuery, event.Duration, err)
	if err != nil {
		if rows != nil {
			_ = rows.Close()
		}
		return nil, err
	}
	if rows == nil {
		return nil, fmt.Errorf("middleware skipped query %q", cmd.Text)
	}
	return rows, nil
}

// Refresh replays the call cached under key and overwrites its value,
// regardless of TTL. Key is an explicit call key or a key from Keys. A
// stored value whose descriptor is not held by this engine cannot be
// replayed; it is removed so that the next fetch runs the call.
func (e *Engine) Refresh(ctx context.Context, key string) error {
	hashed, d, ok := e.descriptor(key)
	if !ok {
		found, err := e.drop(key)
		if err != nil {
			return err
		}
		if !found && e.cfg.StrictKeys {
			return &CacheKeyError{Key: key}
		}
		return nil
	}
	e.telemetry.Inc(telemetry.ResultRefresh)
	e.logger.Debug("result cache refresh", "key", hashed, "kind", d.Kind)

	p, err := e.prepare(d)
	if err != nil {
		return err
	}
	v, err := e.run(ctx, p)
	if err != nil {
		return err
	}
	return e.store(hashed, d, v)
}

// Clear removes the entry cached under key.
func (e *Engine) Clear(key string) error {
	found, err := e.drop(key)
	if err != nil {
		return err
	}
	if !found && e.cfg.StrictKeys {
		return &CacheKeyError{Key: key}
	}
	return nil
}

// drop removes key from memory and from the store, whether or not the
// engine holds its descriptor.
func (e *Engine) drop(key string) (bool, error) {
	found := false
	for _, k := range candidates(key) {
		if e.entries.Invalidate(k) {
			found = true
		}
		if e.cfg.Store == nil {
			continue
		}
		if _, ok, err := e.cfg.Store.Get(k); err == nil && ok {
			found = true
		}
		if err := e.cfg.Store.Delete(k); err != nil {
			return found, err
		}
	}
	if found {
		e.telemetry.Inc(telemetry.ResultEvict)
		e.logger.Debug("result cache clear", "key", key)
	}
	return found, nil
}

// candidates are the cache keys a caller key may name: the hash of an
// explicit key, or a key from Keys.
func candidates(key string) []string {
	return []string{cache.ExplicitKey(key), key}
}

// ClearKind removes every tracked entry of one key kind, e.g.
// cache.KindScript, and returns how many were removed. Stored values
// without a descriptor in this engine are left to expire.
func (e *Engine) ClearKind(kind string) (int, error) {
	removed := e.entries.InvalidatePattern(kind + ":*")
	if e.cfg.Store != nil {
		for _, k := range removed {
			if err := e.cfg.Store.Delete(k); err != nil {
				return 0, err
			}
		}
	}
	if len(removed) > 0 {
		e.telemetry.Inc(telemetry.ResultEvict)
	}
	return len(removed), nil
}

// ClearAll empties the result cache.
func (e *Engine) ClearAll() error {
	e.entries.Clear()
	e.hits.Store(0)
	e.misses.Store(0)
	if e.cfg.Store != nil {
		return e.cfg.Store.Clear()
	}
	return nil
}

// Keys lists the cache keys of the tracked calls, most recently used first.
func (e *Engine) Keys() []string {
	return e.entries.Keys()
}

func (e *Engine) descriptor(key string) (string, CallDescriptor, bool) {
	for _, k := range candidates(key) {
		if v, _, ok := e.entries.Peek(k); ok {
			return k, v.(*entry).desc, true
		}
	}
	return "", CallDescriptor{}, false
}

// Stats returns a snapshot of the caches and telemetry.
func (e *Engine) Stats() Stats {
	lru := e.entries.Stats()
	results := cache.Stats{
		Hits:      e.hits.Load(),
		Misses:    e.misses.Load(),
		Size:      lru.Size,
		MaxSize:   lru.MaxSize,
		Evictions: lru.Evictions,
	}
	if total := results.Hits + results.Misses; total > 0 {
		results.HitRate = float64(results.Hits) / float64(total) * 100
	}
	return Stats{
		Plans:       e.compiler.Plans().Stats(),
		Results:     results,
		Descriptors: lru.Size,
		Telemetry:   e.telemetry.Snapshot(),
	}
}

// Explain compiles q without running it.
func (e *Engine) Explain(q Expr) (*compiler.Statement, error) {
	if q.Entity == nil {
		return nil, errors.New("explain needs an entity type")
	}
	return e.compile(func() (*compiler.Statement, error) { return e.compiler.Select(compiler.Query(q)) })
}

// Count returns the number of rows matching q. Counts are not cached.
func (e *Engine) Count(ctx context.Context, q Expr) (int64, error) {
	if q.Entity == nil {
		return 0, errors.New("count needs an entity type")
	}
	st, err := e.compile(func() (*compiler.Statement, error) { return e.compiler.Count(compiler.Query(q)) })
	if err != nil {
		return 0, err
	}
	rows, err := e.query(ctx, executor.FromStatement(st))
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	v, err := e.readOne(rows, reflect.TypeOf(int64(0)))
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Exec runs a compiled statement. Results of writes are never cached and
// do not invalidate cached reads.
func (e *Engine) Exec(ctx context.Context, st *compiler.Statement) (executor.Result, error) {
	return e.exec1(ctx, executor.FromStatement(st))
}

// ExecScript runs raw SQL that returns no rows.
func (e *Engine) ExecScript(ctx context.Context, text string, args ...any) (executor.Result, error) {
	return e.exec1(ctx, executor.Script(e.formatter, text, args...))
}

func (e *Engine) exec1(ctx context.Context, cmd executor.Command) (executor.Result, error) {
	if e.exec == nil {
		return executor.Result{}, ErrNoExecutor
	}
	var res executor.Result
	event := &QueryEvent{SQL: cmd.Text, Params: len(cmd.Params), Exec: true}
	err := chain(ctx, e.cfg.Middlewares, event, func() error {
		var err error
		res, err = e.exec.Exec(ctx, cmd)
		return err
	})
	e.telemetry.Observe(telemetry.ExecutorExec, event.Duration, err)
	return res, err
}

// Insert inserts entity and returns the generated key, if any.
func (e *Engine) Insert(ctx context.Context, entity any) (executor.Result, error) {
	st, err := e.compiler.Insert(entity)
	if err != nil {
		return executor.Result{}, err
	}
	return e.Exec(ctx, st)
}

// Update sets columns on the rows of entity matching where.
func (e *Engine) Update(ctx context.Context, entity reflect.Type, set []compiler.Assignment, where *expr.Lambda) (int64, error) {
	st, err := e.compile(func() (*compiler.Statement, error) { return e.compiler.Update(entity, set, where) })
	if err != nil {
		return 0, err
	}
	res, err := e.Exec(ctx, st)
	return res.RowsAffected, err
}

// Delete removes the rows of entity matching where.
func (e *Engine) Delete(ctx context.Context, entity reflect.Type, where *expr.Lambda) (int64, error) {
	st, err := e.compile(func() (*compiler.Statement, error) { return e.compiler.Delete(entity, where) })
	if err != nil {
		return 0, err
	}
	res, err := e.Exec(ctx, st)
	return res.RowsAffected, err
}

// UpdateEntity writes entity to the row with the same key.
func (e *Engine) UpdateEntity(ctx context.Context, entity any) (int64, error) {
	st, err := e.compile(func() (*compiler.Statement, error) { return e.compiler.UpdateEntity(entity) })
	if err != nil {
		return 0, err
	}
	res, err := e.Exec(ctx, st)
	return res.RowsAffected, err
}

// DeleteEntity removes the row with entity's key.
func (e *Engine) DeleteEntity(ctx context.Context, entity any) (int64, error) {
	st, err := e.compile(func() (*compiler.Statement, error) { return e.compiler.DeleteEntity(entity) })
	if err != nil {
		return 0, err
	}
	res, err := e.Exec(ctx, st)
	return res.RowsAffected, err
}

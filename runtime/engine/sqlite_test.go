package engine_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/satishbabariya/exprsql/query/compiler"
	"github.com/satishbabariya/exprsql/query/executor"
	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/satishbabariya/exprsql/runtime/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *int) {
	t.Helper()
	ctx := context.Background()
	db, err := executor.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	queries := 0
	count := func(ctx context.Context, event *engine.QueryEvent, next func() error) error {
		if !event.Exec {
			queries++
		}
		return next()
	}
	e, err := engine.New(db, append(opts, engine.WithMiddleware(count))...)
	require.NoError(t, err)

	_, err = e.ExecScript(ctx, `CREATE TABLE "Person" (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`)
	require.NoError(t, err)
	for _, name := range []string{"Ada", "Grace", "Linus"} {
		res, err := e.Insert(ctx, &Person{Name: name})
		require.NoError(t, err)
		assert.NotNil(t, res.Key)
	}
	return e, &queries
}

func TestSQLite_Expressions(t *testing.T) {
	ctx := context.Background()
	e, queries := openEngine(t)

	x := expr.Param[Person]("x")
	byName := func(name string) engine.Expr {
		return engine.Expr{Where: expr.Where(x, expr.Eq(expr.Field(x, "Name"), expr.Const(name)))}
	}

	ada, err := engine.FetchList[Person](ctx, e, byName("Ada"))
	require.NoError(t, err)
	require.Len(t, ada, 1)
	assert.Equal(t, "Ada", ada[0].Name)

	grace, err := engine.FetchList[Person](ctx, e, byName("Grace"))
	require.NoError(t, err)
	require.Len(t, grace, 1)
	assert.Equal(t, "Grace", grace[0].Name, "different literals are cached apart")

	_, err = engine.FetchList[Person](ctx, e, byName("Ada"))
	require.NoError(t, err)
	assert.Equal(t, 2, *queries)
	assert.GreaterOrEqual(t, e.Stats().Plans.Hits, int64(1))

	first, err := engine.FetchOne[Person](ctx, e, engine.Expr{OrderBy: []compiler.Order{{Column: "Name", Desc: true}}})
	require.NoError(t, err)
	assert.Equal(t, "Linus", first.Name)

	n, err := e.Count(ctx, engine.Expr{Entity: reflect.TypeOf(Person{})})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSQLite_Writes(t *testing.T) {
	ctx := context.Background()
	e, _ := openEngine(t)
	personType := reflect.TypeOf(Person{})
	x := expr.Param[Person]("x")

	n, err := e.Update(ctx, personType,
		[]compiler.Assignment{{Column: "Name", Value: expr.Const("Grace Hopper")}},
		expr.Where(x, expr.Eq(expr.Field(x, "Name"), expr.Const("Grace"))))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ada, err := engine.FetchOne[Person](ctx, e, engine.Expr{
		Where: expr.Where(x, expr.Eq(expr.Field(x, "Name"), expr.Const("Ada"))),
	}, engine.NoCache())
	require.NoError(t, err)

	ada.Name = "Ada Lovelace"
	n, err = e.UpdateEntity(ctx, &ada)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = e.DeleteEntity(ctx, &ada)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = e.Delete(ctx, personType, expr.Where(x, expr.HasPrefix(expr.Field(x, "Name"), expr.Const("Grace"))))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := engine.FetchList[Person](ctx, e, engine.Expr{}, engine.NoCache())
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "Linus", left[0].Name)
}

func TestSQLite_ScriptArgs(t *testing.T) {
	ctx := context.Background()
	e, _ := openEngine(t)

	names, err := engine.FetchList[string](ctx, e, engine.Script{
		Text: `SELECT name FROM "Person" WHERE id > ? ORDER BY id`,
		Args: []any{1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Grace", "Linus"}, names)
}

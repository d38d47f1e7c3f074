package compiler_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/satishbabariya/exprsql/query/compiler"
	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/satishbabariya/exprsql/query/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	ID         int    `db:"id,key,auto"`
	Name       string `db:"name"`
	MiddleName *string
	Age        int
	Birthday   *time.Time
}

type Order struct {
	ID     int `db:"id,key,auto"`
	UserID int `db:"user_id"`
	Total  float64
}

type Log struct {
	Message string
}

var (
	userType  = reflect.TypeOf(User{})
	orderType = reflect.TypeOf(Order{})
)

func newCompiler(t *testing.T, id dialect.ID, opts ...compiler.Option) *compiler.Compiler {
	t.Helper()
	f, err := dialect.New(id)
	require.NoError(t, err)
	return compiler.New(f, schema.NewRegistry(), opts...)
}

func ageAndName(age int) *expr.Lambda {
	x := expr.Param[User]("x")
	return expr.Where(x, expr.AllOf(
		expr.Gt(expr.Field(x, "Age"), expr.Const(age)),
		expr.HasSubstring(expr.Field(x, "Name"), expr.Const("a")),
	))
}

func TestCompile_FingerprintStability(t *testing.T) {
	c := newCompiler(t, dialect.Postgres)

	first, err := c.Select(compiler.Query{Entity: userType, Where: ageAndName(30)})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.True(t, first.Static)

	second, err := c.Select(compiler.Query{Entity: userType, Where: ageAndName(30)})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Args(), second.Args())

	third, err := c.Select(compiler.Query{Entity: userType, Where: ageAndName(40)})
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, third.Fingerprint)
	assert.Equal(t, first.SQL, third.SQL)
	assert.Equal(t, []any{40, "a"}, third.Args())

	assert.Equal(t,
		`SELECT t0."id" AS "ID", t0."name" AS "Name", t0."MiddleName", t0."Age", t0."Birthday" FROM "User" t0 WHERE (t0."Age" > $1 AND t0."name" LIKE ('%' || $2 || '%'))`,
		first.SQL)

	stats := c.Plans().Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCompile_Parameters(t *testing.T) {
	c := newCompiler(t, dialect.SQLServer)

	st, err := c.Select(compiler.Query{Entity: userType, Where: ageAndName(30)})
	require.NoError(t, err)
	require.Len(t, st.Params, 2)

	assert.Equal(t, "p1", st.Params[0].Name)
	assert.Equal(t, "@p1", st.Params[0].Placeholder)
	assert.Equal(t, reflect.TypeOf(0), st.Params[0].Type)
	assert.Equal(t, "bigint", st.Params[0].TypeCode)
	assert.Equal(t, compiler.Input, st.Params[0].Direction)
	assert.Equal(t, "p2", st.Params[1].Name)
	assert.Equal(t, "a", st.Params[1].Value)
}

func TestCompile_NullRewriting(t *testing.T) {
	x := expr.Param[User]("x")
	c := newCompiler(t, dialect.Postgres)

	isNull, err := c.Select(compiler.Query{
		Entity: userType,
		Where:  expr.Where(x, expr.Eq(expr.Field(x, "MiddleName"), expr.Null())),
	})
	require.NoError(t, err)
	assert.Regexp(t, `IS NULL$`, isNull.SQL)
	assert.Empty(t, isNull.Params)

	notNull, err := c.Select(compiler.Query{
		Entity: userType,
		Where:  expr.Where(x, expr.Ne(expr.Null(), expr.Field(x, "MiddleName"))),
	})
	require.NoError(t, err)
	assert.Regexp(t, `WHERE t0."MiddleName" IS NOT NULL$`, notNull.SQL)
	assert.Empty(t, notNull.Params)
}

func TestCompile_CapturedVariables(t *testing.T) {
	x := expr.Param[User]("x")
	c := newCompiler(t, dialect.Postgres)

	byName := func(name *string) *expr.Lambda {
		return expr.Where(x, expr.Eq(expr.Field(x, "MiddleName"), expr.Var("name", name)))
	}

	jo := "jo"
	st, err := c.Select(compiler.Query{Entity: userType, Where: byName(&jo)})
	require.NoError(t, err)
	assert.False(t, st.Static)
	assert.Equal(t, []any{"jo"}, st.Args())
	assert.Regexp(t, `WHERE t0."MiddleName" = \$1$`, st.SQL)

	st, err = c.Select(compiler.Query{Entity: userType, Where: byName(nil)})
	require.NoError(t, err)
	assert.Regexp(t, `WHERE t0."MiddleName" IS NULL$`, st.SQL)
	assert.Empty(t, st.Params)
}

func TestCompile_InClause(t *testing.T) {
	x := expr.Param[User]("x")
	c := newCompiler(t, dialect.Postgres)

	ids := func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i + 1
		}
		return out
	}
	in := func(values []int) *expr.Lambda {
		return expr.Where(x, expr.OneOf(expr.Field(x, "ID"), expr.Var("ids", values)))
	}

	st, err := c.Select(compiler.Query{Entity: userType, Where: in(ids(1000))})
	require.NoError(t, err)
	assert.Len(t, st.Params, 1000)
	assert.Contains(t, st.SQL, `t0."id" IN ($1, $2, $3,`)
	assert.Contains(t, st.SQL, `$1000)`)

	_, err = c.Select(compiler.Query{Entity: userType, Where: in(ids(1001))})
	require.Error(t, err)
	assert.ErrorIs(t, err, compiler.ErrTooManyInClauseValues)
	var inErr *compiler.InClauseError
	require.ErrorAs(t, err, &inErr)
	assert.Equal(t, 1001, inErr.Count)
	assert.Equal(t, 1000, inErr.Limit)

	st, err = c.Select(compiler.Query{Entity: userType, Where: in(nil)})
	require.NoError(t, err)
	assert.Regexp(t, `WHERE \(1 = 0\)$`, st.SQL)
}

func TestCompile_CapturedListLengthChangesPlan(t *testing.T) {
	x := expr.Param[User]("x")
	c := newCompiler(t, dialect.Postgres)
	in := func(values []int) *expr.Lambda {
		return expr.Where(x, expr.OneOf(expr.Field(x, "ID"), expr.Var("ids", values)))
	}

	two, err := c.Select(compiler.Query{Entity: userType, Where: in([]int{1, 2})})
	require.NoError(t, err)
	three, err := c.Select(compiler.Query{Entity: userType, Where: in([]int{1, 2, 3})})
	require.NoError(t, err)
	assert.NotEqual(t, two.SQL, three.SQL)
	assert.Equal(t, []any{1, 2, 3}, three.Args())
}

func TestCompile_Errors(t *testing.T) {
	x := expr.Param[User]("x")

	tests := []struct {
		name    string
		dialect dialect.ID
		where   expr.Node
		target  error
	}{
		{
			name:    "lambda as predicate",
			dialect: dialect.Postgres,
			where:   expr.Where(x, expr.Const(true)),
			target:  compiler.ErrUnsupportedExpression,
		},
		{
			name:    "unknown column",
			dialect: dialect.Postgres,
			where:   expr.Eq(expr.Field(x, "Missing"), expr.Const(1)),
			target:  compiler.ErrUnsupportedExpression,
		},
		{
			name:    "operator without rendering",
			dialect: dialect.SQLite,
			where:   expr.Gt(expr.Pow(expr.Field(x, "Age"), expr.Const(2)), expr.Const(4)),
			target:  compiler.ErrUnsupportedOperator,
		},
		{
			name:    "array outside IN",
			dialect: dialect.Postgres,
			where:   expr.Eq(expr.Field(x, "Age"), expr.Array(1, 2)),
			target:  compiler.ErrUnsupportedExpression,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCompiler(t, tt.dialect)
			st, err := c.Select(compiler.Query{Entity: userType, Where: expr.Where(x, tt.where)})
			assert.Nil(t, st)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestCompile_ExpressionErrorNamesNode(t *testing.T) {
	x := expr.Param[User]("x")
	c := newCompiler(t, dialect.Postgres)

	_, err := c.Select(compiler.Query{Entity: userType, Where: expr.Where(x, expr.Eq(expr.Field(x, "Age"), x))})
	var exprErr *compiler.ExpressionError
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, "Parameter", exprErr.Kind)
}

func TestCompile_Exists(t *testing.T) {
	x := expr.Param[User]("x")
	o := expr.Param[Order]("o")
	c := newCompiler(t, dialect.Postgres)

	st, err := c.Count(compiler.Query{
		Entity: userType,
		Where: expr.Where(x, expr.Any(expr.Correlate(x, o, expr.AllOf(
			expr.Eq(expr.Field(o, "UserID"), expr.Field(x, "ID")),
			expr.Gt(expr.Field(o, "Total"), expr.Const(100.0)),
		)))),
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM "User" t0 WHERE EXISTS (SELECT 1 FROM "Order" t1 WHERE (t1."user_id" = t0."id" AND t1."Total" > $1))`,
		st.SQL)
	assert.Equal(t, []any{100.0}, st.Args())
}

func TestCompile_DateConstruction(t *testing.T) {
	x := expr.Param[User]("x")
	c := newCompiler(t, dialect.SQLite)

	st, err := c.Select(compiler.Query{
		Entity: userType,
		Where: expr.Where(x, expr.AllOf(
			expr.Ge(expr.Field(x, "Birthday"), expr.Date(2000, 1, 1)),
			expr.Lt(expr.Field(x, "Birthday"), expr.CurrentTime()),
		)),
	})
	require.NoError(t, err)
	assert.Contains(t, st.SQL, `WHERE (datetime(t0."Birthday") >= ? AND datetime(t0."Birthday") < datetime('now'))`)
	assert.Equal(t, []any{time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}, st.Args())
	assert.True(t, st.Static)
}

func TestCompile_Selector(t *testing.T) {
	x := expr.Param[User]("x")
	c := newCompiler(t, dialect.MySQL)

	st, err := c.Select(compiler.Query{
		Entity:  userType,
		Columns: expr.Select(x, "ID", "Age"),
		Where:   expr.Where(x, expr.Ge(expr.Field(x, "Age"), expr.Const(18))),
		OrderBy: []compiler.Order{{Column: "Age", Desc: true}},
		Limit:   10,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT t0.`id` AS `ID`, t0.`Age` FROM `User` t0 WHERE t0.`Age` >= ? ORDER BY t0.`Age` DESC LIMIT 10", st.SQL)
}

func TestCompile_EntityStatements(t *testing.T) {
	c := newCompiler(t, dialect.Postgres)
	u := User{ID: 7, Name: "bob", Age: 30}

	upd, err := c.UpdateEntity(&u)
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "User" AS t0 SET "name" = $1, "MiddleName" = $2, "Age" = $3, "Birthday" = $4 WHERE t0."id" = $5`, upd.SQL)
	assert.Equal(t, 7, upd.Args()[4])

	del, err := c.DeleteEntity(u)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "User" AS t0 WHERE t0."id" = $1`, del.SQL)
	assert.Equal(t, []any{7}, del.Args())

	_, err = c.DeleteEntity(Log{Message: "m"})
	assert.ErrorIs(t, err, compiler.ErrMissingKeyColumn)
	_, err = c.UpdateEntity(Log{Message: "m"})
	assert.ErrorIs(t, err, compiler.ErrMissingKeyColumn)

	ins, err := c.Insert(u)
	require.NoError(t, err)
	assert.Equal(t, dialect.KeyReturning, ins.Key)
	assert.Equal(t, []any{"bob", (*string)(nil), 30, (*time.Time)(nil)}, ins.Args())
}

func TestCompile_SchemaNotResolved(t *testing.T) {
	type hidden struct{ id int }
	c := newCompiler(t, dialect.Postgres)

	_, err := c.Select(compiler.Query{Entity: reflect.TypeOf(hidden{})})
	assert.ErrorIs(t, err, compiler.ErrSchemaNotResolved)
}

func TestCompile_IncludeValuesReusesStaticValues(t *testing.T) {
	c := newCompiler(t, dialect.Postgres, compiler.WithIncludeValues(true))

	first, err := c.Select(compiler.Query{Entity: userType, Where: ageAndName(30)})
	require.NoError(t, err)
	second, err := c.Select(compiler.Query{Entity: userType, Where: ageAndName(30)})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Args(), second.Args())

	third, err := c.Select(compiler.Query{Entity: userType, Where: ageAndName(40)})
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
}

func TestCompile_CollisionCheck(t *testing.T) {
	plans := compiler.NewPlanCache(0)
	c := newCompiler(t, dialect.Postgres, compiler.WithPlanCache(plans), compiler.WithCollisionCheck(true))

	st, err := c.Select(compiler.Query{Entity: userType, Where: ageAndName(30)})
	require.NoError(t, err)

	// Plant a plan with a foreign digest under the same fingerprint.
	plans.Put(st.Fingerprint, &compiler.Plan{SQL: "SELECT 1", Digest: "other"})

	again, err := c.Select(compiler.Query{Entity: userType, Where: ageAndName(30)})
	require.NoError(t, err)
	assert.False(t, again.Cached)
	assert.Equal(t, st.SQL, again.SQL)
	assert.Equal(t, int64(1), plans.Stats().Collisions)
}

func TestCompile_Paging(t *testing.T) {
	c := newCompiler(t, dialect.SQLServer)

	st, err := c.Select(compiler.Query{Entity: orderType, Offset: 20, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "SELECT t0.[id] AS [ID], t0.[user_id] AS [UserID], t0.[Total] FROM [Order] t0 ORDER BY (SELECT NULL) OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY", st.SQL)

	next, err := c.Select(compiler.Query{Entity: orderType, Offset: 30, Limit: 10})
	require.NoError(t, err)
	assert.NotEqual(t, st.Fingerprint, next.Fingerprint)
}

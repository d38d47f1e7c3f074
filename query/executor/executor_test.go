package executor_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/satishbabariya/exprsql/query/compiler"
	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/executor"
	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/satishbabariya/exprsql/query/mapper"
	"github.com/satishbabariya/exprsql/query/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Person struct {
	ID       int64      `db:"id,key,auto"`
	Name     string     `db:"name"`
	Birthday *time.Time `db:"birthday"`
}

func openSQLite(t *testing.T, opts ...executor.Option) *executor.DB {
	t.Helper()
	ctx := context.Background()
	db, err := executor.Open(ctx, "sqlite", ":memory:", opts...)
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(ctx, executor.Command{
		Text: `CREATE TABLE "Person" (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, birthday DATETIME)`,
		Kind: executor.CommandText,
	})
	require.NoError(t, err)
	return db
}

func TestDetectCommandKind(t *testing.T) {
	tests := []struct {
		text string
		want executor.CommandKind
	}{
		{text: "GetUsers", want: executor.CommandStoredProcedure},
		{text: "  dbo.GetUsers ", want: executor.CommandStoredProcedure},
		{text: "[dbo].[Get_Users2]", want: executor.CommandStoredProcedure},
		{text: "SELECT 1", want: executor.CommandText},
		{text: "select\n1", want: executor.CommandText},
		{text: "GetUsers(1)", want: executor.CommandText},
		{text: "1abc", want: executor.CommandText},
		{text: "", want: executor.CommandText},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, executor.DetectCommandKind(tt.text))
		})
	}
}

func TestScript(t *testing.T) {
	cmd := executor.Script(dialect.MustNew(dialect.SQLServer), "SELECT * FROM t WHERE a = @p1 AND b = @p2", 1, "x")
	assert.Equal(t, executor.CommandText, cmd.Kind)
	require.Len(t, cmd.Params, 2)
	assert.Equal(t, "@p2", cmd.Params[1].Placeholder)
	assert.Equal(t, []any{1, "x"}, cmd.Args())
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"postgres", "postgresql", "pgx", "mysql", "sqlite", "sqlite3", "duckdb"} {
		b, err := executor.Lookup(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, b.DriverName())
	}
	_, err := executor.Lookup("db2")
	assert.ErrorIs(t, err, executor.ErrUnknownBackend)
	assert.Contains(t, executor.Backends(), "duckdb")
}

func TestBackendProcedure(t *testing.T) {
	tests := []struct {
		backend string
		want    string
		err     error
	}{
		{backend: "postgres", want: "SELECT * FROM get_users($1, $2)"},
		{backend: "mysql", want: "CALL get_users(?, ?)"},
		{backend: "duckdb", want: "SELECT * FROM get_users($1, $2)"},
		{backend: "sqlite3", err: executor.ErrProceduresUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			b, err := executor.Lookup(tt.backend)
			require.NoError(t, err)
			got, err := b.Procedure(dialect.MustNew(b.Dialect()), "get_users", 2)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDB_InsertQueryMaterialize(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	c := compiler.New(db.Dialect(), schema.NewRegistry())

	born := time.Date(1988, 3, 4, 0, 0, 0, 0, time.UTC)
	for _, p := range []*Person{{Name: "ann"}, {Name: "bob", Birthday: &born}} {
		st, err := c.Insert(p)
		require.NoError(t, err)
		res, err := db.Exec(ctx, executor.FromStatement(st))
		require.NoError(t, err)
		assert.NotNil(t, res.Key)
	}

	x := expr.Param[Person]("x")
	st, err := c.Select(compiler.Query{
		Entity:  reflect.TypeOf(Person{}),
		Where:   expr.Where(x, expr.Gt(expr.Field(x, "ID"), expr.Const(0))),
		OrderBy: []compiler.Order{{Column: "ID"}},
	})
	require.NoError(t, err)

	rows, err := db.Query(ctx, executor.FromStatement(st))
	require.NoError(t, err)
	people, err := mapper.Read[Person](mapper.New(mapper.WithBufferSize(2)), rows)
	require.NoError(t, rows.Close())
	require.NoError(t, err)

	require.Len(t, people, 2)
	assert.Equal(t, "ann", people[0].Name)
	assert.Nil(t, people[0].Birthday)
	assert.Equal(t, "bob", people[1].Name)
	require.NotNil(t, people[1].Birthday)
	assert.True(t, born.Equal(*people[1].Birthday))
	assert.Equal(t, people[0].ID+1, people[1].ID)
}

func TestDB_LastInsertID(t *testing.T) {
	ctx := context.Background()
	f, err := dialect.New(dialect.SQLite, dialect.WithServerVersion("3.31.1"))
	require.NoError(t, err)
	db := openSQLite(t, executor.WithFormatter(f))

	st, err := compiler.New(db.Dialect(), schema.NewRegistry()).Insert(&Person{Name: "cy"})
	require.NoError(t, err)
	require.Equal(t, dialect.KeyLastInsertID, st.Key)

	res, err := db.Exec(ctx, executor.FromStatement(st))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Key)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestDB_PreparedStatements(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t, executor.WithPreparedStatements(true))

	for i := 0; i < 3; i++ {
		rows, err := db.Query(ctx, executor.Script(db.Dialect(), "SELECT ? + 1 AS n", i))
		require.NoError(t, err)
		got, err := mapper.Read[int](mapper.New(), rows)
		require.NoError(t, rows.Close())
		require.NoError(t, err)
		assert.Equal(t, []int{i + 1}, got)
	}
}

func TestDB_ProcedureUnsupported(t *testing.T) {
	db := openSQLite(t)
	_, err := db.Query(context.Background(), executor.Script(db.Dialect(), "get_people"))
	assert.ErrorIs(t, err, executor.ErrProceduresUnsupported)
}

func TestDB_Transaction(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	insert := executor.Script(db.Dialect(), `INSERT INTO "Person" (name) VALUES (?)`, "dee")
	count := func() int {
		rows, err := db.Query(ctx, executor.Script(db.Dialect(), `SELECT COUNT(*) FROM "Person"`))
		require.NoError(t, err)
		n, err := mapper.Read[int](mapper.New(), rows)
		require.NoError(t, rows.Close())
		require.NoError(t, err)
		return n[0]
	}

	boom := errors.New("boom")
	err := db.Transaction(ctx, nil, func(tx *executor.DB) error {
		_, err := tx.Exec(ctx, insert)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count())

	err = db.Transaction(ctx, nil, func(tx *executor.DB) error {
		_, err := tx.Exec(ctx, insert)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count())
}

func TestMemoryRows(t *testing.T) {
	rows := executor.NewMemoryRows(
		executor.ResultSet{Columns: []mapper.Column{{Name: "n"}}, Rows: [][]any{{int64(1)}, {int64(2)}}},
		executor.ResultSet{Columns: []mapper.Column{{Name: "s"}}, Rows: [][]any{{"a"}}},
	)
	m := mapper.New()

	first, err := mapper.Read[int](m, rows)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, first)

	require.True(t, rows.NextResultSet())
	second, err := mapper.Read[string](m, rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, second)

	assert.False(t, rows.NextResultSet())
}

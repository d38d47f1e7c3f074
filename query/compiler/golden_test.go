package compiler_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/satishbabariya/exprsql/query/compiler"
	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// statementSuite compiles one statement of each kind.
func statementSuite(t *testing.T, c *compiler.Compiler) string {
	t.Helper()
	x := expr.Param[User]("x")
	o := expr.Param[Order]("o")

	type named struct {
		name    string
		compile func() (*compiler.Statement, error)
	}
	cases := []named{
		{"select_filter_page", func() (*compiler.Statement, error) {
			return c.Select(compiler.Query{
				Entity:  userType,
				Where:   ageAndName(30),
				OrderBy: []compiler.Order{{Column: "Name"}},
				Offset:  10,
				Limit:   5,
			})
		}},
		{"count_null", func() (*compiler.Statement, error) {
			return c.Count(compiler.Query{
				Entity: userType,
				Where:  expr.Where(x, expr.Eq(expr.Field(x, "MiddleName"), expr.Null())),
			})
		}},
		{"in_between", func() (*compiler.Statement, error) {
			return c.Select(compiler.Query{
				Entity: userType,
				Where: expr.Where(x, expr.AnyOf(
					expr.OneOf(expr.Field(x, "ID"), expr.Array(1, 2, 3)),
					expr.InRange(expr.Field(x, "Age"), expr.Const(18), expr.Const(65)),
				)),
			})
		}},
		{"exists", func() (*compiler.Statement, error) {
			return c.Select(compiler.Query{
				Entity: userType,
				Where: expr.Where(x, expr.Any(expr.Correlate(x, o, expr.AllOf(
					expr.Eq(expr.Field(o, "UserID"), expr.Field(x, "ID")),
					expr.Gt(expr.Field(o, "Total"), expr.Const(100.0)),
				)))),
			})
		}},
		{"update", func() (*compiler.Statement, error) {
			return c.Update(userType,
				[]compiler.Assignment{{Column: "Name", Value: expr.Const("bob")}},
				expr.Where(x, expr.Eq(expr.Field(x, "ID"), expr.Const(7))))
		}},
		{"delete", func() (*compiler.Statement, error) {
			return c.Delete(userType, expr.Where(x, expr.Lt(expr.Field(x, "Birthday"), expr.Date(2000, 1, 1))))
		}},
		{"insert", func() (*compiler.Statement, error) {
			return c.Insert(User{Name: "bob", Age: 3})
		}},
	}

	var sb strings.Builder
	for _, tc := range cases {
		st, err := tc.compile()
		require.NoError(t, err, tc.name)
		text := st.SQL
		if st.KeyQuery != "" {
			text += "; " + st.KeyQuery
		}
		fmt.Fprintf(&sb, "-- %s\n%s\n", tc.name, text)
	}
	return sb.String()
}

func TestCompile_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)

	for _, id := range dialect.IDs() {
		t.Run(string(id), func(t *testing.T) {
			c := newCompiler(t, id)
			g.Assert(t, string(id), []byte(statementSuite(t, c)))
		})
	}
}

package expr_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	type holder struct{ Limit int }

	tests := []struct {
		name string
		node expr.Node
		want any
	}{
		{"constant", expr.Const(42), 42},
		{"scope variable", expr.Var("name", "bob"), "bob"},
		{"struct capture", &expr.Member{Target: expr.Const(&holder{Limit: 7}), Name: "Limit"}, 7},
		{"date", expr.Date(2024, 2, 29), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"date time", expr.DateTime(2024, 1, 2, 3, 4, 5), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"negate", &expr.Unary{Op: expr.Negate, Operand: expr.Const(3)}, -3},
		{"not", expr.Negation(expr.Const(true)), false},
		{"convert", expr.Cast(expr.Const(3), reflect.TypeOf(int64(0))), int64(3)},
		{"array", expr.Array(1, "a"), []any{1, "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expr.Evaluate(tt.node)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_ParameterDependent(t *testing.T) {
	x := expr.Param[person]("x")

	_, err := expr.Evaluate(expr.Field(x, "Age"))
	assert.ErrorIs(t, err, expr.ErrNotEvaluable)

	_, err = expr.Evaluate(expr.Gt(expr.Field(x, "Age"), expr.Const(1)))
	assert.ErrorIs(t, err, expr.ErrNotEvaluable)
}

func TestWalk_SkipsChildren(t *testing.T) {
	x := expr.Param[person]("x")
	body := expr.AllOf(
		expr.Eq(expr.Field(x, "Age"), expr.Const(1)),
		expr.Eq(expr.Field(x, "Name"), expr.Var("n", "a")),
	)

	var members int
	expr.Walk(body, func(n expr.Node) bool {
		if m, ok := n.(*expr.Member); ok {
			members++
			return !m.Captured()
		}
		return true
	})
	assert.Equal(t, 3, members)
}

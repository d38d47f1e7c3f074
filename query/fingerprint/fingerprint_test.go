package fingerprint_test

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/satishbabariya/exprsql/query/fingerprint"
	"github.com/stretchr/testify/assert"
)

type user struct {
	ID   int
	Name string
	Age  int
}

var userType = reflect.TypeOf(user{})

func input(pred expr.Node) fingerprint.Input {
	return fingerprint.Input{Dialect: "postgres", Operation: "select", Entity: userType, Predicate: pred}
}

func agePredicate(age any) expr.Node {
	x := expr.Param[user]("x")
	return expr.Where(x, expr.AllOf(
		expr.Gt(expr.Field(x, "Age"), expr.Const(age)),
		expr.HasSubstring(expr.Field(x, "Name"), expr.Const("a")),
	))
}

func TestCompute_IgnoresLiteralValues(t *testing.T) {
	a := fingerprint.Compute(input(agePredicate(30)), false)
	b := fingerprint.Compute(input(agePredicate(40)), false)
	assert.Equal(t, a, b)
	assert.Equal(t, fingerprint.Digest(input(agePredicate(30)), false), fingerprint.Digest(input(agePredicate(40)), false))

	c := fingerprint.Compute(input(agePredicate(30)), true)
	d := fingerprint.Compute(input(agePredicate(40)), true)
	assert.NotEqual(t, c, d)
}

func TestCompute_LiteralTypeContributes(t *testing.T) {
	a := fingerprint.Compute(input(agePredicate(30)), false)
	b := fingerprint.Compute(input(agePredicate(int64(30))), false)
	c := fingerprint.Compute(input(agePredicate(nil)), false)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCompute_Context(t *testing.T) {
	base := input(agePredicate(30))

	other := base
	other.Dialect = "mysql"
	assert.NotEqual(t, fingerprint.Compute(base, false), fingerprint.Compute(other, false))

	other = base
	other.Operation = "count"
	assert.NotEqual(t, fingerprint.Compute(base, false), fingerprint.Compute(other, false))

	other = base
	other.Extra = []string{"limit=10"}
	assert.NotEqual(t, fingerprint.Compute(base, false), fingerprint.Compute(other, false))
}

func TestCompute_CapturedCollectionLength(t *testing.T) {
	x := expr.Param[user]("x")
	in := func(ids []int) fingerprint.Input {
		return input(expr.Where(x, expr.OneOf(expr.Field(x, "ID"), expr.Var("ids", ids))))
	}

	assert.Equal(t, fingerprint.Compute(in([]int{1, 2}), false), fingerprint.Compute(in([]int{3, 4}), false))
	assert.NotEqual(t, fingerprint.Compute(in([]int{1, 2}), false), fingerprint.Compute(in([]int{1, 2, 3}), false))
}

func TestCompute_Discrimination(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	x := expr.Param[user]("x")

	seen := make(map[string]uint64)
	byHash := make(map[uint64]string)
	collisions := 0
	for i := 0; i < 5000; i++ {
		in := input(expr.Where(x, randomPredicate(rng, x, 3)))
		digest := fingerprint.Digest(in, false)
		if _, dup := seen[digest]; dup {
			continue
		}
		sum := fingerprint.Compute(in, false)
		seen[digest] = sum
		if other, ok := byHash[sum]; ok && other != digest {
			collisions++
		}
		byHash[sum] = digest
	}

	assert.Greater(t, len(seen), 1000)
	assert.LessOrEqual(t, collisions, 1)
}

var (
	fields  = []string{"ID", "Name", "Age"}
	methods = []func(col, v expr.Node) *expr.Call{expr.HasSubstring, expr.HasPrefix, expr.HasSuffix, expr.StrEquals}
	compare = []expr.BinaryOp{expr.Equal, expr.NotEqual, expr.GreaterThan, expr.LessThan, expr.GreaterOrEqual, expr.LessOrEqual}
)

func randomPredicate(rng *rand.Rand, x *expr.Parameter, depth int) expr.Node {
	col := expr.Field(x, fields[rng.Intn(len(fields))])
	if depth == 0 {
		switch rng.Intn(3) {
		case 0:
			return methods[rng.Intn(len(methods))](col, expr.Const("v"))
		case 1:
			return expr.InRange(col, expr.Const(1), expr.Const(2))
		default:
			return &expr.Binary{Op: compare[rng.Intn(len(compare))], Left: col, Right: expr.Const(rng.Intn(100))}
		}
	}
	switch rng.Intn(4) {
	case 0:
		return expr.AllOf(randomPredicate(rng, x, depth-1), randomPredicate(rng, x, depth-1))
	case 1:
		return expr.AnyOf(randomPredicate(rng, x, depth-1), randomPredicate(rng, x, depth-1))
	case 2:
		return expr.Negation(randomPredicate(rng, x, depth-1))
	default:
		return randomPredicate(rng, x, 0)
	}
}

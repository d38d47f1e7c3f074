package expr

import (
	"reflect"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// Param returns a lambda parameter named name standing for rows of T.
func Param[T any](name string) *Parameter {
	return &Parameter{Name: name, Type: reflect.TypeOf((*T)(nil)).Elem()}
}

// ParamOf returns a lambda parameter for the given entity type.
func ParamOf(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, Type: t}
}

// Where wraps body in a single-parameter lambda.
func Where(p *Parameter, body Node) *Lambda {
	return &Lambda{Params: []*Parameter{p}, Body: body}
}

// Correlate builds the two-parameter lambda consumed by Exists.
func Correlate(outer, inner *Parameter, body Node) *Lambda {
	return &Lambda{Params: []*Parameter{outer, inner}, Body: body}
}

// Select builds a column selector over p.
func Select(p *Parameter, columns ...string) *Lambda {
	els := make([]Node, len(columns))
	for i, c := range columns {
		els[i] = Field(p, c)
	}
	return &Lambda{Params: []*Parameter{p}, Body: &NewArray{Elements: els}}
}

// Field references the column name of the entity bound to p.
func Field(p *Parameter, name string) *Member {
	return &Member{Target: p, Name: name}
}

// Const is an inline literal.
func Const(v any) *Constant {
	return &Constant{Value: v}
}

// Null is the SQL null literal.
func Null() *Constant {
	return &Constant{}
}

// Var captures a variable by name. Its value is bound as a parameter and
// re-read on every call, so plans that use it are never static.
func Var(name string, v any) *Member {
	return &Member{Target: &Constant{Value: Scope{name: v}}, Name: name}
}

// Array is an inline array literal of constants.
func Array(values ...any) *NewArray {
	els := make([]Node, len(values))
	for i, v := range values {
		els[i] = Const(v)
	}
	return &NewArray{Elements: els}
}

// Date constructs a UTC date.
func Date(year, month, day int) *New {
	return &New{Type: timeType, Args: []Node{Const(year), Const(month), Const(day)}}
}

// DateTime constructs a UTC timestamp.
func DateTime(year, month, day, hour, minute, second int) *New {
	return &New{Type: timeType, Args: []Node{
		Const(year), Const(month), Const(day), Const(hour), Const(minute), Const(second),
	}}
}

// Static time members rendered as dialect literals.
const (
	MinValue = "MinValue"
	MaxValue = "MaxValue"
	Now      = "Now"
)

// MinDate is the dialect's lowest representable date.
func MinDate() *Member { return &Member{Name: MinValue} }

// MaxDate is the dialect's highest representable date.
func MaxDate() *Member { return &Member{Name: MaxValue} }

// CurrentTime is the dialect's current timestamp.
func CurrentTime() *Member { return &Member{Name: Now} }

func binary(op BinaryOp, l, r Node) *Binary { return &Binary{Op: op, Left: l, Right: r} }

func Eq(l, r Node) *Binary  { return binary(Equal, l, r) }
func Ne(l, r Node) *Binary  { return binary(NotEqual, l, r) }
func Gt(l, r Node) *Binary  { return binary(GreaterThan, l, r) }
func Lt(l, r Node) *Binary  { return binary(LessThan, l, r) }
func Ge(l, r Node) *Binary  { return binary(GreaterOrEqual, l, r) }
func Le(l, r Node) *Binary  { return binary(LessOrEqual, l, r) }
func Sum(l, r Node) *Binary { return binary(Add, l, r) }
func Sub(l, r Node) *Binary { return binary(Subtract, l, r) }
func Mul(l, r Node) *Binary { return binary(Multiply, l, r) }
func Div(l, r Node) *Binary { return binary(Divide, l, r) }
func Mod(l, r Node) *Binary { return binary(Modulo, l, r) }
func Pow(l, r Node) *Binary { return binary(Power, l, r) }

// IfNull renders as the dialect's coalesce function.
func IfNull(l, r Node) *Binary { return binary(Coalesce, l, r) }

// AllOf folds nodes with And, left to right.
func AllOf(nodes ...Node) Node { return fold(And, nodes) }

// AnyOf folds nodes with Or, left to right.
func AnyOf(nodes ...Node) Node { return fold(Or, nodes) }

func fold(op BinaryOp, nodes []Node) Node {
	if len(nodes) == 0 {
		return nil
	}
	acc := nodes[0]
	for _, n := range nodes[1:] {
		acc = binary(op, acc, n)
	}
	return acc
}

// Negation wraps n in Not.
func Negation(n Node) *Unary { return &Unary{Op: Not, Operand: n} }

// Cast wraps n in a Convert to t.
func Cast(n Node, t reflect.Type) *Unary { return &Unary{Op: Convert, Operand: n, Type: t} }

// HasSubstring is col.Contains(v).
func HasSubstring(col, v Node) *Call { return &Call{Method: Contains, Args: []Node{col, v}} }

// HasPrefix is col.StartsWith(v).
func HasPrefix(col, v Node) *Call { return &Call{Method: StartsWith, Args: []Node{col, v}} }

// HasSuffix is col.EndsWith(v).
func HasSuffix(col, v Node) *Call { return &Call{Method: EndsWith, Args: []Node{col, v}} }

// StrEquals is col.Equals(v).
func StrEquals(col, v Node) *Call { return &Call{Method: Equals, Args: []Node{col, v}} }

// OneOf is collection.Contains(item).
func OneOf(item, collection Node) *Call {
	return &Call{Method: In, Args: []Node{collection, item}}
}

// InRange is field BETWEEN low AND high.
func InRange(field, low, high Node) *Call {
	return &Call{Method: Between, Args: []Node{field, low, high}}
}

// Any is EXISTS over the inner entity of the correlation lambda.
func Any(correlation *Lambda) *Call {
	return &Call{Method: Exists, Args: []Node{correlation}}
}

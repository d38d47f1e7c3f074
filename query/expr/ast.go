// Package expr defines the expression trees that describe predicates and
// column selectors. Trees are produced by callers (through the constructors
// in this package or Parse) and consumed read-only by the compiler.
package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// NodeKind discriminates the node variants of an expression tree.
type NodeKind int

const (
	// KindConstant is an inline literal.
	KindConstant NodeKind = iota + 1
	// KindUnary is a unary operation (not, convert, negate).
	KindUnary
	// KindBinary is a binary operation.
	KindBinary
	// KindMember is a member access on a parameter or a captured scope.
	KindMember
	// KindCall is a method call (Contains, In, Between, Exists, ...).
	KindCall
	// KindNew constructs a value, e.g. a date.
	KindNew
	// KindNewArray is an inline array literal.
	KindNewArray
	// KindLambda binds parameters to a body.
	KindLambda
	// KindParameter references a lambda parameter.
	KindParameter
)

var kindNames = map[NodeKind]string{
	KindConstant:  "Constant",
	KindUnary:     "Unary",
	KindBinary:    "Binary",
	KindMember:    "Member",
	KindCall:      "Call",
	KindNew:       "New",
	KindNewArray:  "NewArray",
	KindLambda:    "Lambda",
	KindParameter: "Parameter",
}

func (k NodeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Node is implemented by every expression node.
type Node interface {
	Kind() NodeKind
}

// Constant is an inline literal value. A nil Value is the SQL null.
type Constant struct {
	Value any
}

// Kind implements Node.
func (c *Constant) Kind() NodeKind { return KindConstant }

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	// Not negates a boolean operand.
	Not UnaryOp = iota + 1
	// Convert is a type conversion; it compiles to its operand.
	Convert
	// Negate is arithmetic negation.
	Negate
)

func (op UnaryOp) String() string {
	switch op {
	case Not:
		return "Not"
	case Convert:
		return "Convert"
	case Negate:
		return "Negate"
	default:
		return fmt.Sprintf("UnaryOp(%d)", int(op))
	}
}

// Unary applies Op to Operand. Type is the conversion target for Convert.
type Unary struct {
	Op      UnaryOp
	Operand Node
	Type    reflect.Type
}

// Kind implements Node.
func (u *Unary) Kind() NodeKind { return KindUnary }

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	And BinaryOp = iota + 1
	Or
	Equal
	NotEqual
	GreaterThan
	LessThan
	GreaterOrEqual
	LessOrEqual
	Divide
	Multiply
	Subtract
	Add
	Modulo
	Coalesce
	Power
)

var binaryNames = map[BinaryOp]string{
	And:            "And",
	Or:             "Or",
	Equal:          "Equal",
	NotEqual:       "NotEqual",
	GreaterThan:    "GreaterThan",
	LessThan:       "LessThan",
	GreaterOrEqual: "GreaterOrEqual",
	LessOrEqual:    "LessOrEqual",
	Divide:         "Divide",
	Multiply:       "Multiply",
	Subtract:       "Subtract",
	Add:            "Add",
	Modulo:         "Modulo",
	Coalesce:       "Coalesce",
	Power:          "Power",
}

func (op BinaryOp) String() string {
	if name, ok := binaryNames[op]; ok {
		return name
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// Binary applies Op to Left and Right.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// Kind implements Node.
func (b *Binary) Kind() NodeKind { return KindBinary }

// Member accesses Name on Target. When Target is a *Parameter the member is
// a column of the entity bound to that parameter. When Target is a
// *Constant the member is a captured variable read from the constant's
// value (a Scope, a map or a struct). A nil Target names a static time
// member: MinValue, MaxValue or Now.
type Member struct {
	Target Node
	Name   string
}

// Kind implements Node.
func (m *Member) Kind() NodeKind { return KindMember }

// Captured reports whether the member reads a captured variable.
func (m *Member) Captured() bool {
	_, ok := m.Target.(*Constant)
	return ok
}

// Static reports whether m is a static time member (Now, MinValue, MaxValue).
func (m *Member) Static() bool {
	return m.Target == nil
}

// Method enumerates the recognised method calls.
type Method int

const (
	// Contains is string containment: Args = [column, value].
	Contains Method = iota + 1
	// StartsWith is a string prefix test: Args = [column, value].
	StartsWith
	// EndsWith is a string suffix test: Args = [column, value].
	EndsWith
	// Equals is string equality: Args = [column, value].
	Equals
	// In is enumerable containment: Args = [collection, item].
	In
	// Between is an inclusive range test: Args = [field, low, high].
	Between
	// Exists is a correlated sub-query: Args = [*Lambda(outer, inner)].
	Exists
)

var methodNames = map[Method]string{
	Contains:   "Contains",
	StartsWith: "StartsWith",
	EndsWith:   "EndsWith",
	Equals:     "Equals",
	In:         "In",
	Between:    "Between",
	Exists:     "Exists",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Call invokes Method with Args.
type Call struct {
	Method Method
	Args   []Node
}

// Kind implements Node.
func (c *Call) Kind() NodeKind { return KindCall }

// New constructs a value of Type from Args.
type New struct {
	Type reflect.Type
	Args []Node
}

// Kind implements Node.
func (n *New) Kind() NodeKind { return KindNew }

// NewArray is an array literal.
type NewArray struct {
	Elements []Node
}

// Kind implements Node.
func (a *NewArray) Kind() NodeKind { return KindNewArray }

// Lambda binds Params for Body.
type Lambda struct {
	Params []*Parameter
	Body   Node
}

// Kind implements Node.
func (l *Lambda) Kind() NodeKind { return KindLambda }

// Parameter is a lambda parameter standing for one row of Type.
type Parameter struct {
	Name string
	Type reflect.Type
}

// Kind implements Node.
func (p *Parameter) Kind() NodeKind { return KindParameter }

// Scope holds captured variables by name.
type Scope map[string]any

// String renders a node in a compact, human readable form.
func String(n Node) string {
	var sb strings.Builder
	writeNode(&sb, n)
	return sb.String()
}

func writeNode(sb *strings.Builder, n Node) {
	switch v := n.(type) {
	case nil:
		sb.WriteString("<nil>")
	case *Constant:
		if v.Value == nil {
			sb.WriteString("null")
		} else if s, ok := v.Value.(string); ok {
			fmt.Fprintf(sb, "%q", s)
		} else {
			fmt.Fprintf(sb, "%v", v.Value)
		}
	case *Unary:
		fmt.Fprintf(sb, "%s(", v.Op)
		writeNode(sb, v.Operand)
		sb.WriteString(")")
	case *Binary:
		sb.WriteString("(")
		writeNode(sb, v.Left)
		fmt.Fprintf(sb, " %s ", v.Op)
		writeNode(sb, v.Right)
		sb.WriteString(")")
	case *Member:
		if v.Captured() {
			sb.WriteString("$" + v.Name)
			return
		}
		if v.Static() {
			sb.WriteString("time." + v.Name)
			return
		}
		writeNode(sb, v.Target)
		sb.WriteString("." + v.Name)
	case *Call:
		sb.WriteString(v.Method.String() + "(")
		for i, arg := range v.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeNode(sb, arg)
		}
		sb.WriteString(")")
	case *New:
		sb.WriteString("new ")
		if v.Type != nil {
			sb.WriteString(v.Type.String())
		}
		sb.WriteString("(")
		for i, arg := range v.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeNode(sb, arg)
		}
		sb.WriteString(")")
	case *NewArray:
		sb.WriteString("[")
		for i, el := range v.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeNode(sb, el)
		}
		sb.WriteString("]")
	case *Lambda:
		names := make([]string, len(v.Params))
		for i, p := range v.Params {
			names[i] = p.Name
		}
		fmt.Fprintf(sb, "(%s) => ", strings.Join(names, ", "))
		writeNode(sb, v.Body)
	case *Parameter:
		sb.WriteString(v.Name)
	default:
		fmt.Fprintf(sb, "<%T>", n)
	}
}

package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
)

// Grammar, loosest binding first:
//
//	or      = and ("||" and)*
//	and     = cmp ("&&" cmp)*
//	cmp     = add [ "between" add "and" add | "in" add | op add ]
//	add     = mul (("+" | "-") mul)*
//	mul     = unary (("*" | "/" | "%" | "^" | "??") unary)*
//	unary   = ("!" | "-") unary | primary
//	primary = literal | $var | [list] | (or) | path [(args)]

type orExpr struct {
	Left  *andExpr   `@@`
	Right []*andExpr `( "||" @@ )*`
}

type andExpr struct {
	Left  *cmpExpr   `@@`
	Right []*cmpExpr `( "&&" @@ )*`
}

type cmpExpr struct {
	Left    *addExpr     `@@`
	Between *betweenTail `( "between" @@`
	In      *addExpr     `| "in" @@`
	Op      string       `| @( "==" | "!=" | ">=" | "<=" | ">" | "<" )`
	Right   *addExpr     `  @@ )?`
}

type betweenTail struct {
	Low  *addExpr `@@ "and"`
	High *addExpr `@@`
}

type addExpr struct {
	Left  *mulExpr  `@@`
	Right []*opTerm `@@*`
}

type opTerm struct {
	Op    string   `@( "+" | "-" )`
	Right *mulExpr `@@`
}

type mulExpr struct {
	Left  *unaryExpr  `@@`
	Right []*opFactor `@@*`
}

type opFactor struct {
	Op    string     `@( "*" | "/" | "%" | "^" | "??" )`
	Right *unaryExpr `@@`
}

type unaryExpr struct {
	Op      string     `( @( "!" | "-" )`
	Operand *unaryExpr `  @@ )`
	Primary *primary   `| @@`
}

type primary struct {
	Null   bool      `  @"null"`
	True   bool      `| @"true"`
	False  bool      `| @"false"`
	Number *string   `| @Number`
	String *string   `| @String`
	Var    *string   `| @Var`
	Array  *arrayLit `| @@`
	Sub    *orExpr   `| "(" @@ ")"`
	Path   *path     `| @@`
}

type arrayLit struct {
	Items []*addExpr `"[" ( @@ ( "," @@ )* )? "]"`
}

type path struct {
	Head string    `@Ident`
	Tail []string  `( "." @Ident )*`
	Call *callArgs `@@?`
}

type callArgs struct {
	Args []*addExpr `"(" ( @@ ( "," @@ )* )? ")"`
}

var predicateParser = participle.MustBuild[orExpr](
	participle.Lexer(predicateLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(4),
)

// ParseOptions controls how identifiers in a textual predicate resolve.
type ParseOptions struct {
	// Param is the lambda parameter name; defaults to "x". Bare identifiers
	// and identifiers prefixed with Param are columns of Entity.
	Param string
	// Entity is the row type bound to the parameter.
	Entity reflect.Type
	// Vars supplies the values of $name captured variables.
	Vars map[string]any
}

// Parse parses a textual predicate such as
//
//	Age > 30 && Name.Contains("a") && Id in [1, 2, 3]
//
// into a single-parameter lambda.
func Parse(text string, opts ParseOptions) (*Lambda, error) {
	if opts.Param == "" {
		opts.Param = "x"
	}
	raw, err := predicateParser.ParseString("predicate", text)
	if err != nil {
		return nil, fmt.Errorf("parse predicate: %w", err)
	}
	b := &treeBuilder{opts: opts, param: &Parameter{Name: opts.Param, Type: opts.Entity}}
	body, err := b.or(raw)
	if err != nil {
		return nil, err
	}
	return Where(b.param, body), nil
}

type treeBuilder struct {
	opts  ParseOptions
	param *Parameter
}

func (b *treeBuilder) or(e *orExpr) (Node, error) {
	acc, err := b.and(e.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range e.Right {
		right, err := b.and(r)
		if err != nil {
			return nil, err
		}
		acc = binary(Or, acc, right)
	}
	return acc, nil
}

func (b *treeBuilder) and(e *andExpr) (Node, error) {
	acc, err := b.cmp(e.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range e.Right {
		right, err := b.cmp(r)
		if err != nil {
			return nil, err
		}
		acc = binary(And, acc, right)
	}
	return acc, nil
}

var comparisons = map[string]BinaryOp{
	"==": Equal,
	"!=": NotEqual,
	">":  GreaterThan,
	"<":  LessThan,
	">=": GreaterOrEqual,
	"<=": LessOrEqual,
}

func (b *treeBuilder) cmp(e *cmpExpr) (Node, error) {
	left, err := b.add(e.Left)
	if err != nil {
		return nil, err
	}
	switch {
	case e.Between != nil:
		low, err := b.add(e.Between.Low)
		if err != nil {
			return nil, err
		}
		high, err := b.add(e.Between.High)
		if err != nil {
			return nil, err
		}
		return InRange(left, low, high), nil
	case e.In != nil:
		coll, err := b.add(e.In)
		if err != nil {
			return nil, err
		}
		return OneOf(left, coll), nil
	case e.Op != "":
		right, err := b.add(e.Right)
		if err != nil {
			return nil, err
		}
		return binary(comparisons[e.Op], left, right), nil
	}
	return left, nil
}

func (b *treeBuilder) add(e *addExpr) (Node, error) {
	acc, err := b.mul(e.Left)
	if err != nil {
		return nil, err
	}
	for _, t := range e.Right {
		right, err := b.mul(t.Right)
		if err != nil {
			return nil, err
		}
		op := Add
		if t.Op == "-" {
			op = Subtract
		}
		acc = binary(op, acc, right)
	}
	return acc, nil
}

var factors = map[string]BinaryOp{
	"*":  Multiply,
	"/":  Divide,
	"%":  Modulo,
	"^":  Power,
	"??": Coalesce,
}

func (b *treeBuilder) mul(e *mulExpr) (Node, error) {
	acc, err := b.unary(e.Left)
	if err != nil {
		return nil, err
	}
	for _, f := range e.Right {
		right, err := b.unary(f.Right)
		if err != nil {
			return nil, err
		}
		acc = binary(factors[f.Op], acc, right)
	}
	return acc, nil
}

func (b *treeBuilder) unary(e *unaryExpr) (Node, error) {
	if e.Primary != nil {
		return b.primary(e.Primary)
	}
	operand, err := b.unary(e.Operand)
	if err != nil {
		return nil, err
	}
	if e.Op == "!" {
		return Negation(operand), nil
	}
	if c, ok := operand.(*Constant); ok {
		if v, err := negate(c.Value); err == nil {
			return Const(v), nil
		}
	}
	return &Unary{Op: Negate, Operand: operand}, nil
}

func (b *treeBuilder) primary(p *primary) (Node, error) {
	switch {
	case p.Null:
		return Null(), nil
	case p.True:
		return Const(true), nil
	case p.False:
		return Const(false), nil
	case p.Number != nil:
		if strings.Contains(*p.Number, ".") {
			f, err := strconv.ParseFloat(*p.Number, 64)
			if err != nil {
				return nil, fmt.Errorf("parse predicate: %w", err)
			}
			return Const(f), nil
		}
		n, err := strconv.ParseInt(*p.Number, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse predicate: %w", err)
		}
		return Const(int(n)), nil
	case p.String != nil:
		return Const(*p.String), nil
	case p.Var != nil:
		name := strings.TrimPrefix(*p.Var, "$")
		val, ok := b.opts.Vars[name]
		if !ok {
			return nil, fmt.Errorf("parse predicate: variable $%s is not defined", name)
		}
		return Var(name, val), nil
	case p.Array != nil:
		els := make([]Node, len(p.Array.Items))
		for i, item := range p.Array.Items {
			n, err := b.add(item)
			if err != nil {
				return nil, err
			}
			els[i] = n
		}
		return &NewArray{Elements: els}, nil
	case p.Sub != nil:
		return b.or(p.Sub)
	case p.Path != nil:
		return b.path(p.Path)
	}
	return nil, fmt.Errorf("parse predicate: empty term")
}

var methodsByName = map[string]Method{
	"contains":   Contains,
	"startswith": StartsWith,
	"endswith":   EndsWith,
	"equals":     Equals,
}

func (b *treeBuilder) path(p *path) (Node, error) {
	segments := append([]string{p.Head}, p.Tail...)
	if segments[0] == b.param.Name && len(segments) > 1 {
		segments = segments[1:]
	}

	var method string
	if p.Call != nil {
		if len(segments) < 2 {
			return nil, fmt.Errorf("parse predicate: call %s() has no receiver", segments[0])
		}
		method = segments[len(segments)-1]
		segments = segments[:len(segments)-1]
	}
	if len(segments) != 1 {
		return nil, fmt.Errorf("parse predicate: nested member %s is not supported", strings.Join(segments, "."))
	}
	col := Field(b.param, segments[0])
	if p.Call == nil {
		return col, nil
	}

	m, ok := methodsByName[strings.ToLower(method)]
	if !ok {
		return nil, fmt.Errorf("parse predicate: unknown method %s", method)
	}
	if len(p.Call.Args) != 1 {
		return nil, fmt.Errorf("parse predicate: %s takes one argument", method)
	}
	arg, err := b.add(p.Call.Args[0])
	if err != nil {
		return nil, err
	}
	return &Call{Method: m, Args: []Node{col, arg}}, nil
}

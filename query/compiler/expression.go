package compiler

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/satishbabariya/exprsql/query/schema"
)

var timeType = reflect.TypeOf(time.Time{})

type alias struct {
	name  string
	table *schema.TableSchema
}

// pass is a single walk over one statement's expressions. In extract mode
// it only collects parameter values; SQL fragments are not rendered.
type pass struct {
	c       *Compiler
	f       dialect.Formatter
	binder  *Binder
	aliases map[string]alias
	next    int
	static  bool
	extract bool
}

func newPass(c *Compiler, extract bool) *pass {
	return &pass{
		c:       c,
		f:       c.dialect,
		binder:  NewBinder(c.dialect),
		aliases: make(map[string]alias),
		static:  true,
		extract: extract,
	}
}

// bindLambda aliases the lambda's first parameter to ts.
func (p *pass) bindLambda(l *expr.Lambda, ts *schema.TableSchema) (string, error) {
	name := p.allocAlias()
	if l != nil {
		if len(l.Params) == 0 {
			return "", &ExpressionError{Kind: expr.KindLambda.String(), Detail: "lambda has no parameter"}
		}
		p.aliases[l.Params[0].Name] = alias{name: name, table: ts}
	}
	return name, nil
}

func (p *pass) allocAlias() string {
	name := "t" + strconv.Itoa(p.next)
	p.next++
	return name
}

func (p *pass) node(n expr.Node) (string, error) {
	switch v := n.(type) {
	case *expr.Constant:
		return p.constant(v.Value, true)
	case *expr.Unary:
		return p.unary(v)
	case *expr.Binary:
		return p.binary(v)
	case *expr.Member:
		return p.member(v)
	case *expr.Call:
		return p.call(v)
	case *expr.New:
		return p.construct(v)
	case nil:
		return "", &ExpressionError{Kind: "nil"}
	default:
		return "", &ExpressionError{Kind: n.Kind().String()}
	}
}

// constant binds val. inline reports whether it came from the expression
// text rather than a captured variable.
func (p *pass) constant(val any, inline bool) (string, error) {
	if !inline {
		p.static = false
	}
	if val == nil {
		return "NULL", nil
	}
	if isList(val) {
		return "", &ExpressionError{Kind: expr.KindConstant.String(), Detail: fmt.Sprintf("collection %T outside IN", val)}
	}
	return p.bind(val), nil
}

func (p *pass) bind(val any) string {
	ph := p.binder.Bind(val)
	if p.extract {
		return ""
	}
	return ph
}

func (p *pass) unary(u *expr.Unary) (string, error) {
	if _, ok := u.Operand.(*expr.Constant); ok && u.Op == expr.Negate {
		if val, err := expr.Evaluate(u); err == nil {
			return p.constant(val, true)
		}
	}
	operand, err := p.node(u.Operand)
	if err != nil || p.extract {
		return operand, err
	}
	switch u.Op {
	case expr.Not:
		return "NOT (" + operand + ")", nil
	case expr.Convert:
		return operand, nil
	case expr.Negate:
		return "(-" + operand + ")", nil
	}
	return "", &ExpressionError{Kind: expr.KindUnary.String(), Detail: u.Op.String()}
}

func (p *pass) binary(b *expr.Binary) (string, error) {
	if b.Op == expr.Equal || b.Op == expr.NotEqual {
		other, isNull := nullComparison(b)
		if isNull {
			if isCapturedMember(b.Left) || isCapturedMember(b.Right) {
				p.static = false
			}
			col, err := p.node(other)
			if err != nil || p.extract {
				return col, err
			}
			if b.Op == expr.Equal {
				return col + " IS NULL", nil
			}
			return col + " IS NOT NULL", nil
		}
	}

	left, err := p.node(b.Left)
	if err != nil {
		return "", err
	}
	right, err := p.node(b.Right)
	if err != nil {
		return "", err
	}
	if p.extract {
		return "", nil
	}
	return p.f.FormatOperator(b.Op, left, right)
}

// nullComparison reports whether one side of b is null and returns the
// other side.
func nullComparison(b *expr.Binary) (expr.Node, bool) {
	if isNullNode(b.Right) {
		return b.Left, true
	}
	if isNullNode(b.Left) {
		return b.Right, true
	}
	return nil, false
}

func isNullNode(n expr.Node) bool {
	switch v := n.(type) {
	case *expr.Constant:
		return isNilValue(v.Value)
	case *expr.Member:
		if !v.Captured() {
			return false
		}
		val, err := expr.Evaluate(v)
		return err == nil && isNilValue(val)
	}
	return false
}

func isCapturedMember(n expr.Node) bool {
	m, ok := n.(*expr.Member)
	return ok && m.Captured()
}

func isNilValue(val any) bool {
	if val == nil {
		return true
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func (p *pass) member(m *expr.Member) (string, error) {
	switch {
	case m.Static():
		return p.staticTime(m.Name)
	case m.Captured():
		val, err := expr.Evaluate(m)
		if err != nil {
			return "", &ExpressionError{Kind: expr.KindMember.String(), Detail: err.Error()}
		}
		if isList(val) {
			return p.list(listValues(val), false)
		}
		return p.constant(deref(val), false)
	}

	param, ok := m.Target.(*expr.Parameter)
	if !ok {
		return "", &ExpressionError{Kind: expr.KindMember.String(), Detail: "nested member " + m.Name}
	}
	a, ok := p.aliases[param.Name]
	if !ok {
		return "", &ExpressionError{Kind: expr.KindParameter.String(), Detail: "unbound parameter " + param.Name}
	}
	col, ok := a.table.Column(m.Name)
	if !ok {
		return "", &ExpressionError{Kind: expr.KindMember.String(), Detail: fmt.Sprintf("%s has no column %s", a.table.Name, m.Name)}
	}
	if p.extract {
		return "", nil
	}
	return p.f.ColumnTransform(a.name+"."+p.f.Quote(col.Physical()), col.Type), nil
}

func (p *pass) staticTime(name string) (string, error) {
	if p.extract {
		return "", nil
	}
	switch name {
	case expr.MinValue:
		return p.f.MinDate(), nil
	case expr.MaxValue:
		return p.f.MaxDate(), nil
	case expr.Now:
		return p.f.Now(), nil
	}
	return "", &ExpressionError{Kind: expr.KindMember.String(), Detail: "static member " + name}
}

func (p *pass) call(c *expr.Call) (string, error) {
	switch c.Method {
	case expr.Contains, expr.StartsWith, expr.EndsWith, expr.Equals:
		if len(c.Args) != 2 {
			return "", arity(c, 2)
		}
		col, err := p.node(c.Args[0])
		if err != nil {
			return "", err
		}
		val, err := p.node(c.Args[1])
		if err != nil || p.extract {
			return "", err
		}
		switch c.Method {
		case expr.Contains:
			return col + " LIKE " + p.f.Concat("'%'", val, "'%'"), nil
		case expr.StartsWith:
			return col + " LIKE " + p.f.Concat(val, "'%'"), nil
		case expr.EndsWith:
			return col + " LIKE " + p.f.Concat("'%'", val), nil
		default:
			return col + " = " + val, nil
		}

	case expr.In:
		if len(c.Args) != 2 {
			return "", arity(c, 2)
		}
		item, err := p.node(c.Args[1])
		if err != nil {
			return "", err
		}
		list, err := p.collection(c.Args[0])
		if err != nil || p.extract {
			return "", err
		}
		if list == "" {
			return "(1 = 0)", nil
		}
		return item + " IN (" + list + ")", nil

	case expr.Between:
		if len(c.Args) != 3 {
			return "", arity(c, 3)
		}
		parts := make([]string, 3)
		for i, a := range c.Args {
			s, err := p.node(a)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		if p.extract {
			return "", nil
		}
		return parts[0] + " BETWEEN " + parts[1] + " AND " + parts[2], nil

	case expr.Exists:
		if len(c.Args) != 1 {
			return "", arity(c, 1)
		}
		return p.exists(c.Args[0])
	}
	return "", &ExpressionError{Kind: expr.KindCall.String(), Detail: c.Method.String()}
}

// collection renders the element list of an IN clause.
func (p *pass) collection(n expr.Node) (string, error) {
	switch v := n.(type) {
	case *expr.NewArray:
		if len(v.Elements) > MaxInClauseValues {
			return "", &InClauseError{Count: len(v.Elements), Limit: MaxInClauseValues}
		}
		parts := make([]string, len(v.Elements))
		for i, el := range v.Elements {
			s, err := p.node(el)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ", "), nil
	case *expr.Constant:
		if !isList(v.Value) {
			break
		}
		return p.list(listValues(v.Value), true)
	case *expr.Member:
		if !v.Captured() {
			break
		}
		val, err := expr.Evaluate(v)
		if err != nil {
			return "", &ExpressionError{Kind: expr.KindMember.String(), Detail: err.Error()}
		}
		if !isList(val) {
			break
		}
		return p.list(listValues(val), false)
	}
	return p.node(n)
}

func (p *pass) list(values []any, inline bool) (string, error) {
	if len(values) > MaxInClauseValues {
		return "", &InClauseError{Count: len(values), Limit: MaxInClauseValues}
	}
	if !inline {
		p.static = false
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = p.bind(v)
	}
	if p.extract {
		return "", nil
	}
	return strings.Join(parts, ", "), nil
}

func (p *pass) exists(n expr.Node) (string, error) {
	l, ok := n.(*expr.Lambda)
	if !ok || len(l.Params) != 2 {
		return "", &ExpressionError{Kind: expr.KindCall.String(), Detail: "Exists needs a two-parameter correlation"}
	}
	inner := l.Params[1]
	ts, err := p.c.schemas.Resolve(inner.Type)
	if err != nil {
		return "", err
	}
	name := p.allocAlias()
	saved, shadowed := p.aliases[inner.Name]
	p.aliases[inner.Name] = alias{name: name, table: ts}
	defer func() {
		if shadowed {
			p.aliases[inner.Name] = saved
		} else {
			delete(p.aliases, inner.Name)
		}
	}()

	where, err := p.node(l.Body)
	if err != nil || p.extract {
		return "", err
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s)", p.f.Table(ts.Schema, ts.Name), name, where), nil
}

func (p *pass) construct(n *expr.New) (string, error) {
	if n.Type != timeType {
		return "", &ExpressionError{Kind: expr.KindNew.String(), Detail: fmt.Sprint(n.Type)}
	}
	val, err := expr.Evaluate(n)
	if err != nil {
		return "", &ExpressionError{Kind: expr.KindNew.String(), Detail: err.Error()}
	}
	inline := true
	expr.Walk(n, func(c expr.Node) bool {
		if isCapturedMember(c) {
			inline = false
		}
		return true
	})
	return p.constant(val, inline)
}

func arity(c *expr.Call, want int) error {
	return &ExpressionError{
		Kind:   expr.KindCall.String(),
		Detail: fmt.Sprintf("%s takes %d arguments, got %d", c.Method, want, len(c.Args)),
	}
}

// isList reports whether val is bound as a list of values. Byte slices and
// arrays are single values.
func isList(val any) bool {
	if val == nil {
		return false
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

func listValues(val any) []any {
	rv := reflect.ValueOf(val)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// deref binds the pointee of a non-nil pointer.
func deref(val any) any {
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return val
}

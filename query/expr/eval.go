package expr

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrNotEvaluable is returned when a node depends on a lambda parameter and
// therefore has no value outside of a query.
var ErrNotEvaluable = errors.New("expression is not evaluable")

// Evaluate folds n to a Go value. Only parameter-free nodes evaluate.
func Evaluate(n Node) (any, error) {
	switch v := n.(type) {
	case *Constant:
		return v.Value, nil
	case *Member:
		if v.Static() {
			return staticTime(v.Name)
		}
		if !v.Captured() {
			return nil, fmt.Errorf("%w: member %s reads a parameter", ErrNotEvaluable, v.Name)
		}
		return captured(v.Target.(*Constant).Value, v.Name)
	case *Unary:
		val, err := Evaluate(v.Operand)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case Convert:
			if v.Type == nil || val == nil {
				return val, nil
			}
			rv := reflect.ValueOf(val)
			if !rv.Type().ConvertibleTo(v.Type) {
				return nil, fmt.Errorf("cannot convert %s to %s", rv.Type(), v.Type)
			}
			return rv.Convert(v.Type).Interface(), nil
		case Negate:
			return negate(val)
		case Not:
			b, ok := val.(bool)
			if !ok {
				return nil, fmt.Errorf("cannot negate %T", val)
			}
			return !b, nil
		}
		return nil, fmt.Errorf("%w: unary %s", ErrNotEvaluable, v.Op)
	case *New:
		return construct(v)
	case *NewArray:
		out := make([]any, len(v.Elements))
		for i, el := range v.Elements {
			val, err := Evaluate(el)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: nil node", ErrNotEvaluable)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotEvaluable, n.Kind())
	}
}

func captured(scope any, name string) (any, error) {
	switch s := scope.(type) {
	case Scope:
		val, ok := s[name]
		if !ok {
			return nil, fmt.Errorf("captured variable %q not in scope", name)
		}
		return val, nil
	case map[string]any:
		val, ok := s[name]
		if !ok {
			return nil, fmt.Errorf("captured variable %q not in scope", name)
		}
		return val, nil
	}

	rv := reflect.ValueOf(scope)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("captured variable %q read from nil scope", name)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("captured variable %q read from %s", name, rv.Kind())
	}
	f := rv.FieldByName(name)
	if !f.IsValid() || !f.CanInterface() {
		return nil, fmt.Errorf("captured variable %q not in scope", name)
	}
	return f.Interface(), nil
}

func staticTime(name string) (any, error) {
	switch name {
	case MinValue:
		return time.Time{}, nil
	case MaxValue:
		return time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC), nil
	case Now:
		return time.Now().UTC(), nil
	}
	return nil, fmt.Errorf("%w: static member %s", ErrNotEvaluable, name)
}

func negate(val any) (any, error) {
	switch x := val.(type) {
	case int:
		return -x, nil
	case int64:
		return -x, nil
	case int32:
		return -x, nil
	case float64:
		return -x, nil
	case float32:
		return -x, nil
	default:
		return nil, fmt.Errorf("cannot negate %T", val)
	}
}

func construct(n *New) (any, error) {
	if n.Type != timeType {
		return nil, fmt.Errorf("%w: new %v", ErrNotEvaluable, n.Type)
	}
	parts := make([]int, 6)
	if len(n.Args) != 3 && len(n.Args) != 6 {
		return nil, fmt.Errorf("date construction takes 3 or 6 arguments, got %d", len(n.Args))
	}
	for i, arg := range n.Args {
		val, err := Evaluate(arg)
		if err != nil {
			return nil, err
		}
		iv, ok := toInt(val)
		if !ok {
			return nil, fmt.Errorf("date argument %d is %T", i, val)
		}
		parts[i] = iv
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC), nil
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case uint32:
		return int(x), true
	case float64:
		return int(x), x == float64(int(x))
	default:
		return 0, false
	}
}

// Walk calls fn for n and each descendant in depth-first order. Returning
// false from fn skips the children of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch v := n.(type) {
	case *Unary:
		Walk(v.Operand, fn)
	case *Binary:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *Member:
		Walk(v.Target, fn)
	case *Call:
		for _, a := range v.Args {
			Walk(a, fn)
		}
	case *New:
		for _, a := range v.Args {
			Walk(a, fn)
		}
	case *NewArray:
		for _, el := range v.Elements {
			Walk(el, fn)
		}
	case *Lambda:
		for _, p := range v.Params {
			Walk(p, fn)
		}
		Walk(v.Body, fn)
	}
}

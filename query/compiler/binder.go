package compiler

import (
	"reflect"

	"github.com/satishbabariya/exprsql/query/dialect"
)

// Direction of a bound parameter.
type Direction int

const (
	Input Direction = iota
	Output
)

// ParameterDescriptor is one bound parameter of a compiled statement.
type ParameterDescriptor struct {
	// Name is derived from the ordinal: p1, p2, ...
	Name string
	// Placeholder is the bind variable as it appears in the SQL text.
	Placeholder string
	Type        reflect.Type
	TypeCode    string
	Direction   Direction
	Value       any
}

// Binder accumulates parameters in the order they appear in the SQL text.
// A Binder belongs to a single compile pass.
type Binder struct {
	dialect dialect.Formatter
	params  []ParameterDescriptor
}

// NewBinder returns an empty binder for f.
func NewBinder(f dialect.Formatter) *Binder {
	return &Binder{dialect: f}
}

// Bind registers value and returns its placeholder.
func (b *Binder) Bind(value any) string {
	ordinal := len(b.params) + 1
	t := reflect.TypeOf(value)
	p := ParameterDescriptor{
		Name:        b.dialect.ParamName(ordinal),
		Placeholder: b.dialect.Placeholder(ordinal),
		Type:        t,
		TypeCode:    b.dialect.TypeCode(t),
		Direction:   Input,
		Value:       value,
	}
	b.params = append(b.params, p)
	return p.Placeholder
}

// Len returns the number of bound parameters.
func (b *Binder) Len() int { return len(b.params) }

// Params returns the bound parameters.
func (b *Binder) Params() []ParameterDescriptor { return b.params }

// Values returns the bound values in order.
func (b *Binder) Values() []any {
	values := make([]any, len(b.params))
	for i, p := range b.params {
		values[i] = p.Value
	}
	return values
}

// rebind builds descriptors for values reused from a cached plan.
func rebind(f dialect.Formatter, values []any) []ParameterDescriptor {
	b := NewBinder(f)
	for _, v := range values {
		b.Bind(v)
	}
	return b.params
}

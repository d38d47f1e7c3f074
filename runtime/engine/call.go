package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/exprsql/query/compiler"
)

// Source is what a fetch runs: a Script, an Expr or, for tuples, a Batch.
type Source interface {
	source()
}

// Script is raw SQL with positional arguments. Text that is a bare
// identifier calls a stored procedure.
type Script struct {
	Text string
	Args []any
}

// Expr is a predicate query. A nil Entity takes the fetched type.
type Expr compiler.Query

// Batch runs one Expr per tuple element.
type Batch []Expr

func (Script) source() {}
func (Expr) source()   {}
func (Batch) source()  {}

// CallKind tags the result shape of a call.
type CallKind int

const (
	CallOne CallKind = iota + 1
	CallList
	CallTuple2
	CallTuple3
	CallTuple4
	CallTuple5
	CallTuple6
	CallTuple7
)

func (k CallKind) String() string {
	switch k {
	case CallOne:
		return "one"
	case CallList:
		return "list"
	}
	if k >= CallTuple2 && k <= CallTuple7 {
		return fmt.Sprintf("tuple%d", k.arity())
	}
	return fmt.Sprintf("CallKind(%d)", int(k))
}

// arity is the number of result lists the call produces.
func (k CallKind) arity() int {
	if k >= CallTuple2 && k <= CallTuple7 {
		return int(k-CallTuple2) + 2
	}
	return 1
}

// CallDescriptor records a cached call so that Refresh can replay it.
type CallDescriptor struct {
	Kind   CallKind
	Source Source
	// Types are the element types of the result, one per list.
	Types []reflect.Type
}

// shape identifies the kind and element types, e.g. "list:[main.User]".
func (d CallDescriptor) shape() string {
	names := make([]string, len(d.Types))
	for i, t := range d.Types {
		names[i] = t.String()
	}
	return d.Kind.String() + ":[" + strings.Join(names, ",") + "]"
}

type callOptions struct {
	key     string
	refresh bool
	noCache bool
}

// CallOption adjusts one fetch.
type CallOption func(*callOptions)

// Key caches the call under an explicit key, which Refresh and Clear accept.
func Key(key string) CallOption {
	return func(o *callOptions) { o.key = key }
}

// Refresh bypasses a cached value and overwrites it.
func Refresh() CallOption {
	return func(o *callOptions) { o.refresh = true }
}

// NoCache runs the call without reading or writing the result cache.
func NoCache() CallOption {
	return func(o *callOptions) { o.noCache = true }
}

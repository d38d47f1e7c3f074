// Package fingerprint computes deterministic structural hashes of query
// expressions. Two expressions with the same shape over the same dialect,
// operation and entity hash equally; literal values only contribute when
// requested.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"reflect"
	"strconv"
	"strings"

	"github.com/satishbabariya/exprsql/query/expr"
)

const (
	seed       uint64 = 17
	multiplier uint64 = 23

	digestDomain = "exprsql/plan/v1"
)

// Assignment is one column update of an UPDATE statement.
type Assignment struct {
	Column string
	Value  expr.Node
}

// Input is everything that determines the SQL text of a compiled statement.
type Input struct {
	Dialect   string
	Operation string
	Entity    reflect.Type
	Predicate expr.Node
	Selector  expr.Node
	Updates   []Assignment
	// Extra holds further identifying strings such as ordering and paging.
	Extra []string
}

// Compute returns the polynomial hash of in. With includeValues the values
// of literals and captured variables are mixed in as well.
func Compute(in Input, includeValues bool) uint64 {
	h := &hasher{sum: seed}
	walkInput(h, in, includeValues)
	return h.sum
}

// Digest returns a collision-resistant digest of the same token stream that
// Compute hashes. It is stored next to a cached plan to detect fingerprint
// collisions.
func Digest(in Input, includeValues bool) string {
	d := &digester{}
	walkInput(d, in, includeValues)
	sum := sha256.New()
	sum.Write([]byte(digestDomain))
	sum.Write([]byte{0x00})
	sum.Write([]byte(d.sb.String()))
	return hex.EncodeToString(sum.Sum(nil))
}

type sink interface {
	num(v int)
	str(s string)
}

type hasher struct{ sum uint64 }

func (h *hasher) mix(v uint64) { h.sum = h.sum*multiplier + v }

func (h *hasher) num(v int) { h.mix(uint64(v)) }

func (h *hasher) str(s string) {
	f := fnv.New64a()
	f.Write([]byte(s))
	h.mix(f.Sum64())
}

type digester struct{ sb strings.Builder }

func (d *digester) num(v int) {
	d.sb.WriteString(strconv.Itoa(v))
	d.sb.WriteByte(' ')
}

func (d *digester) str(s string) {
	d.sb.WriteString(strconv.Quote(s))
	d.sb.WriteByte(' ')
}

func walkInput(s sink, in Input, includeValues bool) {
	w := walker{sink: s, values: includeValues}
	s.str(in.Dialect)
	s.str(in.Operation)
	s.str(typeID(in.Entity))
	w.node(in.Predicate)
	w.node(in.Selector)
	s.num(len(in.Updates))
	for _, u := range in.Updates {
		s.str(u.Column)
		w.node(u.Value)
	}
	s.num(len(in.Extra))
	for _, e := range in.Extra {
		s.str(e)
	}
}

type walker struct {
	sink
	values bool
}

func (w walker) node(n expr.Node) {
	if n == nil {
		w.num(0)
		return
	}
	w.num(int(n.Kind()) + 1)

	switch v := n.(type) {
	case *expr.Constant:
		w.value(v.Value)
	case *expr.Unary:
		w.num(int(v.Op))
		w.str(typeID(v.Type))
		w.node(v.Operand)
	case *expr.Binary:
		w.num(int(v.Op))
		w.node(v.Left)
		w.node(v.Right)
	case *expr.Member:
		w.str(v.Name)
		switch {
		case v.Static():
			w.str("static")
		case v.Captured():
			val, err := expr.Evaluate(v)
			if err != nil {
				w.str("unresolved")
				return
			}
			w.value(val)
		default:
			w.node(v.Target)
		}
	case *expr.Call:
		w.num(int(v.Method))
		w.num(len(v.Args))
		for _, a := range v.Args {
			w.node(a)
		}
	case *expr.New:
		w.str(typeID(v.Type))
		w.num(len(v.Args))
		for _, a := range v.Args {
			w.node(a)
		}
	case *expr.NewArray:
		w.num(len(v.Elements))
		for _, el := range v.Elements {
			w.node(el)
		}
	case *expr.Lambda:
		w.num(len(v.Params))
		for _, p := range v.Params {
			w.node(p)
		}
		w.node(v.Body)
	case *expr.Parameter:
		w.str(v.Name)
		w.str(typeID(v.Type))
	}
}

// value mixes in the type of a literal, its nullness and, for collections,
// its length, since each of those changes the rendered SQL. The value itself
// only contributes when values are requested.
func (w walker) value(val any) {
	if val == nil {
		w.num(0)
		return
	}
	rv := reflect.ValueOf(val)
	w.str(typeID(rv.Type()))
	if isNil(rv) {
		w.num(0)
		return
	}
	if rv.Kind() == reflect.Ptr {
		w.value(rv.Elem().Interface())
		return
	}
	if isCollection(rv) {
		w.num(rv.Len() + 1)
		if w.values {
			for i := 0; i < rv.Len(); i++ {
				w.str(fmt.Sprintf("%v", rv.Index(i).Interface()))
			}
		}
		return
	}
	w.num(1)
	if w.values {
		w.str(fmt.Sprintf("%v", val))
	}
}

func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func isCollection(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

func typeID(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

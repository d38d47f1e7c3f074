package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// Keys are "<kind>:<hash>" so that one kind can be cleared by pattern.
const (
	KindExplicit   = "key"
	KindScript     = "script"
	KindExpression = "expr"
)

// ExplicitKey hashes a caller supplied key.
func ExplicitKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return KindExplicit + ":" + hex.EncodeToString(sum[:16])
}

// ScriptKey hashes a script, its dialect and its arguments. Shape names the
// result kind of the call.
func ScriptKey(shape, text, dialect string, args []any) string {
	h := sha256.New()
	h.Write([]byte(shape))
	h.Write([]byte{0})
	h.Write([]byte(dialect))
	h.Write([]byte{0})
	h.Write([]byte(text))
	writeArgs(h, args)
	return KindScript + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

// ExpressionKey hashes the fingerprints of the compiled expressions of a
// call together with their bound values.
func ExpressionKey(shape string, fingerprints []uint64, args []any) string {
	h := sha256.New()
	h.Write([]byte(shape))
	for _, fp := range fingerprints {
		h.Write([]byte{0})
		h.Write(strconv.AppendUint(nil, fp, 16))
	}
	writeArgs(h, args)
	return KindExpression + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

// writeArgs serializes arguments with MessagePack; values it cannot encode
// contribute their Go representation instead.
func writeArgs(h hash.Hash, args []any) {
	for _, a := range args {
		h.Write([]byte{0})
		if data, err := msgpack.Marshal(a); err == nil {
			h.Write(data)
			continue
		}
		fmt.Fprintf(h, "%T:%#v", a, a)
	}
}

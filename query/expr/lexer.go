package expr

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// predicateLexer tokenises the textual predicate syntax accepted by Parse.
var predicateLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?`},
	{Name: "Var", Pattern: `\$[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Ident", Pattern: `[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Operator", Pattern: `==|!=|>=|<=|&&|\|\||\?\?|=>|[-+*/%^<>!]`},
	{Name: "Punct", Pattern: `[()\[\],.]`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

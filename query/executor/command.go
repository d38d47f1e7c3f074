package executor

import (
	"strings"
	"unicode"

	"github.com/satishbabariya/exprsql/query/compiler"
	"github.com/satishbabariya/exprsql/query/dialect"
)

// CommandKind tells the backend how to interpret a command's text.
type CommandKind int

const (
	// CommandText is a SQL batch.
	CommandText CommandKind = iota + 1
	// CommandStoredProcedure names a procedure to call with the parameters.
	CommandStoredProcedure
)

func (k CommandKind) String() string {
	if k == CommandStoredProcedure {
		return "procedure"
	}
	return "text"
}

// DetectCommandKind classifies text as a stored procedure when it looks like
// a single identifier with no whitespace, e.g. "dbo.GetUsers".
func DetectCommandKind(text string) CommandKind {
	text = strings.TrimSpace(text)
	if text == "" {
		return CommandText
	}
	for _, r := range text {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case strings.ContainsRune("_.$[]\"`", r):
		default:
			return CommandText
		}
	}
	if unicode.IsDigit([]rune(text)[0]) {
		return CommandText
	}
	return CommandStoredProcedure
}

// Command is one unit of work for a backend.
type Command struct {
	Text   string
	Kind   CommandKind
	Params []compiler.ParameterDescriptor

	// Key and KeyQuery describe how an INSERT returns its generated key.
	Key      dialect.KeyReturn
	KeyQuery string
}

// Args returns the bound values in placeholder order.
func (c Command) Args() []any {
	args := make([]any, len(c.Params))
	for i, p := range c.Params {
		args[i] = p.Value
	}
	return args
}

// FromStatement wraps a compiled statement.
func FromStatement(st *compiler.Statement) Command {
	return Command{
		Text:     st.SQL,
		Kind:     CommandText,
		Params:   st.Params,
		Key:      st.Key,
		KeyQuery: st.KeyQuery,
	}
}

// Script builds a command from raw text and positional arguments, binding
// them with f. The kind is detected from the text.
func Script(f dialect.Formatter, text string, args ...any) Command {
	b := compiler.NewBinder(f)
	for _, a := range args {
		b.Bind(a)
	}
	return Command{
		Text:   text,
		Kind:   DetectCommandKind(text),
		Params: b.Params(),
	}
}

package compiler

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/schema"
)

var (
	ErrUnsupportedExpression = errors.New("unsupported expression")
	ErrTooManyInClauseValues = errors.New("too many IN clause values")
	ErrMissingKeyColumn      = errors.New("missing key column")

	// Re-exported so callers can match every compile failure from here.
	ErrUnsupportedOperator = dialect.ErrUnsupportedOperator
	ErrSchemaNotResolved   = schema.ErrSchemaNotResolved
)

// ExpressionError names the expression node that could not be compiled.
type ExpressionError struct {
	Kind   string
	Detail string
}

// Error implements the error interface.
func (e *ExpressionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unsupported expression: %s", e.Kind)
	}
	return fmt.Sprintf("unsupported expression: %s: %s", e.Kind, e.Detail)
}

// Is reports whether target is ErrUnsupportedExpression.
func (e *ExpressionError) Is(target error) bool {
	return target == ErrUnsupportedExpression
}

// InClauseError reports an IN list above the element limit.
type InClauseError struct {
	Count int
	Limit int
}

// Error implements the error interface.
func (e *InClauseError) Error() string {
	return fmt.Sprintf("IN clause has %d values, limit is %d", e.Count, e.Limit)
}

// Is reports whether target is ErrTooManyInClauseValues.
func (e *InClauseError) Is(target error) bool {
	return target == ErrTooManyInClauseValues
}

func missingKey(table string) error {
	return fmt.Errorf("%w: table %s has no key column", ErrMissingKeyColumn, table)
}

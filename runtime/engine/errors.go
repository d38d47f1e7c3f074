package engine

import (
	"errors"
	"fmt"

	"github.com/satishbabariya/exprsql/query/compiler"
	"github.com/satishbabariya/exprsql/query/mapper"
)

var (
	// ErrCacheKeyNotFound is returned by Refresh and Clear for an unknown
	// key when strict keys are enabled.
	ErrCacheKeyNotFound = errors.New("cache key not found")
	// ErrNoRows is returned by FetchOne when the result is empty.
	ErrNoRows = errors.New("no rows in result")
	// ErrNoExecutor is returned when a fetch or write reaches an engine
	// built without an executor.
	ErrNoExecutor = errors.New("engine has no executor")

	ErrUnsupportedExpression = compiler.ErrUnsupportedExpression
	ErrUnsupportedOperator   = compiler.ErrUnsupportedOperator
	ErrTooManyInClauseValues = compiler.ErrTooManyInClauseValues
	ErrMissingKeyColumn      = compiler.ErrMissingKeyColumn
	ErrSchemaNotResolved     = compiler.ErrSchemaNotResolved
	ErrTypeConversion        = mapper.ErrTypeConversion
)

// CacheKeyError names the missing key.
type CacheKeyError struct {
	Key string
}

// Error implements the error interface.
func (e *CacheKeyError) Error() string {
	return fmt.Sprintf("cache key %q not found", e.Key)
}

// Is reports whether target is ErrCacheKeyNotFound.
func (e *CacheKeyError) Is(target error) bool {
	return target == ErrCacheKeyNotFound
}

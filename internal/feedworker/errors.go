package feedworker

import (
	"errors"
	"fmt"
)

// ErrClockSkew is returned when a cache entry claims to be updated after now,
// so its age cannot be computed.
var ErrClockSkew = errors.New("cache entry updated in the future")

// ParseError reports a malformed query string. Normalizers return it for
// input the client got wrong; any other normalizer error is unexpected.
type ParseError struct {
	Query string
	Err   error
}

// NewParseError wraps err as a parse failure of query.
func NewParseError(query string, err error) *ParseError {
	return &ParseError{Query: query, Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse query string %q: %v", e.Query, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError reports a failure of the cache path: reaching the store,
// decoding or encoding stored content, or computing an entry's age.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Error kinds used as the "kind" log attribute.
const (
	kindQueryParse = "query_parse"
	kindStore      = "store"
	kindGeneration = "generation"
	kindCacheWrite = "cache_write"
	kindUnexpected = "unexpected"
)

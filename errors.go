package weightpack

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCacheInvalid is returned when a weight cache file cannot be used.
	ErrCacheInvalid = errors.New("weight cache invalid")

	// ErrUnknownTensor is returned when a tensor source names no buffer.
	ErrUnknownTensor = errors.New("unknown tensor")
)

// CacheError describes a failed cache operation on a file.
//
// It matches ErrCacheInvalid via errors.Is. The underlying error (if any)
// can be accessed via errors.Unwrap.
type CacheError struct {
	Filename string
	Op       string
	cause    error
}

func (e *CacheError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Filename, ErrCacheInvalid)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Filename, ErrCacheInvalid, e.cause)
}

func (e *CacheError) Unwrap() error { return e.cause }

// Is reports whether target is ErrCacheInvalid.
func (e *CacheError) Is(target error) bool { return target == ErrCacheInvalid }

// cacheError wraps err as a CacheError. Cancellation says nothing about the
// file and is returned unwrapped.
func cacheError(filename, op string, err error) error {
	if err == nil || canceled(err) {
		return err
	}
	return &CacheError{Filename: filename, Op: op, cause: err}
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

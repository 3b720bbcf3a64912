package blobstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key is not present in the file.
	ErrNotFound = errors.New("blobstore: key not found")
	// ErrSizeMismatch is returned when a destination does not match the blob size.
	ErrSizeMismatch = errors.New("blobstore: size mismatch")
	// ErrDuplicateKey is returned when a key occurs twice.
	ErrDuplicateKey = errors.New("blobstore: duplicate key")
	// ErrCorruptHeader is returned when the header fails validation.
	ErrCorruptHeader = errors.New("blobstore: corrupt header")
	// ErrChecksum is returned when a blob does not match its stored CRC32C.
	ErrChecksum = errors.New("blobstore: checksum mismatch")
	// ErrPoisoned is returned by Enqueue and ReadAll after an earlier Enqueue failed.
	ErrPoisoned = errors.New("blobstore: batch poisoned by earlier error")
)

// Error describes a failed blob store operation.
//
// The sentinel (or underlying I/O error) is available via errors.Is/As.
type Error struct {
	// Op is the operation: "open", "enqueue", "read", "write".
	Op string
	// Key is the blob involved, zero if none.
	Key Key
	// Expected and Actual carry sizes or checksums where relevant.
	Expected int64
	Actual   int64
	Err      error
}

func (e *Error) Error() string {
	msg := "blobstore: " + e.Op
	if e.Key != (Key{}) {
		msg += fmt.Sprintf(" %q", e.Key.String())
	}
	msg += ": " + e.Err.Error()
	if e.Expected != 0 || e.Actual != 0 {
		msg += fmt.Sprintf(" (expected %d, actual %d)", e.Expected, e.Actual)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

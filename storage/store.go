package storage

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when an object does not exist.
//
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Store is a flat namespace of immutable objects.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Open opens an object for reading.
	Open(ctx context.Context, name string) (Object, error)
	// Create starts writing an object. The object becomes visible only when
	// the returned WritableObject is closed successfully.
	Create(ctx context.Context, name string) (WritableObject, error)
	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all objects with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Object is a read-only handle to a stored object.
type Object interface {
	io.Closer
	// ReadAt reads len(p) bytes at off. It follows io.ReaderAt semantics.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// Size returns the size of the object in bytes.
	Size() int64
}

// WritableObject streams a new object.
type WritableObject interface {
	io.Writer
	// Close commits the object.
	Close() error
	// Abort discards everything written. It is a no-op after Close.
	Abort() error
}

// Mappable is implemented by objects that can expose their content without
// copying. The slice is valid until the object is closed.
type Mappable interface {
	Bytes() ([]byte, error)
}

// Put writes data as a single object.
func Put(ctx context.Context, s Store, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// ReadAll reads a whole object.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	obj, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	buf := make([]byte, obj.Size())
	if _, err := ReadFull(ctx, obj, buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFull reads exactly len(p) bytes at off. A short object yields
// io.ErrUnexpectedEOF.
func ReadFull(ctx context.Context, obj Object, p []byte, off int64) (int, error) {
	n, err := obj.ReadAt(ctx, p, off)
	if n == len(p) {
		return n, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// MemoryStore is an in-memory Store for tests and scratch work.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Open opens an object for reading. Objects are immutable once committed,
// so the handle shares the stored bytes.
func (m *MemoryStore) Open(_ context.Context, name string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &memoryObject{data: data}, nil
}

// Create creates a new writable object.
func (m *MemoryStore) Create(_ context.Context, name string) (WritableObject, error) {
	return &memoryWritable{store: m, name: name}, nil
}

// Delete removes an object.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, name)
	return nil
}

// List returns all objects matching the prefix.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Corrupt flips the bits of one byte of a stored object. It exists for
// integrity tests and reports whether the object and offset exist.
func (m *MemoryStore) Corrupt(name string, off int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[name]
	if !ok || off < 0 || off >= len(data) {
		return false
	}
	cp := bytes.Clone(data)
	cp[off] ^= 0xFF
	m.objects[name] = cp
	return true
}

type memoryObject struct {
	data []byte
}

func (o *memoryObject) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, os.ErrInvalid
	}
	if off >= int64(len(o.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, o.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (o *memoryObject) Size() int64 {
	return int64(len(o.data))
}

func (o *memoryObject) Bytes() ([]byte, error) {
	return o.data, nil
}

func (o *memoryObject) Close() error {
	return nil
}

type memoryWritable struct {
	store *MemoryStore
	name  string
	buf   bytes.Buffer
	done  atomic.Bool
}

func (w *memoryWritable) Write(p []byte) (int, error) {
	if w.done.Load() {
		return 0, os.ErrClosed
	}
	return w.buf.Write(p)
}

func (w *memoryWritable) Close() error {
	if !w.done.CompareAndSwap(false, true) {
		return os.ErrClosed
	}

	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	w.store.objects[w.name] = bytes.Clone(w.buf.Bytes())
	return nil
}

func (w *memoryWritable) Abort() error {
	w.done.Store(true)
	w.buf.Reset()
	return nil
}

var (
	_ Store    = (*MemoryStore)(nil)
	_ Mappable = (*memoryObject)(nil)
)

package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/hupe1980/weightpack/internal/mmap"
)

const tempPrefix = ".tmp-"

// LocalStore implements Store on the local filesystem.
type LocalStore struct {
	root    string
	useMmap bool
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithMmap selects memory-mapped reads (the default) or plain file reads.
func WithMmap(enabled bool) LocalOption {
	return func(s *LocalStore) {
		s.useMmap = enabled
	}
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{root: dir, useMmap: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the directory the store is rooted at.
func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Open opens an object for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Object, error) {
	path := s.path(name)
	if s.useMmap {
		m, err := mmap.Open(path)
		if err == nil {
			return &mmapObject{m: m}, nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		// Fall back to plain reads when mapping is unavailable.
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &fileObject{f: f, size: fi.Size()}, nil
}

// Create writes to a temporary file in the target directory and renames it
// into place on Close.
func (s *LocalStore) Create(_ context.Context, name string) (WritableObject, error) {
	path := s.path(name)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, tempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return nil, err
	}
	return &localWritable{f: f, path: path}, nil
}

// Delete removes an object.
func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List returns all objects whose name starts with prefix.
func (s *LocalStore) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == s.root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

type mmapObject struct {
	m *mmap.Mapping
}

func (o *mmapObject) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	return o.m.ReadAt(p, off)
}

func (o *mmapObject) Size() int64 {
	return int64(o.m.Size())
}

func (o *mmapObject) Bytes() ([]byte, error) {
	if err := o.m.Advise(mmap.AccessSequential); err != nil {
		return nil, err
	}
	return o.m.Bytes(), nil
}

func (o *mmapObject) Close() error {
	return o.m.Close()
}

type fileObject struct {
	f    *os.File
	size int64
}

func (o *fileObject) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return o.f.ReadAt(p, off)
}

func (o *fileObject) Size() int64 {
	return o.size
}

func (o *fileObject) Close() error {
	return o.f.Close()
}

type localWritable struct {
	f    *os.File
	path string
	done atomic.Bool
}

func (w *localWritable) Write(p []byte) (int, error) {
	if w.done.Load() {
		return 0, os.ErrClosed
	}
	return w.f.Write(p)
}

func (w *localWritable) Close() error {
	if !w.done.CompareAndSwap(false, true) {
		return os.ErrClosed
	}
	tmp := w.f.Name()
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (w *localWritable) Abort() error {
	if !w.done.CompareAndSwap(false, true) {
		return nil
	}
	closeErr := w.f.Close()
	if err := os.Remove(w.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return closeErr
	}
	return nil
}

var (
	_ Store    = (*LocalStore)(nil)
	_ Mappable = (*mmapObject)(nil)
)

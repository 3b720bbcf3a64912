package blobstore

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/weightpack/internal/hash"
	"github.com/hupe1980/weightpack/storage"
	"github.com/hupe1980/weightpack/workerpool"
)

// Entry locates a blob within the file.
type Entry struct {
	Offset int64
	Size   int64
}

type request struct {
	key   Key
	entry Entry
	dst   []byte
}

// Reader reads blobs from a file written by Writer.
//
// Enqueue and ReadAll must not be called concurrently.
type Reader struct {
	opts    options
	obj     storage.Object
	keys    []Key
	entries map[Key]Entry
	sums    map[Key]uint32

	requests []request
	poison   error

	// mapped is the whole file when the object exposes its bytes.
	mapped []byte
}

// Open reads and validates the header of name. Blob bodies are not read.
func Open(ctx context.Context, store storage.Store, name string, opts ...Option) (*Reader, error) {
	obj, err := store.Open(ctx, name)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}

	r := &Reader{opts: applyOptions(opts), obj: obj}
	if err := r.readHeader(ctx); err != nil {
		_ = obj.Close()
		return nil, err
	}
	return r, nil
}

func corrupt(format string, args ...any) error {
	return &Error{Op: "open", Err: fmt.Errorf("%w: "+format, append([]any{ErrCorruptHeader}, args...)...)}
}

func (r *Reader) readHeader(ctx context.Context) error {
	fileSize := r.obj.Size()

	var buf [8]byte
	if fileSize < int64(len(buf)) {
		return corrupt("file size %d too small", fileSize)
	}
	if _, err := storage.ReadFull(ctx, r.obj, buf[:], 0); err != nil {
		return &Error{Op: "open", Err: err}
	}

	count := binary.LittleEndian.Uint64(buf[:])
	if count > uint64(fileSize-8)/(KeySize+16) {
		return corrupt("count %d does not fit file size %d", count, fileSize)
	}

	n := int(count)
	header := make([]byte, headerSize(n)-8)
	if _, err := storage.ReadFull(ctx, r.obj, header, 8); err != nil {
		return &Error{Op: "open", Err: err}
	}
	headerEnd := padded(headerSize(n))

	r.keys = make([]Key, n)
	r.entries = make(map[Key]Entry, n)
	var prev int64
	for i := 0; i < n; i++ {
		var k Key
		copy(k[:], header[i*KeySize:])

		pos := n*KeySize + i*16
		off := binary.LittleEndian.Uint64(header[pos:])
		size := binary.LittleEndian.Uint64(header[pos+8:])

		switch {
		case off%Align != 0:
			return corrupt("blob %q offset %d not aligned", k, off)
		case off < uint64(headerEnd):
			return corrupt("blob %q offset %d inside header", k, off)
		case off < uint64(prev):
			return corrupt("blob %q offset %d decreasing", k, off)
		case off > uint64(fileSize) || size > uint64(fileSize)-off:
			return corrupt("blob %q [%d, +%d) exceeds file size %d", k, off, size, fileSize)
		}
		if _, ok := r.entries[k]; ok {
			return &Error{Op: "open", Key: k, Err: ErrDuplicateKey}
		}

		prev = int64(off)
		r.keys[i] = k
		r.entries[k] = Entry{Offset: int64(off), Size: int64(size)}
	}

	return r.readChecksums(ctx)
}

func (r *Reader) readChecksums(ctx context.Context) error {
	e, ok := r.entries[ChecksumKey]
	if !ok {
		return nil
	}
	if r.keys[len(r.keys)-1] != ChecksumKey || e.Size != 4*int64(len(r.keys)-1) {
		return corrupt("checksum blob of size %d for %d blobs", e.Size, len(r.keys)-1)
	}

	raw := make([]byte, e.Size)
	if err := r.opts.rc.AcquireIO(ctx, len(raw)); err != nil {
		return &Error{Op: "open", Key: ChecksumKey, Err: err}
	}
	if _, err := storage.ReadFull(ctx, r.obj, raw, e.Offset); err != nil {
		return &Error{Op: "open", Key: ChecksumKey, Err: err}
	}

	r.sums = make(map[Key]uint32, len(r.keys)-1)
	for i, k := range r.keys[:len(r.keys)-1] {
		r.sums[k] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return nil
}

// Keys returns the blob keys in file order, excluding the checksum blob.
func (r *Reader) Keys() []Key {
	keys := make([]Key, 0, len(r.keys))
	for _, k := range r.keys {
		if k != ChecksumKey {
			keys = append(keys, k)
		}
	}
	return keys
}

// Entry returns the location of key.
func (r *Reader) Entry(key Key) (Entry, bool) {
	e, ok := r.entries[key]
	return e, ok
}

// HasChecksums reports whether the file carries a checksum blob.
func (r *Reader) HasChecksums() bool { return r.sums != nil }

// Size returns the file size in bytes.
func (r *Reader) Size() int64 { return r.obj.Size() }

// Enqueue schedules reading key into dst, whose length must equal the blob
// size. On error the batch is poisoned: ReadAll will read nothing and fail.
func (r *Reader) Enqueue(key Key, dst []byte) error {
	if r.poison != nil {
		return &Error{Op: "enqueue", Key: key, Err: ErrPoisoned}
	}

	e, ok := r.entries[key]
	if !ok || key == ChecksumKey {
		r.poison = &Error{Op: "enqueue", Key: key, Err: ErrNotFound}
		return r.poison
	}
	if e.Size != int64(len(dst)) {
		r.poison = &Error{Op: "enqueue", Key: key, Expected: e.Size, Actual: int64(len(dst)), Err: ErrSizeMismatch}
		return r.poison
	}

	r.requests = append(r.requests, request{key: key, entry: e, dst: dst})
	return nil
}

// ReadAll executes all enqueued reads on pool. Each read fills its own
// destination; the first error is returned and the remaining reads are
// skipped. The queue is empty afterwards, but a poisoned Reader stays
// poisoned.
func (r *Reader) ReadAll(ctx context.Context, pool *workerpool.Pool) error {
	if r.poison != nil {
		r.requests = nil
		return r.poison
	}

	reqs := r.requests
	r.requests = nil
	r.mapBody()

	return pool.RunErr(0, len(reqs), func(i, _ int) error {
		return r.read(ctx, &reqs[i])
	})
}

func (r *Reader) mapBody() {
	if r.mapped != nil {
		return
	}
	m, ok := r.obj.(storage.Mappable)
	if !ok {
		return
	}
	if b, err := m.Bytes(); err == nil && int64(len(b)) == r.obj.Size() {
		r.mapped = b
	}
}

func (r *Reader) read(ctx context.Context, req *request) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "read", Key: req.key, Err: err}
	}

	rc := r.opts.rc
	if err := rc.AcquireIOSlot(ctx); err != nil {
		return &Error{Op: "read", Key: req.key, Err: err}
	}
	defer rc.ReleaseIOSlot()

	if err := rc.AcquireIO(ctx, len(req.dst)); err != nil {
		return &Error{Op: "read", Key: req.key, Err: err}
	}
	if r.mapped != nil {
		copy(req.dst, r.mapped[req.entry.Offset:req.entry.Offset+req.entry.Size])
	} else if _, err := storage.ReadFull(ctx, r.obj, req.dst, req.entry.Offset); err != nil {
		return &Error{Op: "read", Key: req.key, Err: err}
	}

	if want, ok := r.sums[req.key]; ok {
		if got := hash.CRC32C(req.dst); got != want {
			return &Error{Op: "read", Key: req.key, Expected: int64(want), Actual: int64(got), Err: ErrChecksum}
		}
	}
	return nil
}

// Close releases the underlying object.
func (r *Reader) Close() error {
	r.mapped = nil
	return r.obj.Close()
}

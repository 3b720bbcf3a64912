package weightpack

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/hupe1980/weightpack/blobstore"
	"github.com/hupe1980/weightpack/compress"
	"github.com/hupe1980/weightpack/storage"
	"github.com/hupe1980/weightpack/workerpool"
)

// CacheLoader loads tensors from a cache file written by Compressor.
//
// A missing or unreadable file is not fatal at construction: the error is
// recorded and reported by ReadAll, so callers enumerate their tensors the
// same way whether or not the cache exists.
type CacheLoader struct {
	filename string
	opts     options
	reader   *blobstore.Reader
	err      error

	blobs  int
	bytes  int64
	scales []float32
	raw    []byte
}

// NewCacheLoader opens filename in store.
func NewCacheLoader(ctx context.Context, store storage.Store, filename string, opts ...Option) *CacheLoader {
	l := &CacheLoader{filename: filename, opts: applyOptions(opts)}
	l.reader, l.err = blobstore.Open(ctx, store, filename, l.opts.blobOptions()...)
	if l.err != nil {
		l.opts.logger.DebugContext(ctx, "cache file unavailable", "file", filename, "error", l.err)
	}
	return l
}

// Err returns the first error recorded so far.
func (l *CacheLoader) Err() error {
	return cacheError(l.filename, "load", l.err)
}

// Load enqueues reading tensor name into buf and resets buf's scale to 1.
// After the first failure further calls do nothing.
func (l *CacheLoader) Load(name string, buf compress.Buffer) {
	buf.SetScale(1)
	if l.err != nil {
		return
	}
	if l.err = l.reader.Enqueue(compress.KeyFor(buf.Tag(), name), buf.Data()); l.err != nil {
		return
	}
	l.blobs++
	l.bytes += int64(len(buf.Data()))
}

// Visit adapts Load to a Visitor.
func (l *CacheLoader) Visit(name string, _ []float32, buf compress.Buffer) {
	l.Load(name, buf)
}

// LoadScales enqueues reading the per-tensor scales. If the file has no
// scales blob of the right size, scales is filled with 1 and the load is
// otherwise unaffected.
func (l *CacheLoader) LoadScales(scales []float32) {
	for i := range scales {
		scales[i] = 1
	}
	if l.err != nil || len(scales) == 0 {
		return
	}

	key := compress.CacheKey[compress.F32](ScalesName)
	e, ok := l.reader.Entry(key)
	if !ok || e.Size != 4*int64(len(scales)) {
		return
	}
	raw := make([]byte, e.Size)
	if l.err = l.reader.Enqueue(key, raw); l.err != nil {
		return
	}
	l.scales, l.raw = scales, raw
	l.blobs++
	l.bytes += e.Size
}

// ReadAll executes all enqueued reads on pool. It fails with an error
// matching ErrCacheInvalid if the file was unusable or any read failed;
// buffer contents are then unspecified and must be regenerated. A canceled
// ctx is reported as the context error, not as an invalid cache.
func (l *CacheLoader) ReadAll(ctx context.Context, pool *workerpool.Pool) error {
	if l.err != nil {
		err := l.Err()
		l.opts.metrics.OnLoad(0, 0, 0, err)
		return err
	}

	start := time.Now()
	l.err = l.reader.ReadAll(ctx, pool)
	d := time.Since(start)
	l.opts.logger.LogLoad(ctx, l.filename, l.blobs, l.bytes, d, l.err)
	l.opts.metrics.OnLoad(l.blobs, l.bytes, d, l.err)
	if l.err != nil {
		return l.Err()
	}

	if l.scales != nil {
		for i := range l.scales {
			l.scales[i] = math.Float32frombits(binary.LittleEndian.Uint32(l.raw[4*i:]))
		}
		l.scales, l.raw = nil, nil
	}
	return nil
}

// Close releases the cache file.
func (l *CacheLoader) Close() error {
	if l.reader == nil {
		return nil
	}
	return l.reader.Close()
}

// TensorSource enumerates a model's tensors by calling visit once per tensor.
// When withWeights is false, weights may be passed as nil.
type TensorSource func(withWeights bool, visit Visitor) error

// LoadOrCompress loads every tensor of source from filename. If the file is
// missing or unusable, it compresses the tensors instead and rewrites the
// file. scales may be nil; when loading it is filled from the file, when
// compressing it is stored after source has run. It reports whether the
// cache was used.
func LoadOrCompress(ctx context.Context, pool *workerpool.Pool, store storage.Store, filename string,
	source TensorSource, scales []float32, opts ...Option,
) (bool, error) {
	o := applyOptions(opts)

	l := NewCacheLoader(ctx, store, filename, opts...)
	err := source(false, l.Visit)
	if err == nil {
		l.LoadScales(scales)
		err = l.ReadAll(ctx, pool)
	}
	_ = l.Close()
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrCacheInvalid) || ctx.Err() != nil {
		return false, err
	}

	o.logger.LogCacheMiss(ctx, filename, err)
	o.metrics.OnCacheMiss()

	c := NewCompressor(pool, opts...)
	if err := source(true, c.Visit); err != nil {
		return false, err
	}
	c.AddScales(scales)
	return false, c.WriteAll(ctx, store, filename)
}

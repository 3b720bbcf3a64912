package weightpack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/weightpack/blobstore"
	"github.com/hupe1980/weightpack/compress"
	"github.com/hupe1980/weightpack/resource"
	"github.com/hupe1980/weightpack/storage"
	"github.com/hupe1980/weightpack/workerpool"
)

func newPool(t *testing.T) *workerpool.Pool {
	t.Helper()
	p := workerpool.New(4)
	t.Cleanup(p.Close)
	return p
}

func normal(seed int64, n int, stddev float64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.NormFloat64() * stddev)
	}
	return out
}

// model is a toy set of tensors with one buffer per representation.
type model struct {
	weights map[string][]float32
	bufs    map[string]compress.Buffer
	order   []string
}

func newModel() *model {
	m := &model{weights: map[string][]float32{}, bufs: map[string]compress.Buffer{}}
	m.add("embed", normal(1, 1024, 0.5), compress.NewArray[compress.BF16](1024))
	m.add("attn", normal(2, 2048, 0.3), compress.NewArray[compress.SFP](2048))
	m.add("ffw", normal(3, 4096, 1), compress.NewArray[compress.NUQ](4096))
	m.add("norm", normal(4, 64, 1), compress.NewArray[compress.F32](64))
	return m
}

func (m *model) add(name string, w []float32, buf compress.Buffer) {
	m.weights[name] = w
	m.bufs[name] = buf
	m.order = append(m.order, name)
}

// fresh returns empty buffers of the same shapes.
func (m *model) fresh() *model {
	f := &model{weights: m.weights, bufs: map[string]compress.Buffer{}, order: m.order}
	for name, b := range m.bufs {
		nb, ok := compress.NewBuffer(b.Tag(), b.Len())
		if !ok {
			panic("unknown tag")
		}
		f.bufs[name] = nb
	}
	return f
}

func (m *model) source(withWeights bool, visit Visitor) error {
	for _, name := range m.order {
		var w []float32
		if withWeights {
			w = m.weights[name]
		}
		visit(name, w, m.bufs[name])
	}
	return nil
}

func writeModel(t *testing.T, store storage.Store, m *model, scales []float32, opts ...Option) {
	t.Helper()
	c := NewCompressor(newPool(t), opts...)
	require.NoError(t, m.source(true, c.Visit))
	c.AddScales(scales)
	require.NoError(t, c.WriteAll(context.Background(), store, "model.wpk"))
}

func TestCompressorLoaderRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := newModel()
	writeModel(t, store, m, []float32{0.5, 2, 1, 4}, WithChecksums())

	got := m.fresh()
	l := NewCacheLoader(ctx, store, "model.wpk")
	defer l.Close()
	require.NoError(t, l.Err())
	require.NoError(t, got.source(false, l.Visit))

	scales := make([]float32, 4)
	l.LoadScales(scales)
	require.NoError(t, l.ReadAll(ctx, newPool(t)))

	assert.Equal(t, []float32{0.5, 2, 1, 4}, scales)
	for name, b := range m.bufs {
		assert.Equal(t, b.Data(), got.bufs[name].Data(), name)
		assert.Equal(t, float32(1), got.bufs[name].Scale(), name)
	}
}

func TestCacheLoaderMissingFile(t *testing.T) {
	ctx := context.Background()
	l := NewCacheLoader(ctx, storage.NewMemoryStore(), "absent.wpk")
	defer l.Close()

	buf := compress.NewArray[compress.SFP](16)
	buf.SetScale(3)
	l.Load("x", buf)
	assert.Equal(t, float32(1), buf.Scale())

	scales := []float32{7, 7}
	l.LoadScales(scales)
	assert.Equal(t, []float32{1, 1}, scales)

	err := l.ReadAll(ctx, newPool(t))
	require.ErrorIs(t, err, ErrCacheInvalid)
	require.ErrorIs(t, err, storage.ErrNotFound)

	var ce *CacheError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "absent.wpk", ce.Filename)
}

func TestCacheLoaderRepresentationChangeMisses(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := newModel()
	writeModel(t, store, m, nil)

	l := NewCacheLoader(ctx, store, "model.wpk")
	defer l.Close()
	// Same name and capacity, different representation.
	l.Load("attn", compress.NewArray[compress.NUQ](2048))
	err := l.ReadAll(ctx, newPool(t))
	require.ErrorIs(t, err, ErrCacheInvalid)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCacheLoaderSizeMismatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	writeModel(t, store, newModel(), nil)

	l := NewCacheLoader(ctx, store, "model.wpk")
	defer l.Close()
	l.Load("attn", compress.NewArray[compress.SFP](1024))
	l.Load("embed", compress.NewArray[compress.BF16](1024))
	err := l.ReadAll(ctx, newPool(t))
	require.ErrorIs(t, err, ErrCacheInvalid)
	require.ErrorIs(t, err, blobstore.ErrSizeMismatch)
}

func TestCacheLoaderScalesFallback(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := newModel()
	writeModel(t, store, m, nil)

	l := NewCacheLoader(ctx, store, "model.wpk")
	defer l.Close()
	got := m.fresh()
	require.NoError(t, got.source(false, l.Visit))

	scales := []float32{9, 9, 9}
	l.LoadScales(scales)
	require.NoError(t, l.ReadAll(ctx, newPool(t)))
	assert.Equal(t, []float32{1, 1, 1}, scales)
}

func TestLoadOrCompress(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	metrics := &BasicMetricsObserver{}
	opts := []Option{WithChecksums(), WithMetrics(metrics), WithStats()}

	m := newModel()
	loaded, err := LoadOrCompress(ctx, newPool(t), store, "model.wpk", m.source, nil, opts...)
	require.NoError(t, err)
	assert.False(t, loaded)

	got := m.fresh()
	loaded, err = LoadOrCompress(ctx, newPool(t), store, "model.wpk", got.source, nil, opts...)
	require.NoError(t, err)
	assert.True(t, loaded)
	for name, b := range m.bufs {
		assert.Equal(t, b.Data(), got.bufs[name].Data(), name)
	}

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.WriteCount)
	assert.Equal(t, int64(2), stats.LoadCount)
	assert.Equal(t, int64(1), stats.LoadErrors)
	assert.Equal(t, int64(4), stats.CompressCount)
}

func TestLoadOrCompressRecoversFromCorruption(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := newModel()
	writeModel(t, store, m, nil, WithChecksums())

	r, err := blobstore.Open(ctx, store, "model.wpk")
	require.NoError(t, err)
	e, ok := r.Entry(compress.KeyFor(compress.TagNUQ, "ffw"))
	require.True(t, ok)
	require.NoError(t, r.Close())
	require.True(t, store.Corrupt("model.wpk", int(e.Offset)+100))

	got := m.fresh()
	loaded, err := LoadOrCompress(ctx, newPool(t), store, "model.wpk", got.source, nil, WithChecksums())
	require.NoError(t, err)
	assert.False(t, loaded)
	for name, b := range m.bufs {
		assert.Equal(t, b.Data(), got.bufs[name].Data(), name)
	}

	// The rewritten file is valid again.
	again := m.fresh()
	loaded, err = LoadOrCompress(ctx, newPool(t), store, "model.wpk", again.source, nil)
	require.NoError(t, err)
	assert.True(t, loaded)
}

func TestLoadOrCompressSourceError(t *testing.T) {
	boom := errors.New("boom")
	src := func(bool, Visitor) error { return boom }
	_, err := LoadOrCompress(context.Background(), newPool(t), storage.NewMemoryStore(), "f", src, nil)
	require.ErrorIs(t, err, boom)
}

func TestLoadOrCompressCanceledKeepsCache(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newModel()
	writeModel(t, store, m, []float32{1, 2, 3, 4}, WithChecksums())
	before, err := storage.ReadAll(context.Background(), store, "model.wpk")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := m.fresh()
	compressPasses := 0
	src := func(withWeights bool, visit Visitor) error {
		if withWeights {
			compressPasses++
		}
		return got.source(withWeights, visit)
	}

	metrics := &BasicMetricsObserver{}
	loaded, err := LoadOrCompress(ctx, newPool(t), store, "model.wpk", src, make([]float32, 4), WithMetrics(metrics))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCacheInvalid)
	assert.False(t, loaded)
	assert.Equal(t, 0, compressPasses)
	assert.Equal(t, int64(0), metrics.GetStats().CacheMisses)

	after, err := storage.ReadAll(context.Background(), store, "model.wpk")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The untouched file still loads.
	loaded, err = LoadOrCompress(context.Background(), newPool(t), store, "model.wpk", m.fresh().source, nil)
	require.NoError(t, err)
	assert.True(t, loaded)
}

func TestCacheLoaderCanceled(t *testing.T) {
	store := storage.NewMemoryStore()
	m := newModel()
	writeModel(t, store, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewCacheLoader(ctx, store, "model.wpk")
	defer l.Close()
	require.NoError(t, m.fresh().source(false, l.Visit))
	err := l.ReadAll(ctx, newPool(t))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCacheInvalid)
}

func TestCompressorStats(t *testing.T) {
	c := NewCompressor(newPool(t), WithStats())
	buf := compress.NewArray[compress.NUQ](512)
	c.Add("w", normal(5, 512, 1), buf)

	st := c.Stats("w")
	require.NotNil(t, st)
	assert.Equal(t, 512, st.Distortion.NumValues())
	assert.Nil(t, c.Stats("missing"))
	assert.Equal(t, 1, c.Len())

	c.AddScales(nil)
	assert.Equal(t, 1, c.Len())
}

func TestDecodedCache(t *testing.T) {
	pool := newPool(t)
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 3 * 4 * 256})
	dc, err := NewDecodedCache(pool, 8, WithResourceController(rc))
	require.NoError(t, err)

	bufs := make([]*compress.Array[compress.BF16], 4)
	for i := range bufs {
		bufs[i] = compress.NewArray[compress.BF16](256)
		bufs[i].CompressFrom(pool, normal(int64(10+i), 256, 1), compress.NewWorkingSet())
		bufs[i].SetScale(2)
	}

	want := make([]float32, 256)
	compress.Decompress(bufs[0], 0, want)
	got := dc.Get("a", bufs[0])
	assert.Equal(t, want, got)
	assert.Same(t, &got[0], &dc.Get("a", bufs[0])[0])

	dc.Get("b", bufs[1])
	dc.Get("c", bufs[2])
	assert.Equal(t, 3, dc.Len())
	assert.Equal(t, int64(3*4*256), rc.MemoryUsage())

	// Budget exhausted: the oldest entry makes room.
	dc.Get("d", bufs[3])
	assert.Equal(t, 3, dc.Len())
	assert.Equal(t, int64(3*4*256), rc.MemoryUsage())

	dc.Remove("d")
	assert.Equal(t, int64(2*4*256), rc.MemoryUsage())
	dc.Purge()
	assert.Equal(t, 0, dc.Len())
	assert.Equal(t, int64(0), rc.MemoryUsage())

	// Larger than the whole budget: decoded but not cached.
	big := compress.NewArray[compress.F32](1024)
	assert.Len(t, dc.Get("big", big), 1024)
	assert.Equal(t, 0, dc.Len())
}

func TestCacheError(t *testing.T) {
	cause := errors.New("disk on fire")
	err := cacheError("f.wpk", "load", cause)
	assert.ErrorIs(t, err, ErrCacheInvalid)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "f.wpk")
	assert.NoError(t, cacheError("f.wpk", "load", nil))

	wrapped := fmt.Errorf("read: %w", context.DeadlineExceeded)
	err = cacheError("f.wpk", "load", wrapped)
	assert.NotErrorIs(t, err, ErrCacheInvalid)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	l.LogWrite(ctx, "model.wpk", 3, 1<<20, 0, nil)
	assert.Contains(t, buf.String(), `"msg":"cache written"`)
	assert.Contains(t, buf.String(), `"blobs":3`)

	buf.Reset()
	l.WithFile("x").LogCacheMiss(ctx, "model.wpk", ErrCacheInvalid)
	assert.Contains(t, buf.String(), "compressing")

	assert.NotPanics(t, func() { NoopLogger().LogLoad(ctx, "f", 1, 1, 1, nil) })
}

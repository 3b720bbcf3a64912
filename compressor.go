package weightpack

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/hupe1980/weightpack/blobstore"
	"github.com/hupe1980/weightpack/compress"
	"github.com/hupe1980/weightpack/storage"
	"github.com/hupe1980/weightpack/workerpool"
)

// ScalesName is the tensor name under which per-tensor scales are stored.
const ScalesName = "scales"

// Visitor is called once per tensor. weights is nil when only the buffer is
// needed, as when loading.
type Visitor func(name string, weights []float32, buf compress.Buffer)

// Compressor compresses tensors and writes them to one cache file.
//
// Buffers passed to Add are referenced until WriteAll returns.
type Compressor struct {
	pool   *workerpool.Pool
	opts   options
	ws     *compress.WorkingSet
	writer *blobstore.Writer
	stats  map[string]*compress.Stats
}

// NewCompressor creates a Compressor that runs on pool.
func NewCompressor(pool *workerpool.Pool, opts ...Option) *Compressor {
	o := applyOptions(opts)
	return &Compressor{
		pool:   pool,
		opts:   o,
		ws:     o.workingSet(),
		writer: blobstore.NewWriter(o.blobOptions()...),
		stats:  make(map[string]*compress.Stats),
	}
}

// Add compresses weights into buf and queues buf under the key derived from
// name and buf's representation.
func (c *Compressor) Add(name string, weights []float32, buf compress.Buffer) {
	start := time.Now()
	buf.CompressFrom(c.pool, weights, c.ws)
	d := time.Since(start)

	repr := buf.Traits().Name()
	c.opts.logger.LogCompress(context.Background(), name, repr, len(weights), d)
	c.opts.metrics.OnCompress(repr, len(weights), d)

	if st := c.ws.Stats(); st != nil {
		c.stats[name] = st
		c.opts.logger.Debug("compression stats",
			"tensor", name,
			"exact", st.Distortion.NumExact(),
			"sign_flips", st.Distortion.NumSignFlip(),
			"weighted_l1", st.Distortion.WeightedAverageL1(),
			"snr", st.SNR.Mean(),
			"degenerate_groups", st.DegenerateGroups.GetCardinality(),
		)
	}

	c.writer.Add(compress.KeyFor(buf.Tag(), name), buf.Data())
}

// Visit adapts Add to a Visitor.
func (c *Compressor) Visit(name string, weights []float32, buf compress.Buffer) {
	c.Add(name, weights, buf)
}

// AddScales queues the per-tensor scales. An empty slice is not stored.
func (c *Compressor) AddScales(scales []float32) {
	if len(scales) == 0 {
		return
	}
	raw := make([]byte, 4*len(scales))
	for i, s := range scales {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(s))
	}
	c.writer.Add(compress.CacheKey[compress.F32](ScalesName), raw)
}

// Stats returns the statistics of tensor name, or nil unless WithStats was
// given.
func (c *Compressor) Stats(name string) *compress.Stats {
	return c.stats[name]
}

// Len returns the number of queued blobs.
func (c *Compressor) Len() int { return c.writer.Len() }

// WriteAll writes every queued blob to filename.
func (c *Compressor) WriteAll(ctx context.Context, store storage.Store, filename string) error {
	start := time.Now()
	err := c.writer.WriteAll(ctx, c.pool, store, filename)
	d := time.Since(start)

	size := c.writer.Size()
	c.opts.logger.LogWrite(ctx, filename, c.writer.Len(), size, d, err)
	c.opts.metrics.OnWrite(c.writer.Len(), size, d, err)
	return err
}

package weightpack

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hupe1980/weightpack/compress"
	"github.com/hupe1980/weightpack/resource"
	"github.com/hupe1980/weightpack/workerpool"
)

// DecodedCache keeps full-precision copies of recently decoded tensors for
// callers that occasionally need float32 values rather than dot products.
//
// Entries are charged against the resource controller's memory budget.
// Older entries are evicted to make room; a tensor larger than the whole
// budget is decoded but not cached. It is safe for
// concurrent use. Returned slices are shared and must not be modified.
type DecodedCache struct {
	pool  *workerpool.Pool
	rc    *resource.Controller
	cache *lru.Cache[string, []float32]
}

// NewDecodedCache creates a cache holding at most size tensors.
func NewDecodedCache(pool *workerpool.Pool, size int, opts ...Option) (*DecodedCache, error) {
	o := applyOptions(opts)
	c := &DecodedCache{pool: pool, rc: o.rc}

	cache, err := lru.NewWithEvict[string, []float32](size, func(_ string, v []float32) {
		c.rc.ReleaseMemory(4 * int64(len(v)))
	})
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// Get returns the decoded, scaled values of buf, decoding on a miss.
func (c *DecodedCache) Get(name string, buf compress.Buffer) []float32 {
	// Get updates recency.
	if v, ok := c.cache.Get(name); ok {
		return v
	}

	v := make([]float32, buf.Len())
	buf.DecompressTo(c.pool, v)

	bytes := 4 * int64(len(v))
	for !c.rc.TryAcquireMemory(bytes) {
		if _, _, ok := c.cache.RemoveOldest(); !ok {
			return v
		}
	}
	if prev, ok, _ := c.cache.PeekOrAdd(name, v); ok {
		c.rc.ReleaseMemory(bytes)
		return prev
	}
	return v
}

// Remove drops name, e.g. after its buffer was reloaded.
func (c *DecodedCache) Remove(name string) {
	c.cache.Remove(name)
}

// Len returns the number of cached tensors.
func (c *DecodedCache) Len() int { return c.cache.Len() }

// Purge drops every entry.
func (c *DecodedCache) Purge() { c.cache.Purge() }

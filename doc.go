// Package weightpack compresses float32 model weights into compact
// representations, stores them in a single blob store file and loads them
// back for direct use in dot products.
//
// # Quick Start
//
// Compress and write:
//
//	pool := workerpool.New(0)
//	defer pool.Close()
//
//	attn := compress.NewArray[compress.SFP](len(weights))
//	c := weightpack.NewCompressor(pool, weightpack.WithChecksums())
//	c.Add("attn", weights, attn)
//	err := c.WriteAll(ctx, storage.NewLocalStore("./cache"), "model.wpk")
//
// Load:
//
//	l := weightpack.NewCacheLoader(ctx, store, "model.wpk")
//	defer l.Close()
//	l.Load("attn", attn)
//	if err := l.ReadAll(ctx, pool); err != nil {
//	    // errors.Is(err, weightpack.ErrCacheInvalid): recompress
//	}
//	y := compress.Dot(attn, 0, x)
//
// LoadOrCompress combines both: it tries the cache and falls back to
// compressing and rewriting the file.
//
// # Representations
//
// Each tensor is stored under a key derived from its name and its
// representation tag (F, B, $ or 2), so changing a tensor's representation
// misses the cache instead of misreading it.
//
// # Failure Model
//
// Loads are all or nothing. Any missing blob, size mismatch, checksum
// mismatch or I/O error makes ReadAll fail with ErrCacheInvalid; callers
// then regenerate the file. There are no internal retries.
package weightpack

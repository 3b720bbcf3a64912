package weightpack

import (
	"sync/atomic"
	"time"
)

// MetricsObserver receives operational events.
// Implement this interface to integrate with monitoring systems like
// Prometheus (see package prommetrics).
type MetricsObserver interface {
	// OnCompress is called after each tensor is compressed.
	// elements is the number of float32 inputs.
	OnCompress(representation string, elements int, duration time.Duration)

	// OnWrite is called after a cache file write. bytes is the file size.
	OnWrite(blobs int, bytes int64, duration time.Duration, err error)

	// OnLoad is called after a cache ReadAll. bytes is the payload read.
	OnLoad(blobs int, bytes int64, duration time.Duration, err error)

	// OnCacheMiss is called when LoadOrCompress falls back to compression.
	OnCacheMiss()
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
// Use this when metrics collection is not needed.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnCompress(string, int, time.Duration)    {}
func (NoopMetricsObserver) OnWrite(int, int64, time.Duration, error) {}
func (NoopMetricsObserver) OnLoad(int, int64, time.Duration, error)  {}
func (NoopMetricsObserver) OnCacheMiss()                             {}

// BasicMetricsObserver provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsObserver struct {
	CompressCount    atomic.Int64
	CompressElements atomic.Int64
	CompressNanos    atomic.Int64
	WriteCount       atomic.Int64
	WriteErrors      atomic.Int64
	WriteBytes       atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	LoadBytes        atomic.Int64
	LoadNanos        atomic.Int64
	CacheMisses      atomic.Int64
}

// OnCompress implements MetricsObserver.
func (b *BasicMetricsObserver) OnCompress(_ string, elements int, duration time.Duration) {
	b.CompressCount.Add(1)
	b.CompressElements.Add(int64(elements))
	b.CompressNanos.Add(duration.Nanoseconds())
}

// OnWrite implements MetricsObserver.
func (b *BasicMetricsObserver) OnWrite(_ int, bytes int64, _ time.Duration, err error) {
	b.WriteCount.Add(1)
	if err != nil {
		b.WriteErrors.Add(1)
		return
	}
	b.WriteBytes.Add(bytes)
}

// OnLoad implements MetricsObserver.
func (b *BasicMetricsObserver) OnLoad(_ int, bytes int64, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.LoadBytes.Add(bytes)
}

// OnCacheMiss implements MetricsObserver.
func (b *BasicMetricsObserver) OnCacheMiss() {
	b.CacheMisses.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsObserver) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CompressCount:    b.CompressCount.Load(),
		CompressElements: b.CompressElements.Load(),
		CompressMBPerSec: megabytesPerSecond(4*b.CompressElements.Load(), time.Duration(b.CompressNanos.Load())),
		WriteCount:       b.WriteCount.Load(),
		WriteErrors:      b.WriteErrors.Load(),
		WriteBytes:       b.WriteBytes.Load(),
		LoadCount:        b.LoadCount.Load(),
		LoadErrors:       b.LoadErrors.Load(),
		LoadBytes:        b.LoadBytes.Load(),
		CacheMisses:      b.CacheMisses.Load(),
	}
}

// BasicMetricsStats is a snapshot of BasicMetricsObserver state.
type BasicMetricsStats struct {
	CompressCount    int64
	CompressElements int64
	CompressMBPerSec float64
	WriteCount       int64
	WriteErrors      int64
	WriteBytes       int64
	LoadCount        int64
	LoadErrors       int64
	LoadBytes        int64
	CacheMisses      int64
}

package compress

import "github.com/hupe1980/weightpack/internal/cluster"

// PerThread is the private scratch of one pool worker.
type PerThread struct {
	ClusterBuf cluster.Buf
	// Stats is nil unless the working set collects statistics.
	Stats *Stats

	decoded []float32
}

func (t *PerThread) scratch(n int) []float32 {
	if cap(t.decoded) < n {
		t.decoded = make([]float32, n)
	}
	return t.decoded[:n]
}

// WorkingSetOption configures a WorkingSet.
type WorkingSetOption func(*WorkingSet)

// WithStats enables compression statistics.
func WithStats() WorkingSetOption {
	return func(ws *WorkingSet) { ws.collect = true }
}

// WorkingSet holds per-worker scratch reused across Compress calls. It must
// not be shared by concurrent Compress calls.
type WorkingSet struct {
	threads []PerThread
	collect bool
	merged  *Stats
}

// NewWorkingSet creates an empty working set. Scratch is allocated lazily
// for the size of the pool it is used with.
func NewWorkingSet(opts ...WorkingSetOption) *WorkingSet {
	ws := &WorkingSet{}
	for _, fn := range opts {
		fn(ws)
	}
	return ws
}

// Thread returns the scratch of worker i. It is valid after a Compress call
// with a pool of more than i workers.
func (ws *WorkingSet) Thread(i int) *PerThread { return &ws.threads[i] }

// Stats returns the statistics of the most recent Compress call, or nil if
// statistics are disabled.
func (ws *WorkingSet) Stats() *Stats { return ws.merged }

func (ws *WorkingSet) prepare(workers int) {
	for len(ws.threads) < workers {
		ws.threads = append(ws.threads, PerThread{})
	}
	if !ws.collect {
		return
	}
	for i := range ws.threads {
		if ws.threads[i].Stats == nil {
			ws.threads[i].Stats = newStats()
		} else {
			ws.threads[i].Stats.Reset()
		}
	}
}

// merge folds the per-worker statistics together after the parallel phase.
func (ws *WorkingSet) merge() {
	if !ws.collect {
		return
	}
	merged := newStats()
	for i := range ws.threads {
		merged.Assimilate(ws.threads[i].Stats)
	}
	ws.merged = merged
}

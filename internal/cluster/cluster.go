// Package cluster partitions one group of scalars into at most K clusters
// with minimal total squared error.
//
// The optimum is exact: in one dimension every optimal cluster is a
// contiguous run of the sorted values, so sorting followed by dynamic
// programming over prefix sums finds it. The dynamic program uses the
// divide-and-conquer optimisation (the split point is monotone in the
// right end), giving O(K * G * log G) per group.
package cluster

import (
	"cmp"
	"slices"

	"github.com/hupe1980/weightpack/internal/assert"
)

const (
	// GroupSize is the number of elements clustered together.
	GroupSize = 256
	// K is the maximum number of clusters per group.
	K = 16
)

type entry struct {
	value float32
	pos   uint16
}

// Buf is caller-provided scratch. One Buf must not be shared by concurrent
// calls; it carries no state between calls.
type Buf struct {
	sorted [GroupSize]entry
	sum    [GroupSize + 1]float64
	sumSq  [GroupSize + 1]float64
	cost   [2][GroupSize + 1]float64
	split  [K][GroupSize + 1]int16
}

// ExactL2 clusters in (exactly GroupSize values) and writes the centers and,
// per element, the index of its center.
//
// It returns the number of unused clusters. Unused clusters occupy the low
// slots [0, unused) and have center 0; active centers are in ascending order
// in [unused, K).
func ExactL2(in []float32, buf *Buf, centers *[K]float32, indices *[GroupSize]uint16) int {
	if assert.Enabled {
		assert.That(len(in) == GroupSize, "cluster input has %d values, want %d", len(in), GroupSize)
	}

	s := buf.sorted[:]
	for i := range s {
		s[i] = entry{value: in[i], pos: uint16(i)}
	}
	slices.SortFunc(s, func(a, b entry) int {
		if c := cmp.Compare(a.value, b.value); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})

	distinct := 1
	for i := 1; i < GroupSize; i++ {
		if s[i].value != s[i-1].value {
			distinct++
		}
	}

	if distinct <= K {
		return clusterDistinct(s, distinct, centers, indices)
	}

	buf.prefixSums()
	buf.solve()
	buf.assign(centers, indices)
	return 0
}

// clusterDistinct gives every distinct value its own cluster, which has zero
// error and is therefore optimal.
func clusterDistinct(s []entry, distinct int, centers *[K]float32, indices *[GroupSize]uint16) int {
	unused := K - distinct
	for i := 0; i < unused; i++ {
		centers[i] = 0
	}

	c := unused
	centers[c] = s[0].value
	for i := range s {
		if i > 0 && s[i].value != s[i-1].value {
			c++
			centers[c] = s[i].value
		}
		indices[s[i].pos] = uint16(c)
	}
	return unused
}

func (b *Buf) prefixSums() {
	b.sum[0], b.sumSq[0] = 0, 0
	for i, e := range b.sorted {
		v := float64(e.value)
		b.sum[i+1] = b.sum[i] + v
		b.sumSq[i+1] = b.sumSq[i] + v*v
	}
}

// sse returns the squared error of the sorted run [i, j) around its mean.
func (b *Buf) sse(i, j int) float64 {
	n := float64(j - i)
	s := b.sum[j] - b.sum[i]
	return (b.sumSq[j] - b.sumSq[i]) - s*s/n
}

// solve fills split[k][j]: the start of the last cluster when the first j
// sorted values form k+1 clusters.
func (b *Buf) solve() {
	prev := &b.cost[0]
	for j := 1; j <= GroupSize; j++ {
		prev[j] = b.sse(0, j)
		b.split[0][j] = 0
	}

	for k := 1; k < K; k++ {
		cur := &b.cost[k&1]
		prev = &b.cost[(k-1)&1]
		b.layer(k, prev, cur, k+1, GroupSize, k, GroupSize-1)
	}
}

// layer computes cur[j] for j in [lo, hi] knowing the optimal split lies in
// [optLo, optHi].
func (b *Buf) layer(k int, prev, cur *[GroupSize + 1]float64, lo, hi, optLo, optHi int) {
	if lo > hi {
		return
	}
	mid := (lo + hi) / 2

	first := max(optLo, k)
	last := min(optHi, mid-1)
	bestSplit := first
	bestCost := prev[first] + b.sse(first, mid)
	for i := first + 1; i <= last; i++ {
		if c := prev[i] + b.sse(i, mid); c < bestCost {
			bestCost = c
			bestSplit = i
		}
	}
	cur[mid] = bestCost
	b.split[k][mid] = int16(bestSplit)

	b.layer(k, prev, cur, lo, mid-1, optLo, bestSplit)
	b.layer(k, prev, cur, mid+1, hi, bestSplit, optHi)
}

// assign walks the splits back from the full group and writes the centers
// (cluster means) and indices.
func (b *Buf) assign(centers *[K]float32, indices *[GroupSize]uint16) {
	end := GroupSize
	for k := K - 1; k >= 0; k-- {
		start := int(b.split[k][end])
		if k == 0 {
			start = 0
		}
		centers[k] = float32((b.sum[end] - b.sum[start]) / float64(end-start))
		for _, e := range b.sorted[start:end] {
			indices[e.pos] = uint16(k)
		}
		end = start
	}
}

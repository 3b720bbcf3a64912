package compress

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/weightpack/internal/distortion"
)

// HistogramBins is the number of input histogram buckets. Inputs are bucketed
// at a resolution of 0.01 over [-5, 5]; outliers land in the end buckets.
const HistogramBins = 1001

// Stats are optional compression diagnostics.
type Stats struct {
	// Distortion compares every input with its reconstruction.
	Distortion distortion.Stats
	// SNR holds the per-batch geometric mean of |value|/L1. Lossless batches
	// are skipped.
	SNR distortion.Moments
	// DegenerateGroups holds the indices of NUQ groups that needed fewer
	// than 16 clusters.
	DegenerateGroups *roaring.Bitmap
	// InputHistogram counts NUQ inputs per bucket.
	InputHistogram [HistogramBins]uint64
}

func newStats() *Stats {
	return &Stats{DegenerateGroups: roaring.New()}
}

// Reset clears all counters.
func (s *Stats) Reset() {
	bm := s.DegenerateGroups
	bm.Clear()
	*s = Stats{DegenerateGroups: bm}
}

// Assimilate merges other into s.
func (s *Stats) Assimilate(other *Stats) {
	s.Distortion.Assimilate(&other.Distortion)
	s.SNR.Assimilate(&other.SNR)
	s.DegenerateGroups.Or(other.DegenerateGroups)
	for i, n := range other.InputHistogram {
		s.InputHistogram[i] += n
	}
}

func (s *Stats) notifyBatch(in []float32, decoded func(i int) float32) {
	var batch distortion.Stats
	for i, v := range in {
		batch.Notify(v, decoded(i))
	}
	if snr := batch.GeomeanValueDivL1(); snr != 0 {
		s.SNR.Notify(snr)
	}
	s.Distortion.Assimilate(&batch)
}

func (s *Stats) notifyInputs(in []float32) {
	for _, v := range in {
		s.InputHistogram[histogramBucket(v)]++
	}
}

func histogramBucket(v float32) int {
	b := math.Round(float64(v)*100 + 500)
	switch {
	case b < 0 || math.IsNaN(b):
		return 0
	case b >= HistogramBins:
		return HistogramBins - 1
	}
	return int(b)
}

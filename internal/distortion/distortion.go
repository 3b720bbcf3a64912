// Package distortion accumulates error statistics between original values and
// their lossy reconstructions.
package distortion

import "math"

// Moments tracks count, mean, variance and skewness of a stream of values.
type Moments struct {
	n                int
	sum, sum2, sum3  float64
	minimum, maximum float64
}

// Notify adds one value.
func (m *Moments) Notify(v float64) {
	if m.n == 0 || v < m.minimum {
		m.minimum = v
	}
	if m.n == 0 || v > m.maximum {
		m.maximum = v
	}
	m.n++
	m.sum += v
	m.sum2 += v * v
	m.sum3 += v * v * v
}

// Assimilate merges other into m.
func (m *Moments) Assimilate(other *Moments) {
	if other.n == 0 {
		return
	}
	if m.n == 0 {
		*m = *other
		return
	}
	m.n += other.n
	m.sum += other.sum
	m.sum2 += other.sum2
	m.sum3 += other.sum3
	m.minimum = math.Min(m.minimum, other.minimum)
	m.maximum = math.Max(m.maximum, other.maximum)
}

// Count returns the number of values.
func (m *Moments) Count() int { return m.n }

// Min returns the smallest value, or 0 if empty.
func (m *Moments) Min() float64 { return m.minimum }

// Max returns the largest value, or 0 if empty.
func (m *Moments) Max() float64 { return m.maximum }

// Mean returns the arithmetic mean, or 0 if empty.
func (m *Moments) Mean() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// Variance returns the population variance.
func (m *Moments) Variance() float64 {
	if m.n == 0 {
		return 0
	}
	mean := m.Mean()
	return math.Max(0, m.sum2/float64(m.n)-mean*mean)
}

// Skewness returns the population skewness, or 0 when the variance is zero.
func (m *Moments) Skewness() float64 {
	v := m.Variance()
	if v == 0 {
		return 0
	}
	n := float64(m.n)
	mean := m.Mean()
	third := m.sum3/n - 3*mean*m.sum2/n + 2*mean*mean*mean
	return third / math.Pow(v, 1.5)
}

// Stats compares original values with their reconstructions.
type Stats struct {
	n              int
	numExact       int
	numSignFlip    int
	numRoundedZero int
	sumL1          float64
	// Sum of log(|original|/l1) over inexact, nonzero originals.
	sumLogValueDivL1 float64
	numValueDivL1    int
	weightedL1       float64
	sumWeights       float64

	original Moments
	l1       Moments
}

// Notify records one original value and its reconstruction.
func (s *Stats) Notify(original, distorted float32) {
	s.n++
	s.original.Notify(float64(original))

	l1 := math.Abs(float64(original) - float64(distorted))
	s.l1.Notify(l1)
	if l1 == 0 {
		s.numExact++
		return
	}

	if (original < 0) != (distorted < 0) && original != 0 && distorted != 0 {
		s.numSignFlip++
	}
	if original != 0 && distorted == 0 {
		s.numRoundedZero++
	}

	s.sumL1 += l1
	mag := math.Abs(float64(original))
	if mag != 0 {
		s.sumLogValueDivL1 += math.Log(mag / l1)
		s.numValueDivL1++
	}
	s.weightedL1 += l1 * mag
	s.sumWeights += mag
}

// Assimilate merges other into s.
func (s *Stats) Assimilate(other *Stats) {
	s.n += other.n
	s.numExact += other.numExact
	s.numSignFlip += other.numSignFlip
	s.numRoundedZero += other.numRoundedZero
	s.sumL1 += other.sumL1
	s.sumLogValueDivL1 += other.sumLogValueDivL1
	s.numValueDivL1 += other.numValueDivL1
	s.weightedL1 += other.weightedL1
	s.sumWeights += other.sumWeights
	s.original.Assimilate(&other.original)
	s.l1.Assimilate(&other.l1)
}

// NumValues returns the number of recorded pairs.
func (s *Stats) NumValues() int { return s.n }

// NumExact returns how many values were reconstructed exactly.
func (s *Stats) NumExact() int { return s.numExact }

// NumSignFlip returns how many nonzero values changed sign.
func (s *Stats) NumSignFlip() int { return s.numSignFlip }

// NumRoundedToZero returns how many nonzero values became zero.
func (s *Stats) NumRoundedToZero() int { return s.numRoundedZero }

// SumL1 returns the total absolute error.
func (s *Stats) SumL1() float64 { return s.sumL1 }

// GeomeanValueDivL1 is the geometric mean of |original|/error over inexact
// values, a signal-to-noise ratio. Zero if every value was exact.
func (s *Stats) GeomeanValueDivL1() float64 {
	if s.numValueDivL1 == 0 {
		return 0
	}
	return math.Exp(s.sumLogValueDivL1 / float64(s.numValueDivL1))
}

// WeightedAverageL1 is the mean absolute error weighted by |original|, so
// errors on large weights count more.
func (s *Stats) WeightedAverageL1() float64 {
	if s.sumWeights == 0 {
		return 0
	}
	return s.weightedL1 / s.sumWeights
}

// Original returns moments of the original values.
func (s *Stats) Original() *Moments { return &s.original }

// L1 returns moments of the absolute errors.
func (s *Stats) L1() *Moments { return &s.l1 }

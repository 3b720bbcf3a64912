package kernel

import "gonum.org/v1/gonum/blas/blas32"

// Lanes is the number of float32 lanes in the widest vector the kernels are
// laid out for. Passthrough streams are aligned to it and the even/odd
// deinterleaved query layout uses blocks of 2*Lanes.
const Lanes = 8

// NumAccumulators is the number of independent partial sums codec dot
// products spread their work across.
const NumAccumulators = 4

// Accumulators are independent partial sums. Codecs add into them in a fixed
// order; the caller reduces them with Sum.
type Accumulators [NumAccumulators]float32

// Sum reduces the accumulators with a fixed pairwise tree.
func (a *Accumulators) Sum() float32 {
	return (a[0] + a[1]) + (a[2] + a[3])
}

// Reset zeroes all accumulators.
func (a *Accumulators) Reset() {
	*a = Accumulators{}
}

// Kernel function pointers, set once at init.
var (
	kernelDot   = dotGeneric
	kernelScale = scaleGeneric
)

// Dot calculates the dot product of two vectors.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func Dot(a, b []float32) float32 {
	return kernelDot(a, b)
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	kernelScale(a, scalar)
}

func dotGeneric(a, b []float32) float32 {
	var acc Accumulators
	n := len(a)
	i := 0
	for ; i+NumAccumulators <= n; i += NumAccumulators {
		acc[0] += a[i] * b[i]
		acc[1] += a[i+1] * b[i+1]
		acc[2] += a[i+2] * b[i+2]
		acc[3] += a[i+3] * b[i+3]
	}
	for ; i < n; i++ {
		acc[0] += a[i] * b[i]
	}
	return acc.Sum()
}

func scaleGeneric(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

func dotBLAS(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return blas32.Dot(
		blas32.Vector{N: len(a), Inc: 1, Data: a},
		blas32.Vector{N: len(b), Inc: 1, Data: b[:len(a)]},
	)
}

func scaleBLAS(a []float32, scalar float32) {
	if len(a) == 0 {
		return
	}
	blas32.Scal(scalar, blas32.Vector{N: len(a), Inc: 1, Data: a})
}

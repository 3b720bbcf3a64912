// Package sfp implements the switching floating point format: one byte per
// element holding a sign bit and a 7-bit magnitude code.
//
// Magnitude codes are monotonic:
//
//	0..3     subnormal  m * 2^-24
//	4..63    (1 + m/4) * 2^(e-23), e = code>>2,        m = code&3
//	64..127  (1 + m/8) * 2^(e-7),  e = (code-64)>>3,   m = code&7
//
// Small magnitudes get more exponent range, large ones more mantissa. The
// largest representable magnitude is 1.875; larger inputs saturate.
package sfp

import (
	"math"
	"slices"

	"github.com/hupe1980/weightpack/internal/assert"
	"github.com/hupe1980/weightpack/internal/kernel"
)

// MaxMagnitude is the largest representable magnitude.
const MaxMagnitude = 1.875

const (
	signBit  = 0x80
	numCodes = 128
)

var (
	// magnitudes[c] is the value of magnitude code c.
	magnitudes [numCodes]float32
	// thresholds[c] is the midpoint between codes c and c+1.
	thresholds [numCodes - 1]float64
	// decodeTable maps a full byte (sign included) to its value.
	decodeTable [256]float32
)

func init() {
	for c := 0; c < numCodes; c++ {
		magnitudes[c] = codeMagnitude(c)
	}
	for c := 0; c < numCodes-1; c++ {
		thresholds[c] = (float64(magnitudes[c]) + float64(magnitudes[c+1])) / 2
	}
	for b := 0; b < 256; b++ {
		v := magnitudes[b&^signBit]
		if b&signBit != 0 {
			v = -v
		}
		decodeTable[b] = v
	}
	// Negative zero decodes as +0 so 0x80 is harmless if it ever appears.
	decodeTable[signBit] = 0
}

func codeMagnitude(c int) float32 {
	switch {
	case c < 4:
		return float32(math.Ldexp(float64(c), -24))
	case c < 64:
		e, m := c>>2, c&3
		return float32(math.Ldexp(1+float64(m)/4, e-23))
	default:
		e, m := (c-64)>>3, c&7
		return float32(math.Ldexp(1+float64(m)/8, e-7))
	}
}

// EncodeValue returns the byte for v, rounding to the nearest representable
// magnitude with ties to the even code. NaN encodes as zero.
func EncodeValue(v float32) byte {
	mag := math.Abs(float64(v))
	if mag == 0 || math.IsNaN(mag) {
		return 0
	}

	pos, tie := slices.BinarySearch(thresholds[:], mag)
	code := pos
	if tie && code&1 == 1 {
		code++
	}
	if code == 0 {
		return 0
	}

	b := byte(code)
	if v < 0 {
		b |= signBit
	}
	return b
}

// DecodeValue returns the value of an encoded byte.
func DecodeValue(b byte) float32 {
	return decodeTable[b]
}

// Encode converts len(in) values into out[:len(in)].
func Encode(in []float32, out []byte) {
	if assert.Enabled {
		assert.That(len(out) >= len(in), "sfp output too small: %d < %d", len(out), len(in))
	}
	out = out[:len(in)]
	for i, v := range in {
		out[i] = EncodeValue(v)
	}
}

// Decode converts len(out) bytes of in.
func Decode(in []byte, out []float32) {
	if assert.Enabled {
		assert.That(len(in) >= len(out), "sfp input too small: %d < %d", len(in), len(out))
	}
	in = in[:len(out)]
	for i, b := range in {
		out[i] = decodeTable[b]
	}
}

// Decode2 decodes two adjacent runs of len(out0) values into out0 and out1.
func Decode2(in []byte, out0, out1 []float32) {
	n := len(out0)
	Decode(in[:n], out0)
	Decode(in[n:n+len(out1)], out1)
}

// Dot adds the dot product of the first len(vec) encoded values with vec into
// acc. Consecutive elements go to consecutive accumulators.
func Dot(in []byte, vec []float32, acc *kernel.Accumulators) {
	if assert.Enabled {
		assert.That(len(in) >= len(vec), "sfp input too small: %d < %d", len(in), len(vec))
	}
	in = in[:len(vec)]

	n := len(vec)
	i := 0
	for ; i+kernel.NumAccumulators <= n; i += kernel.NumAccumulators {
		acc[0] += decodeTable[in[i]] * vec[i]
		acc[1] += decodeTable[in[i+1]] * vec[i+1]
		acc[2] += decodeTable[in[i+2]] * vec[i+2]
		acc[3] += decodeTable[in[i+3]] * vec[i+3]
	}
	for j := 0; i < n; i, j = i+1, j+1 {
		acc[j] += decodeTable[in[i]] * vec[i]
	}
}

// BlockSize is the block length of the even/odd query layout.
const BlockSize = 2 * kernel.Lanes

// DeinterleaveEvenOdd rewrites vec so that each full block of BlockSize
// values holds the Lanes even-indexed values followed by the Lanes
// odd-indexed ones. A trailing partial block is copied unchanged.
func DeinterleaveEvenOdd(vec, out []float32) {
	if assert.Enabled {
		assert.That(len(out) >= len(vec), "deinterleave output too small: %d < %d", len(out), len(vec))
	}

	n := len(vec)
	i := 0
	for ; i+BlockSize <= n; i += BlockSize {
		for j := 0; j < kernel.Lanes; j++ {
			out[i+j] = vec[i+2*j]
			out[i+kernel.Lanes+j] = vec[i+2*j+1]
		}
	}
	copy(out[i:n], vec[i:n])
}

// DotEO is Dot against a query prepared with DeinterleaveEvenOdd. The packed
// stream stays in natural order.
func DotEO(in []byte, vecEO []float32, acc *kernel.Accumulators) {
	if assert.Enabled {
		assert.That(len(in) >= len(vecEO), "sfp input too small: %d < %d", len(in), len(vecEO))
		assert.That(len(vecEO)%BlockSize == 0, "even/odd query length %d not a multiple of %d", len(vecEO), BlockSize)
	}

	n := len(vecEO)
	i := 0
	for ; i+BlockSize <= n; i += BlockSize {
		even := vecEO[i : i+kernel.Lanes]
		odd := vecEO[i+kernel.Lanes : i+BlockSize]
		block := in[i : i+BlockSize]
		for j := 0; j < kernel.Lanes; j += 2 {
			acc[0] += decodeTable[block[2*j]] * even[j]
			acc[1] += decodeTable[block[2*j+1]] * odd[j]
			acc[2] += decodeTable[block[2*j+2]] * even[j+1]
			acc[3] += decodeTable[block[2*j+3]] * odd[j+1]
		}
	}
	if i < n {
		Dot(in[i:n], vecEO[i:n], acc)
	}
}

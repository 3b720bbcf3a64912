// Package bf16 implements bfloat16 encoding/decoding.
//
// This package is internal: it exists to support bfloat16 as a storage format
// while keeping execution in float32.
package bf16

import (
	"encoding/binary"
	"math"
)

// Bits is the raw bfloat16 bit-pattern: the upper half of a float32.
//
// Layout:
//
//	sign: 1 bit
//	exp:  8 bits (bias 127, same as float32)
//	frac: 7 bits
type Bits uint16

// Size is the encoded size of one element in bytes.
const Size = 2

const (
	f32ExpMask  uint32 = 0x7F800000
	f32FracMask uint32 = 0x007FFFFF
)

// ToFloat32 converts a bfloat16 bit-pattern to float32. The conversion is exact.
func ToFloat32(h Bits) float32 {
	return math.Float32frombits(uint32(h) << 16)
}

// FromFloat32 converts a float32 value into a bfloat16 bit-pattern.
//
// Rounding mode: round-to-nearest, ties-to-even.
func FromFloat32(f float32) Bits {
	bits := math.Float32bits(f)

	// NaN: keep it a quiet NaN even if the payload lives in the low half.
	if bits&f32ExpMask == f32ExpMask && bits&f32FracMask != 0 {
		return Bits(bits>>16) | 0x0040
	}

	// Adding 0x7FFF plus the lowest kept bit rounds half to even; a carry out of
	// the mantissa correctly bumps the exponent (and overflows to Inf).
	lsb := (bits >> 16) & 1
	bits += 0x7FFF + lsb
	return Bits(bits >> 16)
}

// Encode converts float32 values to little-endian bfloat16 bytes.
// dst must have length >= 2*len(src).
func Encode(dst []byte, src []float32) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*Size:], uint16(FromFloat32(v)))
	}
}

// Decode converts little-endian bfloat16 bytes to float32.
// src must have length >= 2*len(dst).
func Decode(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = ToFloat32(Bits(binary.LittleEndian.Uint16(src[i*Size:])))
	}
}

// At decodes the i-th element of a little-endian bfloat16 stream.
func At(src []byte, i int) float32 {
	return ToFloat32(Bits(binary.LittleEndian.Uint16(src[i*Size:])))
}

// Package compress provides uniform compress, decompress and dot product
// operations over the four weight representations:
//
//   - F32: passthrough little-endian float32
//   - BF16: bfloat16, round to nearest even
//   - SFP: one byte per element, switching floating point, |x| <= 1.875
//   - NUQ: non-uniform quantization, 16 clustered centers per group of 256
//
// Representations are zero-size types implementing Traits and are selected
// statically through generics (Compress[NUQ], Array[SFP]). ByTag is the only
// dynamic boundary and is used when loading by name.
//
// Bulk operations run on an explicit workerpool.Pool in batches of
// BatchSize elements. Batches write disjoint ranges, so the output does not
// depend on the pool size.
package compress

// Package kernel provides the float32 inner loops shared by the codecs:
// dot products, in-place scaling and the partial accumulators that codec dot
// products reduce into.
//
// # Dispatch
//
// Kernel function pointers are set once at init, after CPU feature detection
// (golang.org/x/sys/cpu). Wide-vector CPUs route dense float32 work through
// gonum's blas32, which is backed by assembly on amd64 and arm64; everything
// else uses the unrolled pure-Go kernels in this package.
//
// The WEIGHTPACK_KERNEL environment variable ("generic", "blas") overrides
// the automatic choice, which is useful for reproducing results across
// machines.
//
// # Determinism
//
// For a given input and selected ISA every kernel is deterministic. Results
// may differ in the last bits between ISAs because summation order differs.
package kernel

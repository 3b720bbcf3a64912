package compress

import (
	"github.com/hupe1980/weightpack/internal/bf16"
	"github.com/hupe1980/weightpack/internal/kernel"
)

// BF16 stores the upper half of each float32, rounded to nearest even.
type BF16 struct{}

func (BF16) Name() string         { return "bf16" }
func (BF16) Tag() Tag             { return TagBF16 }
func (BF16) PackedSize(n int) int { return bf16.Size * n }
func (BF16) Alignment() int       { return 2 * kernel.Lanes }

func (BF16) Compress(in []float32, tls *PerThread, _ int, out []byte, outOfs int) {
	dst := out[bf16.Size*outOfs:]
	bf16.Encode(dst, in)
	if tls != nil && tls.Stats != nil {
		tls.Stats.notifyBatch(in, func(i int) float32 { return bf16.At(dst, i) })
	}
}

func (BF16) Decompress(_ int, in []byte, inOfs int, out []float32) {
	bf16.Decode(out, in[bf16.Size*inOfs:])
}

func (BF16) Decompress2(in []byte, inOfs int, out0, out1 []float32) {
	bf16.Decode(out0, in[bf16.Size*inOfs:])
	bf16.Decode(out1, in[bf16.Size*(inOfs+len(out0)):])
}

func (BF16) Dot(_ int, in []byte, inOfs int, vec []float32) float32 {
	src := in[bf16.Size*inOfs:]
	var acc kernel.Accumulators
	n := len(vec)
	i := 0
	for ; i+kernel.NumAccumulators <= n; i += kernel.NumAccumulators {
		acc[0] += bf16.At(src, i) * vec[i]
		acc[1] += bf16.At(src, i+1) * vec[i+1]
		acc[2] += bf16.At(src, i+2) * vec[i+2]
		acc[3] += bf16.At(src, i+3) * vec[i+3]
	}
	for j := 0; i < n; i, j = i+1, j+1 {
		acc[j] += bf16.At(src, i) * vec[i]
	}
	return acc.Sum()
}

func (b BF16) DotEO(in []byte, inOfs int, vecEO []float32) float32 {
	src := in[bf16.Size*inOfs:]
	var acc kernel.Accumulators
	n := len(vecEO)
	i := 0
	for ; i+BlockSize <= n; i += BlockSize {
		even := vecEO[i : i+kernel.Lanes]
		odd := vecEO[i+kernel.Lanes : i+BlockSize]
		for j := 0; j < kernel.Lanes; j += 2 {
			acc[0] += bf16.At(src, i+2*j) * even[j]
			acc[1] += bf16.At(src, i+2*j+1) * odd[j]
			acc[2] += bf16.At(src, i+2*j+2) * even[j+1]
			acc[3] += bf16.At(src, i+2*j+3) * odd[j+1]
		}
	}
	sum := acc.Sum()
	if i < n {
		sum += b.Dot(0, in, inOfs+i, vecEO[i:])
	}
	return sum
}

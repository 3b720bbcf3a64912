package compress

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/weightpack/internal/kernel"
)

// F32 stores float32 values unchanged.
type F32 struct{}

func (F32) Name() string         { return "f32" }
func (F32) Tag() Tag             { return TagF32 }
func (F32) PackedSize(n int) int { return 4 * n }
func (F32) Alignment() int       { return kernel.Lanes }

func (F32) Compress(in []float32, tls *PerThread, _ int, out []byte, outOfs int) {
	dst := out[4*outOfs:]
	for i, v := range in {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
	if tls != nil && tls.Stats != nil {
		tls.Stats.notifyBatch(in, func(i int) float32 { return in[i] })
	}
}

func (F32) Decompress(_ int, in []byte, inOfs int, out []float32) {
	src := in[4*inOfs:]
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[4*i:]))
	}
}

func (f F32) Decompress2(in []byte, inOfs int, out0, out1 []float32) {
	f.Decompress(0, in, inOfs, out0)
	f.Decompress(0, in, inOfs+len(out0), out1)
}

// dotChunk bounds the stack buffer used to feed the float32 kernel.
const dotChunk = 256

func (f F32) Dot(_ int, in []byte, inOfs int, vec []float32) float32 {
	var (
		buf [dotChunk]float32
		sum float32
	)
	for i := 0; i < len(vec); i += dotChunk {
		n := min(dotChunk, len(vec)-i)
		f.Decompress(0, in, inOfs+i, buf[:n])
		sum += kernel.Dot(buf[:n], vec[i:i+n])
	}
	return sum
}

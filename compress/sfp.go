package compress

import (
	"github.com/hupe1980/weightpack/internal/kernel"
	"github.com/hupe1980/weightpack/internal/sfp"
)

// SFP stores one byte per element. Inputs must be scaled to at most
// sfp.MaxMagnitude; larger magnitudes saturate.
type SFP struct{}

func (SFP) Name() string         { return "sfp" }
func (SFP) Tag() Tag             { return TagSFP }
func (SFP) PackedSize(n int) int { return n }
func (SFP) Alignment() int       { return 1 }

func (SFP) Compress(in []float32, tls *PerThread, _ int, out []byte, outOfs int) {
	dst := out[outOfs : outOfs+len(in)]
	sfp.Encode(in, dst)
	if tls != nil && tls.Stats != nil {
		tls.Stats.notifyBatch(in, func(i int) float32 { return sfp.DecodeValue(dst[i]) })
	}
}

func (SFP) Decompress(_ int, in []byte, inOfs int, out []float32) {
	sfp.Decode(in[inOfs:], out)
}

func (SFP) Decompress2(in []byte, inOfs int, out0, out1 []float32) {
	sfp.Decode2(in[inOfs:], out0, out1)
}

func (SFP) Dot(_ int, in []byte, inOfs int, vec []float32) float32 {
	var acc kernel.Accumulators
	sfp.Dot(in[inOfs:], vec, &acc)
	return acc.Sum()
}

func (SFP) DotEO(in []byte, inOfs int, vecEO []float32) float32 {
	var acc kernel.Accumulators
	full := len(vecEO) / BlockSize * BlockSize
	sfp.DotEO(in[inOfs:], vecEO[:full], &acc)
	if full < len(vecEO) {
		sfp.Dot(in[inOfs+full:], vecEO[full:], &acc)
	}
	return acc.Sum()
}

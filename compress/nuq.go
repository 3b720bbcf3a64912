package compress

import (
	"github.com/hupe1980/weightpack/internal/kernel"
	"github.com/hupe1980/weightpack/internal/nuq"
)

// NUQ clusters each group of nuq.GroupSize elements into nuq.Clusters
// centers and stores a 4-bit index per element.
type NUQ struct{}

func (NUQ) Name() string         { return "nuq" }
func (NUQ) Tag() Tag             { return TagNUQ }
func (NUQ) PackedSize(n int) int { return nuq.PackedEnd(n) }
func (NUQ) Alignment() int       { return nuq.GroupSize }

func (NUQ) Compress(in []float32, tls *PerThread, outCapacity int, out []byte, outOfs int) {
	st := tls.Stats
	if st == nil {
		nuq.Encode(in, &tls.ClusterBuf, outCapacity, out, outOfs)
		return
	}

	nuq.EncodeFunc(in, &tls.ClusterBuf, outCapacity, out, outOfs, func(group, unused int) {
		if unused > 0 {
			st.DegenerateGroups.Add(uint32(group))
		}
	})

	st.notifyInputs(in)
	distorted := tls.scratch(len(in))
	nuq.Decode(outCapacity, out, outOfs, distorted)
	st.notifyBatch(in, func(i int) float32 { return distorted[i] })
}

func (NUQ) Decompress(inCapacity int, in []byte, inOfs int, out []float32) {
	nuq.Decode(inCapacity, in, inOfs, out)
}

func (NUQ) Dot(_ int, in []byte, inOfs int, vec []float32) float32 {
	var acc kernel.Accumulators
	nuq.Dot(in, inOfs, vec, &acc)
	return acc.Sum()
}

// Package nuq implements non-uniform quantization: each group of 256 values
// is clustered into 16 centers and every element stores a 4-bit index.
//
// A group occupies a fixed 192-byte slot: 16 little-endian float32 centers
// followed by 128 bytes of indices, element 2i in the low nibble of byte i
// and element 2i+1 in the high nibble. Slots are independent, so any
// group-aligned sub-range can be re-encoded without touching the others.
package nuq

import (
	"encoding/binary"
	"math"

	"github.com/hupe1980/weightpack/internal/assert"
	"github.com/hupe1980/weightpack/internal/cluster"
	"github.com/hupe1980/weightpack/internal/kernel"
)

const (
	// GroupSize is the number of elements per slot.
	GroupSize = cluster.GroupSize
	// Clusters is the number of centers per slot.
	Clusters = cluster.K

	centersBytes = Clusters * 4
	indexBytes   = GroupSize / 2
	// SlotBytes is the packed size of one group.
	SlotBytes = centersBytes + indexBytes
)

// PackedEnd returns the number of bytes required to store n elements.
func PackedEnd(n int) int {
	return (n + GroupSize - 1) / GroupSize * SlotBytes
}

// GroupFunc observes the number of unused clusters of every encoded group.
// group is the absolute group index within the output stream.
type GroupFunc func(group, unused int)

// Encode packs in into out starting at element offset outOfs and returns
// the number of unused clusters of the last group.
//
// len(in) and outOfs must be multiples of GroupSize. A trailing partial
// group is padded with zeros. outCapacity is the element capacity of out.
func Encode(in []float32, buf *cluster.Buf, outCapacity int, out []byte, outOfs int) int {
	return EncodeFunc(in, buf, outCapacity, out, outOfs, nil)
}

// EncodeFunc is Encode with a per-group observer. fn may be nil.
func EncodeFunc(in []float32, buf *cluster.Buf, outCapacity int, out []byte, outOfs int, fn GroupFunc) int {
	assert.That(outOfs%GroupSize == 0, "nuq output offset %d not a multiple of %d", outOfs, GroupSize)
	assert.That(len(in)%GroupSize == 0, "nuq input length %d not a multiple of %d", len(in), GroupSize)
	assert.That(outOfs+len(in) <= outCapacity, "nuq output overflow: %d+%d > %d", outOfs, len(in), outCapacity)
	assert.That(len(out) >= PackedEnd(outCapacity), "nuq output buffer %d < %d", len(out), PackedEnd(outCapacity))

	var (
		centers [Clusters]float32
		indices [GroupSize]uint16
		padded  [GroupSize]float32
		unused  int
	)

	firstGroup := outOfs / GroupSize
	for g := 0; g*GroupSize < len(in); g++ {
		group := in[g*GroupSize:]
		if len(group) < GroupSize {
			n := copy(padded[:], group)
			clear(padded[n:])
			group = padded[:]
		}
		group = group[:GroupSize]

		unused = cluster.ExactL2(group, buf, &centers, &indices)
		if fn != nil {
			fn(firstGroup+g, unused)
		}

		slot := out[(firstGroup+g)*SlotBytes:][:SlotBytes]
		for c, v := range centers {
			binary.LittleEndian.PutUint32(slot[c*4:], math.Float32bits(v))
		}
		packed := slot[centersBytes:]
		for i := range packed {
			packed[i] = byte(indices[2*i]) | byte(indices[2*i+1])<<4
		}
	}
	return unused
}

func loadCenters(slot []byte, centers *[Clusters]float32) {
	for c := range centers {
		centers[c] = math.Float32frombits(binary.LittleEndian.Uint32(slot[c*4:]))
	}
}

func indexAt(packed []byte, i int) byte {
	b := packed[i>>1]
	if i&1 == 1 {
		return b >> 4
	}
	return b & 0x0F
}

// Decode unpacks len(out) elements starting at element offset inOfs, which
// need not be group-aligned. inCapacity is the element capacity of in.
func Decode(inCapacity int, in []byte, inOfs int, out []float32) {
	if assert.Enabled {
		assert.That(inOfs+len(out) <= inCapacity, "nuq decode overflow: %d+%d > %d", inOfs, len(out), inCapacity)
	}

	var centers [Clusters]float32
	pos := inOfs
	done := 0
	for done < len(out) {
		g := pos / GroupSize
		within := pos % GroupSize
		n := min(GroupSize-within, len(out)-done)

		slot := in[g*SlotBytes:][:SlotBytes]
		loadCenters(slot, &centers)
		packed := slot[centersBytes:]
		dst := out[done : done+n]
		for i := range dst {
			dst[i] = centers[indexAt(packed, within+i)]
		}

		pos += n
		done += n
	}
}

// Dot adds the dot product of len(vec) elements starting at the
// group-aligned element offset inOfs with vec into acc.
//
// Per group the query values are summed per cluster index and then
// multiplied by the centers. Group contributions rotate across the
// accumulators.
func Dot(in []byte, inOfs int, vec []float32, acc *kernel.Accumulators) {
	if assert.Enabled {
		assert.That(inOfs%GroupSize == 0, "nuq dot offset %d not a multiple of %d", inOfs, GroupSize)
	}

	var (
		centers [Clusters]float32
		partial [Clusters]float32
	)
	firstGroup := inOfs / GroupSize
	for g := 0; g*GroupSize < len(vec); g++ {
		q := vec[g*GroupSize:]
		if len(q) > GroupSize {
			q = q[:GroupSize]
		}

		slot := in[(firstGroup+g)*SlotBytes:][:SlotBytes]
		loadCenters(slot, &centers)
		packed := slot[centersBytes:]

		clear(partial[:])
		i := 0
		for ; i+2 <= len(q); i += 2 {
			b := packed[i>>1]
			partial[b&0x0F] += q[i]
			partial[b>>4] += q[i+1]
		}
		if i < len(q) {
			partial[packed[i>>1]&0x0F] += q[i]
		}

		var sum float32
		for c := range partial {
			sum += partial[c] * centers[c]
		}
		acc[g%kernel.NumAccumulators] += sum
	}
}

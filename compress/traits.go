package compress

import (
	"fmt"
	"strings"
)

// BatchSize is the number of elements handled by one pool task.
const BatchSize = 8192

// Tag identifies a representation in cache keys.
type Tag byte

const (
	TagF32  Tag = 'F'
	TagBF16 Tag = 'B'
	TagSFP  Tag = '$'
	TagNUQ  Tag = '2'
)

// Retired tags must never be reused: files written with them would be
// misinterpreted.
var retiredTags = []Tag{'s', 'S', 'n', '1'}

func (t Tag) String() string { return string(rune(t)) }

// Traits is implemented by every representation.
//
// Offsets and capacities are in elements. out and in are packed streams
// sized for the full capacity.
type Traits interface {
	// Name returns the short lowercase name, e.g. "nuq".
	Name() string
	Tag() Tag
	// PackedSize returns the packed byte size of n elements.
	PackedSize(n int) int
	// Alignment is the element granularity required of offsets.
	Alignment() int
	// Compress packs in into out at element offset outOfs.
	Compress(in []float32, tls *PerThread, outCapacity int, out []byte, outOfs int)
	// Decompress unpacks len(out) elements starting at inOfs.
	Decompress(inCapacity int, in []byte, inOfs int, out []float32)
	// Dot returns the dot product of len(vec) elements starting at inOfs with vec.
	Dot(inCapacity int, in []byte, inOfs int, vec []float32) float32
}

// PairDecompressor decodes two adjacent runs in one call.
type PairDecompressor interface {
	// Decompress2 unpacks len(out0)+len(out1) consecutive elements starting
	// at inOfs.
	Decompress2(in []byte, inOfs int, out0, out1 []float32)
}

// EvenOddDotter computes dot products against a query prepared with
// DeinterleaveEvenOdd.
type EvenOddDotter interface {
	DotEO(in []byte, inOfs int, vecEO []float32) float32
}

var all = []Traits{F32{}, BF16{}, SFP{}, NUQ{}}

// All returns every representation.
func All() []Traits {
	return append([]Traits(nil), all...)
}

// ByTag returns the representation with the given tag.
func ByTag(tag Tag) (Traits, bool) {
	for _, t := range all {
		if t.Tag() == tag {
			return t, true
		}
	}
	return nil, false
}

// MustByTag is ByTag for tags known to be valid. It panics otherwise.
func MustByTag(tag Tag) Traits {
	t, ok := ByTag(tag)
	if !ok {
		panic(fmt.Sprintf("compress: unknown representation tag %q", byte(tag)))
	}
	return t
}

// ByName returns the representation with the given name, ignoring case.
func ByName(name string) (Traits, error) {
	for _, t := range all {
		if strings.EqualFold(t.Name(), name) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("compress: unknown representation %q", name)
}

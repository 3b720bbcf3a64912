package compress

import (
	"github.com/hupe1980/weightpack/internal/assert"
	"github.com/hupe1980/weightpack/workerpool"
)

// Array is a fixed-capacity compressed tensor with one scale factor.
//
// A scale of 0 means it was never set and is treated as 1.
type Array[T Traits] struct {
	data  []byte
	n     int
	scale float32
}

// NewArray allocates a zeroed array for capacity elements.
func NewArray[T Traits](capacity int) *Array[T] {
	var t T
	return &Array[T]{data: make([]byte, t.PackedSize(capacity)), n: capacity}
}

// Traits returns the representation of a.
func (a *Array[T]) Traits() Traits {
	var t T
	return t
}

// Tag returns the representation tag.
func (a *Array[T]) Tag() Tag {
	var t T
	return t.Tag()
}

// Len returns the capacity in elements.
func (a *Array[T]) Len() int { return a.n }

// CompressedSize returns the packed size in bytes.
func (a *Array[T]) CompressedSize() int { return len(a.data) }

// Data returns the packed bytes.
func (a *Array[T]) Data() []byte { return a.data }

// DataScale1 returns the packed bytes of an array whose values need no
// scaling.
func (a *Array[T]) DataScale1() []byte {
	assert.That(a.scale == 0 || a.scale == 1, "array has scale %v", a.scale)
	return a.data
}

// Scale returns the stored scale, 0 if never set.
func (a *Array[T]) Scale() float32 { return a.scale }

// EffectiveScale returns the factor applied on decode.
func (a *Array[T]) EffectiveScale() float32 {
	if a.scale == 0 {
		return 1
	}
	return a.scale
}

// SetScale sets the factor applied on decode.
func (a *Array[T]) SetScale(s float32) { a.scale = s }

// CompressFrom compresses in, which must have Len elements, into a.
func (a *Array[T]) CompressFrom(pool *workerpool.Pool, in []float32, ws *WorkingSet) {
	CompressArray(pool, in, ws, a)
}

// DecompressTo decodes all elements into out, applying the scale.
func (a *Array[T]) DecompressTo(pool *workerpool.Pool, out []float32) {
	DecompressParallel(pool, a, 0, out)
}

// Buffer gives type-erased access to an Array.
type Buffer interface {
	Tag() Tag
	Traits() Traits
	Data() []byte
	Len() int
	CompressedSize() int
	Scale() float32
	SetScale(s float32)
	CompressFrom(pool *workerpool.Pool, in []float32, ws *WorkingSet)
	DecompressTo(pool *workerpool.Pool, out []float32)
}

var (
	_ Buffer = (*Array[F32])(nil)
	_ Buffer = (*Array[BF16])(nil)
	_ Buffer = (*Array[SFP])(nil)
	_ Buffer = (*Array[NUQ])(nil)
)

// NewBuffer allocates an Array for the representation with the given tag.
func NewBuffer(tag Tag, capacity int) (Buffer, bool) {
	switch tag {
	case TagF32:
		return NewArray[F32](capacity), true
	case TagBF16:
		return NewArray[BF16](capacity), true
	case TagSFP:
		return NewArray[SFP](capacity), true
	case TagNUQ:
		return NewArray[NUQ](capacity), true
	}
	return nil, false
}

package compress

import (
	"github.com/hupe1980/weightpack/internal/assert"
	"github.com/hupe1980/weightpack/internal/kernel"
	"github.com/hupe1980/weightpack/internal/sfp"
	"github.com/hupe1980/weightpack/workerpool"
)

// BlockSize is the block length of the even/odd query layout.
const BlockSize = sfp.BlockSize

// DeinterleaveEvenOdd prepares a query for DotEO: each full block of
// BlockSize values becomes its even-indexed values followed by its
// odd-indexed ones. A trailing partial block is copied unchanged.
func DeinterleaveEvenOdd(vec, out []float32) {
	sfp.DeinterleaveEvenOdd(vec, out)
}

func interleaveEvenOdd(vecEO, out []float32) {
	n := len(vecEO)
	i := 0
	for ; i+BlockSize <= n; i += BlockSize {
		for j := 0; j < kernel.Lanes; j++ {
			out[i+2*j] = vecEO[i+j]
			out[i+2*j+1] = vecEO[i+kernel.Lanes+j]
		}
	}
	copy(out[i:n], vecEO[i:n])
}

func numBatches(n int) int {
	return (n + BatchSize - 1) / BatchSize
}

// Compress packs in into out starting at element offset outOfs. The work is
// split into batches of BatchSize elements that run on pool.
func Compress[T Traits](pool *workerpool.Pool, in []float32, ws *WorkingSet, outCapacity int, out []byte, outOfs int) {
	var t T
	assert.That(outOfs+len(in) <= outCapacity, "compress overflow: %d+%d > %d", outOfs, len(in), outCapacity)
	assert.That(outOfs%t.Alignment() == 0, "%s offset %d not a multiple of %d", t.Name(), outOfs, t.Alignment())
	assert.That(len(out) >= t.PackedSize(outCapacity), "%s output %d < %d", t.Name(), len(out), t.PackedSize(outCapacity))

	ws.prepare(pool.Size())
	pool.Run(0, numBatches(len(in)), func(b, worker int) {
		ofs := b * BatchSize
		end := min(ofs+BatchSize, len(in))
		t.Compress(in[ofs:end], &ws.threads[worker], outCapacity, out, outOfs+ofs)
	})
	ws.merge()
}

// CompressArray compresses in, which must have arr.Len() elements, into arr.
func CompressArray[T Traits](pool *workerpool.Pool, in []float32, ws *WorkingSet, arr *Array[T]) {
	assert.That(len(in) == arr.n, "compress input %d != capacity %d", len(in), arr.n)
	Compress[T](pool, in, ws, arr.n, arr.data, 0)
}

func applyScale(arr interface{ EffectiveScale() float32 }, out []float32) {
	if s := arr.EffectiveScale(); s != 1 {
		kernel.ScaleInPlace(out, s)
	}
}

// Decompress decodes len(out) elements of arr starting at ofs and applies
// the scale.
func Decompress[T Traits](arr *Array[T], ofs int, out []float32) {
	var t T
	if assert.Enabled {
		assert.That(ofs+len(out) <= arr.n, "decompress overflow: %d+%d > %d", ofs, len(out), arr.n)
	}
	t.Decompress(arr.n, arr.data, ofs, out)
	applyScale(arr, out)
}

// DecompressParallel is Decompress split into batches on pool.
func DecompressParallel[T Traits](pool *workerpool.Pool, arr *Array[T], ofs int, out []float32) {
	if assert.Enabled {
		assert.That(ofs+len(out) <= arr.n, "decompress overflow: %d+%d > %d", ofs, len(out), arr.n)
	}
	pool.Run(0, numBatches(len(out)), func(b, _ int) {
		start := b * BatchSize
		end := min(start+BatchSize, len(out))
		Decompress(arr, ofs+start, out[start:end])
	})
}

// Decompress2 decodes len(out0)+len(out1) consecutive elements starting at
// ofs, applying the scale. Representations without a pair decoder fall back
// to two Decompress calls.
func Decompress2[T Traits](arr *Array[T], ofs int, out0, out1 []float32) {
	var t T
	if assert.Enabled {
		assert.That(ofs+len(out0)+len(out1) <= arr.n, "decompress overflow")
	}
	if p, ok := any(t).(PairDecompressor); ok {
		p.Decompress2(arr.data, ofs, out0, out1)
		applyScale(arr, out0)
		applyScale(arr, out1)
		return
	}
	Decompress(arr, ofs, out0)
	Decompress(arr, ofs+len(out0), out1)
}

// Dot returns the scaled dot product of len(vec) elements of arr starting at
// ofs with vec.
func Dot[T Traits](arr *Array[T], ofs int, vec []float32) float32 {
	var t T
	if assert.Enabled {
		assert.That(ofs+len(vec) <= arr.n, "dot overflow: %d+%d > %d", ofs, len(vec), arr.n)
		assert.That(ofs%t.Alignment() == 0, "%s dot offset %d not a multiple of %d", t.Name(), ofs, t.Alignment())
	}
	return arr.EffectiveScale() * t.Dot(arr.n, arr.data, ofs, vec)
}

// DotEO is Dot against a query prepared with DeinterleaveEvenOdd.
// Representations without an even/odd kernel restore the natural order
// first.
func DotEO[T Traits](arr *Array[T], ofs int, vecEO []float32) float32 {
	var t T
	if assert.Enabled {
		assert.That(ofs+len(vecEO) <= arr.n, "dot overflow: %d+%d > %d", ofs, len(vecEO), arr.n)
		assert.That(ofs%BlockSize == 0, "even/odd dot offset %d not a multiple of %d", ofs, BlockSize)
	}
	if d, ok := any(t).(EvenOddDotter); ok {
		return arr.EffectiveScale() * d.DotEO(arr.data, ofs, vecEO)
	}
	vec := make([]float32, len(vecEO))
	interleaveEvenOdd(vecEO, vec)
	return Dot(arr, ofs, vec)
}

// DotRows treats arr as a row-major rows x cols matrix and writes the dot
// product of each row with vec into out.
func DotRows[T Traits](pool *workerpool.Pool, arr *Array[T], rows, cols int, vec, out []float32) {
	assert.That(rows*cols <= arr.n, "matrix %dx%d exceeds capacity %d", rows, cols, arr.n)
	assert.That(len(vec) == cols, "vector length %d != cols %d", len(vec), cols)
	assert.That(len(out) >= rows, "output %d < rows %d", len(out), rows)

	rowsPerTask := max(1, BatchSize/max(cols, 1))
	tasks := (rows + rowsPerTask - 1) / rowsPerTask
	pool.Run(0, tasks, func(task, _ int) {
		end := min((task+1)*rowsPerTask, rows)
		for r := task * rowsPerTask; r < end; r++ {
			out[r] = Dot(arr, r*cols, vec)
		}
	})
}

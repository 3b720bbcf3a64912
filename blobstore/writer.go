package blobstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/weightpack/internal/hash"
	"github.com/hupe1980/weightpack/resource"
	"github.com/hupe1980/weightpack/storage"
	"github.com/hupe1980/weightpack/workerpool"
)

// Writer collects blobs and writes them as one file.
//
// Add keeps a reference to the data; callers must not modify it before
// WriteAll returns.
type Writer struct {
	opts  options
	keys  []Key
	blobs [][]byte
}

// NewWriter creates an empty Writer.
func NewWriter(opts ...Option) *Writer {
	return &Writer{opts: applyOptions(opts)}
}

// Add queues data under key.
func (w *Writer) Add(key Key, data []byte) {
	w.keys = append(w.keys, key)
	w.blobs = append(w.blobs, data)
}

// Len returns the number of queued blobs.
func (w *Writer) Len() int { return len(w.keys) }

// Size returns the size of the file WriteAll would produce.
func (w *Writer) Size() int64 {
	blobs := w.blobs
	if w.opts.checksums {
		blobs = append(blobs[:len(blobs):len(blobs)], make([]byte, 4*len(w.blobs)))
	}
	_, total := layout(blobs)
	return total
}

// WriteAll writes the header and all bodies to name in one pass. Checksums
// are computed on pool. On any error the partial object is discarded.
func (w *Writer) WriteAll(ctx context.Context, pool *workerpool.Pool, store storage.Store, name string) error {
	seen := make(map[Key]struct{}, len(w.keys))
	for _, k := range w.keys {
		if k == ChecksumKey {
			return &Error{Op: "write", Key: k, Err: fmt.Errorf("%w: reserved key", ErrDuplicateKey)}
		}
		if _, ok := seen[k]; ok {
			return &Error{Op: "write", Key: k, Err: ErrDuplicateKey}
		}
		seen[k] = struct{}{}
	}

	keys, blobs := w.keys, w.blobs
	if w.opts.checksums {
		sums := make([]byte, 4*len(blobs))
		pool.Run(0, len(blobs), func(i, _ int) {
			binary.LittleEndian.PutUint32(sums[4*i:], hash.CRC32C(blobs[i]))
		})
		keys = append(keys[:len(keys):len(keys)], ChecksumKey)
		blobs = append(blobs[:len(blobs):len(blobs)], sums)
	}

	header := encodeHeader(keys, blobs)

	obj, err := store.Create(ctx, name)
	if err != nil {
		return &Error{Op: "write", Err: err}
	}
	out := resource.NewRateLimitedWriter(ctx, obj, w.opts.rc)

	if err := writeBodies(out, header, blobs); err != nil {
		return errors.Join(&Error{Op: "write", Err: err}, obj.Abort())
	}
	if err := obj.Close(); err != nil {
		return &Error{Op: "write", Err: err}
	}
	return nil
}

var zeros [Align]byte

func writeBodies(out io.Writer, header []byte, blobs [][]byte) error {
	if _, err := out.Write(header); err != nil {
		return err
	}
	for _, b := range blobs {
		if _, err := out.Write(b); err != nil {
			return err
		}
		if pad := padded(int64(len(b))) - int64(len(b)); pad > 0 {
			if _, err := out.Write(zeros[:pad]); err != nil {
				return err
			}
		}
	}
	return nil
}

func headerSize(count int) int64 {
	return 8 + int64(count)*(KeySize+16)
}

// layout returns the offset of every blob and the total file size.
func layout(blobs [][]byte) ([]int64, int64) {
	offsets := make([]int64, len(blobs))
	pos := padded(headerSize(len(blobs)))
	for i, b := range blobs {
		offsets[i] = pos
		pos += padded(int64(len(b)))
	}
	return offsets, pos
}

func encodeHeader(keys []Key, blobs [][]byte) []byte {
	offsets, _ := layout(blobs)
	header := make([]byte, padded(headerSize(len(keys))))

	binary.LittleEndian.PutUint64(header, uint64(len(keys)))
	pos := 8
	for _, k := range keys {
		copy(header[pos:], k[:])
		pos += KeySize
	}
	for i, b := range blobs {
		binary.LittleEndian.PutUint64(header[pos:], uint64(offsets[i]))
		binary.LittleEndian.PutUint64(header[pos+8:], uint64(len(b)))
		pos += 16
	}
	return header
}

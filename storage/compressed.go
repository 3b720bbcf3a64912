package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec selects the block compression used by CompressedStore.
type Codec uint8

const (
	// CodecNone stores blocks uncompressed.
	CodecNone Codec = 0
	// CodecLZ4 favours decompression speed.
	CodecLZ4 Codec = 1
	// CodecZstd favours ratio.
	CodecZstd Codec = 2
)

// String implements fmt.Stringer.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec parses a codec name as produced by String.
func ParseCodec(s string) (Codec, error) {
	switch s {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("storage: unknown codec %q", s)
	}
}

// ErrCorruptBlock is returned when a compressed object cannot be decoded.
var ErrCorruptBlock = errors.New("storage: corrupt compressed block")

// Compressed objects start with this magic followed by the codec byte.
var compressedMagic = [4]byte{'W', 'P', 'C', 'Z'}

const (
	compressedHeaderSize = 5
	blockHeaderSize      = 8
	defaultBlockSize     = 1 << 20
	// MaxBlockSize bounds the raw size of one block. Larger sizes in a
	// block header are rejected as corrupt.
	MaxBlockSize = 64 << 20
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// CompressedStore wraps a Store and compresses objects in independent
// blocks. Each block is [u32 raw size][u32 packed size][data]; a packed size
// of 0 marks a block stored raw because compression did not help.
//
// Reads decompress the whole object into memory on Open. Objects without
// the compressed header are passed through unchanged, so a CompressedStore
// can read files written directly to the inner store.
type CompressedStore struct {
	inner     Store
	codec     Codec
	blockSize int
}

// NewCompressedStore wraps inner. blockSize <= 0 selects 1 MiB; it is
// capped at MaxBlockSize.
func NewCompressedStore(inner Store, codec Codec, blockSize int) *CompressedStore {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	blockSize = min(blockSize, MaxBlockSize)
	return &CompressedStore{inner: inner, codec: codec, blockSize: blockSize}
}

// Open reads and decompresses an object.
func (s *CompressedStore) Open(ctx context.Context, name string) (Object, error) {
	obj, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	var hdr [compressedHeaderSize]byte
	if obj.Size() < compressedHeaderSize {
		return obj, nil
	}
	if _, err := ReadFull(ctx, obj, hdr[:], 0); err != nil {
		_ = obj.Close()
		return nil, err
	}
	if !bytes.Equal(hdr[:4], compressedMagic[:]) {
		return obj, nil
	}

	raw := make([]byte, obj.Size())
	_, err = ReadFull(ctx, obj, raw, 0)
	_ = obj.Close()
	if err != nil {
		return nil, err
	}

	data, err := decompressAll(raw[compressedHeaderSize:], Codec(hdr[4]))
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", name, err)
	}
	return &memoryObject{data: data}, nil
}

// Create returns a writer that compresses into the inner store.
func (s *CompressedStore) Create(ctx context.Context, name string) (WritableObject, error) {
	w, err := s.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	hdr := append(compressedMagic[:], byte(s.codec))
	if _, err := w.Write(hdr); err != nil {
		_ = w.Abort()
		return nil, err
	}
	return &compressedWritable{
		inner:     w,
		codec:     s.codec,
		blockSize: s.blockSize,
		buffer:    bytes.NewBuffer(make([]byte, 0, s.blockSize)),
	}, nil
}

// Delete removes an object.
func (s *CompressedStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List lists objects of the inner store.
func (s *CompressedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type compressedWritable struct {
	inner     WritableObject
	codec     Codec
	blockSize int
	buffer    *bytes.Buffer
	done      atomic.Bool
}

func (c *compressedWritable) Write(p []byte) (int, error) {
	if c.done.Load() {
		return 0, os.ErrClosed
	}

	total := 0
	for len(p) > 0 {
		space := c.blockSize - c.buffer.Len()
		if space <= 0 {
			if err := c.flushBlock(); err != nil {
				return total, err
			}
			space = c.blockSize
		}

		n, _ := c.buffer.Write(p[:min(len(p), space)])
		total += n
		p = p[n:]
	}
	return total, nil
}

func (c *compressedWritable) flushBlock() error {
	if c.buffer.Len() == 0 {
		return nil
	}
	block, err := compressBlock(c.buffer.Bytes(), c.codec)
	if err != nil {
		return err
	}
	if _, err := c.inner.Write(block); err != nil {
		return err
	}
	c.buffer.Reset()
	return nil
}

func (c *compressedWritable) Close() error {
	if !c.done.CompareAndSwap(false, true) {
		return os.ErrClosed
	}
	if err := c.flushBlock(); err != nil {
		_ = c.inner.Abort()
		return err
	}
	return c.inner.Close()
}

func (c *compressedWritable) Abort() error {
	if !c.done.CompareAndSwap(false, true) {
		return nil
	}
	return c.inner.Abort()
}

// compressBlock returns the framed block, raw if compression does not save
// at least 10%.
func compressBlock(data []byte, codec Codec) ([]byte, error) {
	var packed []byte
	switch codec {
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n]
	case CodecZstd:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(packed) == 0 || float64(len(packed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(packed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(packed)))
	copy(out[blockHeaderSize:], packed)
	return out, nil
}

func decompressAll(data []byte, codec Codec) ([]byte, error) {
	var out []byte
	for len(data) > 0 {
		if len(data) < blockHeaderSize {
			return nil, ErrCorruptBlock
		}
		rawSize := int(binary.LittleEndian.Uint32(data[0:]))
		packedSize := int(binary.LittleEndian.Uint32(data[4:]))
		data = data[blockHeaderSize:]
		if rawSize > MaxBlockSize {
			return nil, fmt.Errorf("%w: block size %d exceeds %d", ErrCorruptBlock, rawSize, MaxBlockSize)
		}

		if packedSize == 0 {
			if len(data) < rawSize {
				return nil, ErrCorruptBlock
			}
			out = append(out, data[:rawSize]...)
			data = data[rawSize:]
			continue
		}
		if len(data) < packedSize {
			return nil, ErrCorruptBlock
		}
		block, err := decompressBlock(data[:packedSize], rawSize, codec)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
		data = data[packedSize:]
	}
	return out, nil
}

func decompressBlock(packed []byte, rawSize int, codec Codec) ([]byte, error) {
	out := make([]byte, rawSize)
	switch codec {
	case CodecLZ4:
		n, err := lz4.UncompressBlock(packed, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
		}
		if n != rawSize {
			return nil, ErrCorruptBlock
		}
		return out, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(packed, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptBlock, err)
		}
		if len(decoded) != rawSize {
			return nil, ErrCorruptBlock
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: codec %s", ErrCorruptBlock, codec)
	}
}

var _ Store = (*CompressedStore)(nil)

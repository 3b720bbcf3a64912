package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"local-mmap":   NewLocalStore(t.TempDir()),
		"local-file":   NewLocalStore(t.TempDir(), WithMmap(false)),
		"memory":       NewMemoryStore(),
		"zstd":         NewCompressedStore(NewMemoryStore(), CodecZstd, 4096),
		"lz4":          NewCompressedStore(NewMemoryStore(), CodecLZ4, 4096),
		"none":         NewCompressedStore(NewMemoryStore(), CodecNone, 0),
		"zstd-on-disk": NewCompressedStore(NewLocalStore(t.TempDir()), CodecZstd, 1000),
	}
}

func payload(n int) []byte {
	rng := rand.New(rand.NewSource(int64(n)))
	data := make([]byte, n)
	// Half compressible, half random.
	for i := range data {
		if i%2 == 0 {
			data[i] = byte(i / 64)
		} else {
			data[i] = byte(rng.Intn(256))
		}
	}
	return data
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			data := payload(10000)
			require.NoError(t, Put(ctx, s, "dir/weights.sbs", data))

			got, err := ReadAll(ctx, s, "dir/weights.sbs")
			require.NoError(t, err)
			assert.Equal(t, data, got)

			obj, err := s.Open(ctx, "dir/weights.sbs")
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), obj.Size())

			buf := make([]byte, 100)
			n, err := ReadFull(ctx, obj, buf, 5000)
			require.NoError(t, err)
			assert.Equal(t, 100, n)
			assert.Equal(t, data[5000:5100], buf)

			_, err = ReadFull(ctx, obj, buf, int64(len(data)-10))
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			require.NoError(t, obj.Close())

			names, err := s.List(ctx, "dir/")
			require.NoError(t, err)
			assert.Equal(t, []string{"dir/weights.sbs"}, names)

			require.NoError(t, s.Delete(ctx, "dir/weights.sbs"))
			require.NoError(t, s.Delete(ctx, "dir/weights.sbs"))
			_, err = s.Open(ctx, "dir/weights.sbs")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreEmptyObject(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, Put(ctx, s, "empty", nil))
			got, err := ReadAll(ctx, s, "empty")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestStoreAbortLeavesNothing(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			w, err := s.Create(ctx, "partial")
			require.NoError(t, err)
			_, err = w.Write([]byte("half a file"))
			require.NoError(t, err)
			require.NoError(t, w.Abort())
			require.NoError(t, w.Abort())

			_, err = s.Open(ctx, "partial")
			assert.ErrorIs(t, err, ErrNotFound)
			names, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestLocalStoreWritesAtomically(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewLocalStore(dir)
	assert.Equal(t, dir, s.Root())

	w, err := s.Create(ctx, "model.sbs")
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)

	// Not visible until committed.
	_, err = os.Stat(filepath.Join(dir, "model.sbs"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	names, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), os.ErrClosed)
	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)

	got, err := os.ReadFile(filepath.Join(dir, "model.sbs"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestLocalStoreMappable(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())
	require.NoError(t, Put(ctx, s, "m", []byte("mapped")))

	obj, err := s.Open(ctx, "m")
	require.NoError(t, err)
	defer obj.Close()

	m, ok := obj.(Mappable)
	require.True(t, ok)
	b, err := m.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "mapped", string(b))
}

func TestLocalStoreListMissingRoot(t *testing.T) {
	s := NewLocalStore(filepath.Join(t.TempDir(), "nope"))
	names, err := s.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStoreCorrupt(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, Put(ctx, s, "f", []byte{1, 2, 3}))

	obj, err := s.Open(ctx, "f")
	require.NoError(t, err)

	assert.True(t, s.Corrupt("f", 1))
	assert.False(t, s.Corrupt("f", 3))
	assert.False(t, s.Corrupt("missing", 0))

	got, err := ReadAll(ctx, s, "f")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0xFD, 3}, got)

	// Handles opened earlier keep the committed bytes.
	buf := make([]byte, 3)
	_, err = ReadFull(ctx, obj, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, buf)
}

func TestCompressedStoreShrinksCompressibleData(t *testing.T) {
	ctx := context.Background()
	for _, codec := range []Codec{CodecZstd, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			inner := NewMemoryStore()
			s := NewCompressedStore(inner, codec, 0)

			data := bytes.Repeat([]byte("scales"), 50000)
			require.NoError(t, Put(ctx, s, "z", data))

			obj, err := inner.Open(ctx, "z")
			require.NoError(t, err)
			assert.Less(t, obj.Size(), int64(len(data)/10))

			got, err := ReadAll(ctx, s, "z")
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestCompressedStorePassesThroughPlainObjects(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	require.NoError(t, Put(ctx, inner, "plain", []byte("not compressed")))
	require.NoError(t, Put(ctx, inner, "tiny", []byte("ab")))

	s := NewCompressedStore(inner, CodecZstd, 0)
	got, err := ReadAll(ctx, s, "plain")
	require.NoError(t, err)
	assert.Equal(t, "not compressed", string(got))

	got, err = ReadAll(ctx, s, "tiny")
	require.NoError(t, err)
	assert.Equal(t, "ab", string(got))
}

func TestCompressedStoreDetectsTruncation(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	s := NewCompressedStore(inner, CodecLZ4, 0)
	require.NoError(t, Put(ctx, s, "z", bytes.Repeat([]byte("abcd"), 1000)))

	raw, err := ReadAll(ctx, inner, "z")
	require.NoError(t, err)
	require.NoError(t, Put(ctx, inner, "z", raw[:len(raw)-3]))

	_, err = s.Open(ctx, "z")
	assert.ErrorIs(t, err, ErrCorruptBlock)
}

func TestCompressedStoreRejectsOversizedBlock(t *testing.T) {
	ctx := context.Background()
	for _, packed := range []uint32{0, 4} {
		inner := NewMemoryStore()
		raw := append(compressedMagic[:], byte(CodecZstd))
		raw = binary.LittleEndian.AppendUint32(raw, 0xFFFFFFF0)
		raw = binary.LittleEndian.AppendUint32(raw, packed)
		raw = append(raw, 1, 2, 3, 4)
		require.NoError(t, Put(ctx, inner, "huge", raw))

		_, err := NewCompressedStore(inner, CodecZstd, 0).Open(ctx, "huge")
		assert.ErrorIs(t, err, ErrCorruptBlock, "packed=%d", packed)
	}
}

func TestParseCodec(t *testing.T) {
	for _, c := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		got, err := ParseCodec(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseCodec("brotli")
	assert.Error(t, err)
	assert.Equal(t, "codec(9)", Codec(9).String())
}

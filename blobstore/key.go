package blobstore

import (
	"bytes"

	"github.com/hupe1980/weightpack/internal/assert"
)

// Align is the alignment of the header end and of every blob offset.
const Align = 256

// KeySize is the size of a Key in bytes.
const KeySize = 16

// Key names a blob.
type Key [KeySize]byte

// ChecksumKey is reserved for the per-file checksum blob.
var ChecksumKey = MakeKey("~crc32c")

// MakeKey packs up to 16 bytes of s into a Key. Longer names are a caller
// error; release builds truncate them.
func MakeKey(s string) Key {
	assert.That(len(s) <= KeySize, "key %q longer than %d bytes", s, KeySize)
	var k Key
	copy(k[:], s)
	return k
}

// String returns the key's name without trailing zero bytes.
func (k Key) String() string {
	return string(bytes.TrimRight(k[:], "\x00"))
}

func padded(n int64) int64 {
	return (n + Align - 1) / Align * Align
}

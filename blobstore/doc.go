// Package blobstore reads and writes blob store files: a single file holding
// many named, immutable byte blobs, each aligned to 256 bytes.
//
// # File Layout
//
// All integers are little-endian.
//
//	u64 count
//	count x 16-byte keys
//	count x (u64 offset, u64 size)
//	zero padding to a multiple of Align
//	bodies in header order, each zero-padded to a multiple of Align
//
// A key is the bytes of a short name, zero-filled to 16 bytes. When written
// with checksums, the last blob has the reserved key "~crc32c" and holds one
// little-endian CRC32C per preceding blob.
//
// # Reading
//
// Open validates only the header. Callers then Enqueue one destination per
// blob and execute all reads in parallel with ReadAll. A failed Enqueue
// poisons the batch: nothing is read and ReadAll reports the first error, so
// callers never observe a partial load.
package blobstore

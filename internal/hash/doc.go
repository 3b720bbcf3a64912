// Package hash provides the CRC32-Castagnoli checksums used for blob store
// integrity checks and S3 upload validation.
//
// Go's hash/crc32 uses SSE4.2 or the ARM CRC extension when available.
package hash

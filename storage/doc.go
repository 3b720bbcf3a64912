// Package storage abstracts where blob store files live.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem, memory-mapped reads, atomic rename on commit
//   - MemoryStore: in-process map, for tests and scratch work
//   - CompressedStore: zstd or lz4 framing around any other Store
//   - minio.Store and s3.Store (subpackages): object storage with range reads
//
// # Custom Implementations
//
// Implement Store to add a backend:
//
//	type Store interface {
//	    Open(ctx, name) (Object, error)
//	    Create(ctx, name) (WritableObject, error)
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Writes must be all-or-nothing: an object created by Create is visible only
// after Close succeeds, and Abort leaves no trace.
package storage

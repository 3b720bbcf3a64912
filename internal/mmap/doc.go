// Package mmap maps blob store files read-only for zero-copy loads.
//
// Unix uses mmap(2) with madvise(2) hints; Windows uses
// CreateFileMapping/MapViewOfFile and ignores hints. Slices returned by a
// Mapping are valid only until Close.
package mmap

package compress

import "github.com/hupe1980/weightpack/blobstore"

// CacheKey returns the blob key of tensor name stored as T. The tag prefix
// makes a change of representation miss the cache instead of misreading it.
func CacheKey[T Traits](name string) blobstore.Key {
	var t T
	return KeyFor(t.Tag(), name)
}

// KeyFor is CacheKey for a representation known only at run time.
func KeyFor(tag Tag, name string) blobstore.Key {
	return blobstore.MakeKey(tag.String() + name)
}

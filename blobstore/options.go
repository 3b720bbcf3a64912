package blobstore

import "github.com/hupe1980/weightpack/resource"

type options struct {
	checksums bool
	rc        *resource.Controller
}

// Option configures a Writer or Reader.
type Option func(*options)

// WithChecksums makes the Writer append a "~crc32c" blob. Readers ignore it.
func WithChecksums() Option {
	return func(o *options) { o.checksums = true }
}

// WithResourceController throttles IO through rc. A nil controller imposes
// no limits.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.rc = rc }
}

func applyOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

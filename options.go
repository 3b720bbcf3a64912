package weightpack

import (
	"github.com/hupe1980/weightpack/blobstore"
	"github.com/hupe1980/weightpack/compress"
	"github.com/hupe1980/weightpack/resource"
)

type options struct {
	logger    *Logger
	metrics   MetricsObserver
	rc        *resource.Controller
	checksums bool
	stats     bool
}

// Option configures Compressor, CacheLoader and LoadOrCompress.
type Option func(*options)

// WithLogger sets the logger. If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics sets the metrics observer. If nil is passed, metrics are
// disabled.
func WithMetrics(m MetricsObserver) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsObserver{}
		}
		o.metrics = m
	}
}

// WithResourceController throttles cache IO and bounds the memory of
// decoded caches.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithChecksums stores a CRC32C per blob in written files. Loads always
// verify checksums that are present.
func WithChecksums() Option {
	return func(o *options) {
		o.checksums = true
	}
}

// WithStats collects distortion statistics while compressing and logs them
// per tensor at debug level.
func WithStats() Option {
	return func(o *options) {
		o.stats = true
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger:  NoopLogger(),
		metrics: NoopMetricsObserver{},
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o *options) blobOptions() []blobstore.Option {
	bo := []blobstore.Option{blobstore.WithResourceController(o.rc)}
	if o.checksums {
		bo = append(bo, blobstore.WithChecksums())
	}
	return bo
}

func (o *options) workingSet() *compress.WorkingSet {
	if o.stats {
		return compress.NewWorkingSet(compress.WithStats())
	}
	return compress.NewWorkingSet()
}

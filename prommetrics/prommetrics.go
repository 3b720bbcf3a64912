// Package prommetrics exports weightpack metrics to Prometheus.
package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/weightpack"
)

// Observer implements weightpack.MetricsObserver.
type Observer struct {
	opLatency        *prometheus.HistogramVec
	compressElements *prometheus.CounterVec
	bytes            *prometheus.CounterVec
	cacheMisses      prometheus.Counter
}

var _ weightpack.MetricsObserver = (*Observer)(nil)

// New creates an Observer and registers its collectors with reg. If reg is
// nil, prometheus.DefaultRegisterer is used.
func New(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &Observer{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weightpack_operation_latency_seconds",
			Help:    "Latency of compress, write and load operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"op", "status"}),
		compressElements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weightpack_compressed_elements_total",
			Help: "Total float32 elements compressed",
		}, []string{"representation"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weightpack_io_bytes_total",
			Help: "Total bytes written to or loaded from cache files",
		}, []string{"direction"}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weightpack_cache_misses_total",
			Help: "Total loads that fell back to compression",
		}),
	}

	for _, c := range []prometheus.Collector{o.opLatency, o.compressElements, o.bytes, o.cacheMisses} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// OnCompress implements weightpack.MetricsObserver.
func (o *Observer) OnCompress(representation string, elements int, d time.Duration) {
	o.opLatency.WithLabelValues("compress", "success").Observe(d.Seconds())
	o.compressElements.WithLabelValues(representation).Add(float64(elements))
}

// OnWrite implements weightpack.MetricsObserver.
func (o *Observer) OnWrite(_ int, bytes int64, d time.Duration, err error) {
	o.opLatency.WithLabelValues("write", status(err)).Observe(d.Seconds())
	if err == nil {
		o.bytes.WithLabelValues("write").Add(float64(bytes))
	}
}

// OnLoad implements weightpack.MetricsObserver.
func (o *Observer) OnLoad(_ int, bytes int64, d time.Duration, err error) {
	o.opLatency.WithLabelValues("load", status(err)).Observe(d.Seconds())
	if err == nil {
		o.bytes.WithLabelValues("load").Add(float64(bytes))
	}
}

// OnCacheMiss implements weightpack.MetricsObserver.
func (o *Observer) OnCacheMiss() {
	o.cacheMisses.Inc()
}

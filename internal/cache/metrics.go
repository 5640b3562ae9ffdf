package cache

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the content cache.
type Metrics struct {
	HitsTotal   prometheus.Counter
	MissesTotal prometheus.Counter
	ErrorsTotal *prometheus.CounterVec
	Size        prometheus.Gauge
}

// NewMetrics registers the cache metrics with the default registry.
// Registration happens once per process; later calls return the same set.
//
// Metrics:
//   - promptzip_cache_hits_total
//   - promptzip_cache_misses_total
//   - promptzip_cache_errors_total{operation}
//   - promptzip_cache_size
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "promptzip_cache_hits_total",
				Help: "Total number of cache hits",
			}),
			MissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "promptzip_cache_misses_total",
				Help: "Total number of cache misses, including store failures",
			}),
			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "promptzip_cache_errors_total",
					Help: "Total number of backing store failures",
				},
				[]string{"operation"}, // get, set, clear, encode, decode
			),
			Size: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "promptzip_cache_size",
				Help: "Number of entries in the in-memory cache",
			}),
		}
	})
	return globalMetrics
}

func (m *Metrics) recordHit() {
	if m != nil {
		m.HitsTotal.Inc()
	}
}

func (m *Metrics) recordMiss() {
	if m != nil {
		m.MissesTotal.Inc()
	}
}

func (m *Metrics) recordError(op string) {
	if m != nil {
		m.ErrorsTotal.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) setSize(n int) {
	if m != nil {
		m.Size.Set(float64(n))
	}
}

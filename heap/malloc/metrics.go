package malloc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	pathReuse  = "reuse"
	pathGrow   = "grow"
	pathShrink = "shrink"
	pathFree   = "free"
)

type metrics struct {
	acquires        *prometheus.CounterVec
	releases        *prometheus.CounterVec
	acquireFailures prometheus.Counter
	shrinkFailures  prometheus.Counter
	arenaBytes      prometheus.Gauge
	records         prometheus.Gauge
	freeRecords     prometheus.Gauge
}

// newMetrics builds the allocator metrics. A nil registerer leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		acquires: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "heapkit",
			Name:      "acquire_total",
			Help:      "Total number of successful acquisitions by path (reuse or grow).",
		}, []string{"path"}),
		releases: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "heapkit",
			Name:      "release_total",
			Help:      "Total number of releases by path (shrink or free).",
		}, []string{"path"}),
		acquireFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "heapkit",
			Name:      "acquire_failures_total",
			Help:      "Total number of acquisitions refused because the arena could not grow.",
		}),
		shrinkFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "heapkit",
			Name:      "shrink_failures_total",
			Help:      "Total number of tail releases whose arena shrink failed.",
		}),
		arenaBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "heapkit",
			Name:      "arena_bytes",
			Help:      "Current arena break in bytes.",
		}),
		records: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "heapkit",
			Name:      "records",
			Help:      "Number of block records in the chain.",
		}),
		freeRecords: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "heapkit",
			Name:      "free_records",
			Help:      "Number of block records marked free.",
		}),
	}

	// Pre-create the label combinations so they export as zero.
	m.acquires.WithLabelValues(pathReuse)
	m.acquires.WithLabelValues(pathGrow)
	m.releases.WithLabelValues(pathShrink)
	m.releases.WithLabelValues(pathFree)
	return m
}

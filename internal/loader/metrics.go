package loader

import "github.com/prometheus/client_golang/prometheus"

// metrics are per-Loader so several loaders (e.g. in tests) can coexist;
// call Loader.RegisterMetrics to expose them.
type metrics struct {
	fetchesTotal    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	evictionsTotal  prometheus.Counter
	downgradesTotal prometheus.Counter
	scaleCommits    prometheus.Counter
	inflight        prometheus.Gauge
	queued          prometheus.Gauge
	cacheEntries    prometheus.Gauge
	memoryEstimate  prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		fetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imgload",
				Subsystem: "loader",
				Name:      "fetches_total",
				Help:      "Completed fetches by representation and result",
			},
			[]string{"kind", "result"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "imgload",
				Subsystem: "loader",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of fetches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		evictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgload",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Cache entries evicted to stay within capacity",
		}),
		downgradesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgload",
			Subsystem: "memory",
			Name:      "downgrades_total",
			Help:      "Loaded images downgraded after long invisibility",
		}),
		scaleCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imgload",
			Subsystem: "selector",
			Name:      "commits_total",
			Help:      "Debounced source policy commits",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imgload",
			Subsystem: "loader",
			Name:      "inflight_fetches",
			Help:      "High-resolution fetches currently outstanding",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imgload",
			Subsystem: "loader",
			Name:      "queued_fetches",
			Help:      "High-resolution fetches waiting for a concurrency slot",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imgload",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Handles currently held by the binary cache",
		}),
		memoryEstimate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "imgload",
			Subsystem: "memory",
			Name:      "estimate_bytes",
			Help:      "Estimated bytes held by loaded images",
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.fetchesTotal, m.fetchDuration, m.evictionsTotal, m.downgradesTotal,
		m.scaleCommits, m.inflight, m.queued, m.cacheEntries, m.memoryEstimate,
	}
}

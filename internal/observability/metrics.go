package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quake_edge"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Edge cache / proxy metrics.
	ProxyRequests    *prometheus.CounterVec // labels: result={hit,miss,upstream_error,bad_request}
	CacheWriteErrors prometheus.Counter

	// Upstream feed client metrics.
	UpstreamRequests *prometheus.CounterVec // labels: outcome={success,status_error,network_error,decode_error}
	UpstreamDuration prometheus.Histogram

	// Upsert engine metrics.
	RecordsUpserted prometheus.Counter
	RecordsRejected prometheus.Counter
	BatchFailures   prometheus.Counter
	UpsertBatchSize prometheus.Histogram

	// Detached task metrics.
	DetachedFailures *prometheus.CounterVec // labels: task

	// Merge engine metrics.
	MonitorWindows *prometheus.CounterVec // labels: window={day,week,month}, outcome={success,error}
	MonitorReady   prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProxyRequests,
		m.CacheWriteErrors,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.RecordsUpserted,
		m.RecordsRejected,
		m.BatchFailures,
		m.UpsertBatchSize,
		m.DetachedFailures,
		m.MonitorWindows,
		m.MonitorReady,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "USGS proxy requests by cache result.",
		}, []string{"result"}),
		CacheWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_errors_total",
			Help:      "Failed best-effort writes to the edge cache.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "USGS API requests by outcome.",
		}, []string{"outcome"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "USGS API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RecordsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      "Earthquake records written by successful batches.",
		}),
		RecordsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Earthquake records that failed validation or belonged to a failed batch.",
		}),
		BatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upsert_batch_failures_total",
			Help:      "Upsert batches rejected by the store.",
		}),
		UpsertBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upsert_batch_size",
			Help:      "Number of records per upsert batch.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 5000, 10000},
		}),
		DetachedFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detached_task_failures_total",
			Help:      "Background tasks that returned an error or panicked.",
		}, []string{"task"}),
		MonitorWindows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_window_fetches_total",
			Help:      "Merge engine feed window fetches by window and outcome.",
		}, []string{"window", "outcome"}),
		MonitorReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_initial_load_complete",
			Help:      "1 once the merge engine has published its first successful cycle.",
		}),
	}
}

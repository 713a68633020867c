package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "humidity"

// Metrics holds the Prometheus counters, histograms, and gauges for humidity runs.
type Metrics struct {
	RunsTotal      *prometheus.CounterVec // labels: outcome={success,empty,error}
	GridsProcessed prometheus.Counter
	RunDuration    prometheus.Histogram
	LastRunGrids   prometheus.Gauge
	SchedulerUp    prometheus.Gauge

	// Grid source metrics.
	SourceDuration *prometheus.HistogramVec // labels: op={query,count}
	SourceErrors   *prometheus.CounterVec   // labels: op={query,count}
	SourceCache    *prometheus.CounterVec   // labels: result={hit,miss}

	ResultsPublished prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Humidity pipeline runs by outcome.",
		}, []string{"outcome"}),
		GridsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grids_processed_total",
			Help:      "Total reanalysis grids transformed and aggregated.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete query-derive-aggregate-classify run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastRunGrids: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_grids",
			Help:      "Number of grids that contributed to the latest result.",
		}),
		SchedulerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_running",
			Help:      "1 when periodic recomputation is active, 0 otherwise.",
		}),
		SourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_duration_seconds",
			Help:      "Grid source call duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Grid source failures by operation.",
		}, []string{"op"}),
		SourceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_cache_total",
			Help:      "Grid source cache lookups by result.",
		}, []string{"result"}),
		ResultsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_published_total",
			Help:      "Results written to the sink topic.",
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.GridsProcessed,
		m.RunDuration,
		m.LastRunGrids,
		m.SchedulerUp,
		m.SourceDuration,
		m.SourceErrors,
		m.SourceCache,
		m.ResultsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

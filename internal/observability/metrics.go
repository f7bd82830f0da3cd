package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/sensor-dashboard/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases on large datasets.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Dataset loads by source (upload, fallback) and status. Watch for: missing fallback file, bad uploads.
	DatasetLoadsTotal *prometheus.CounterVec

	// Parse latency per load. Watch for: slow XLSX parsing, oversized uploads.
	DatasetLoadDuration *prometheus.HistogramVec

	// Rows discarded because the date could not be parsed. Watch for: source format drift.
	RowsDroppedTotal prometheus.Counter

	// Rows surviving the date range and cascade filters per render.
	FilteredRows prometheus.Histogram

	// Upload store lookups by result (hit, miss).
	CacheHitsTotal *prometheus.CounterVec

	// Upload store failures by operation and error type.
	CacheErrorsTotal *prometheus.CounterVec

	// Upload store latency by operation and status.
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Accepted uploads by status (stored, rejected).
	UploadsTotal *prometheus.CounterVec

	// CSV/XLSX downloads by variable and table.
	ExportsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Requests still in flight when shutdown began.
	ShutdownInFlightRequests prometheus.Gauge

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	DatasetLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasetLoadsTotal",
			Help: "Total number of dataset parses by source and status",
		},
		[]string{"source", "status"},
	)
	DatasetLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datasetLoadDurationSeconds",
			Help:    "Dataset parse latency in seconds",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)
	RowsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rowsDroppedTotal",
			Help: "Total number of rows dropped for an unparseable date",
		},
	)
	FilteredRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filteredRows",
			Help:    "Rows remaining after date range and cascade filters",
			Buckets: prometheus.ExponentialBuckets(1, 10, 7),
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Upload store lookups by result",
		},
		[]string{"result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Upload store errors by operation and error type",
		},
		[]string{"operation", "errorType"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Upload store operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation", "status"},
	)
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploadsTotal",
			Help: "Total number of dataset uploads by status",
		},
		[]string{"status"},
	)
	ExportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exportsTotal",
			Help: "Total number of table downloads by variable and table",
		},
		[]string{"variable", "table"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	ShutdownInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests at the start of graceful shutdown",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		DatasetLoadsTotal, DatasetLoadDuration, RowsDroppedTotal, FilteredRows,
		CacheHitsTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		UploadsTotal, ExportsTotal,
		RateLimitDeniedTotal, ShutdownInFlightRequests,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordDatasetLoad records one parse of a dataset.
func RecordDatasetLoad(source string, err error, dropped int, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatasetLoadsTotal.WithLabelValues(source, status).Inc()
	DatasetLoadDuration.WithLabelValues(source).Observe(d.Seconds())
	if dropped > 0 {
		RowsDroppedTotal.Add(float64(dropped))
	}
}

// RecordShutdownInFlight records the in-flight count observed when shutdown starts.
func RecordShutdownInFlight(n int64) {
	ShutdownInFlightRequests.Set(float64(n))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

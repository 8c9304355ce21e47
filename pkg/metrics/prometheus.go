// Package metrics provides Prometheus instrumentation for metric evaluation
// runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the process.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Evaluation
	slicesEvaluated   *prometheus.CounterVec
	sliceFailures     *prometheus.CounterVec
	evaluationLatency prometheus.Histogram
	runsCompleted     prometheus.Counter
	summaryValues     *prometheus.GaugeVec

	// Data quality
	diagnostics     *prometheus.CounterVec
	visitsLoaded    prometheus.Counter
	visitsDuplicate prometheus.Counter
	visitsSkipped   prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount prometheus.Gauge

	// Database
	dbQueryLatency *prometheus.HistogramVec
	dbErrors       *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sciperf",
		subsystem:        "maf",
		histogramBuckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.slicesEvaluated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "slices_evaluated_total",
		Help:        "Slices a metric was evaluated on successfully",
		ConstLabels: m.constLabels,
	}, []string{"metric"})

	m.sliceFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "slice_failures_total",
		Help:        "Slices whose evaluation failed and were masked",
		ConstLabels: m.constLabels,
	}, []string{"metric", "reason"})

	m.evaluationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "slice_evaluation_latency_milliseconds",
		Help:        "Time to evaluate one metric on one slice",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.runsCompleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "runs_completed_total",
		Help:        "Metric evaluation runs completed",
		ConstLabels: m.constLabels,
	})

	m.summaryValues = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "summary_value",
		Help:        "Latest summary statistic of a metric over all slices",
		ConstLabels: m.constLabels,
	}, []string{"metric", "stat"})

	m.diagnostics = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "diagnostics_warnings_total",
		Help:        "Non-fatal data quality warnings by kind",
		ConstLabels: m.constLabels,
	}, []string{"kind"})

	m.visitsLoaded = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "visits_loaded_total",
		Help:        "Visit rows loaded from the simulation database",
		ConstLabels: m.constLabels,
	})

	m.visitsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "visits_duplicate_total",
		Help:        "Visit rows dropped as duplicates of an earlier expMJD",
		ConstLabels: m.constLabels,
	})

	m.visitsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "visits_skipped_total",
		Help:        "Visit rows skipped by the slicer for lacking a valid pointing",
		ConstLabels: m.constLabels,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_size",
		Help:        "Slice tasks waiting in the queue",
		ConstLabels: m.constLabels,
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_capacity",
		Help:        "Maximum slice tasks the queue holds",
		ConstLabels: m.constLabels,
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_enqueued_total",
		Help:        "Slice tasks enqueued",
		ConstLabels: m.constLabels,
	})

	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_dequeued_total",
		Help:        "Slice tasks handed to workers",
		ConstLabels: m.constLabels,
	})

	m.queueEnqueueErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "queue_enqueue_errors_total",
		Help:        "Rejected enqueue attempts by reason",
		ConstLabels: m.constLabels,
	}, []string{"reason"})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_count",
		Help:        "Workers in the evaluation pool",
		ConstLabels: m.constLabels,
	})

	m.dbQueryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "db_query_latency_milliseconds",
		Help:        "Simulation database query latency",
		Buckets:     []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
		ConstLabels: m.constLabels,
	}, []string{"query"})

	m.dbErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "db_errors_total",
		Help:        "Simulation database query failures",
		ConstLabels: m.constLabels,
	}, []string{"query"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Result API requests",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "Result API request latency",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
}

// Evaluation Metrics Functions.

// RecordSliceEvaluated counts one successful slice evaluation.
func RecordSliceEvaluated(metric string) {
	globalManager.slicesEvaluated.WithLabelValues(metric).Inc()
}

// RecordSliceFailure counts one masked slice.
func RecordSliceFailure(metric, reason string) {
	globalManager.sliceFailures.WithLabelValues(metric, reason).Inc()
}

// RecordEvaluationLatency records one slice evaluation in milliseconds.
func RecordEvaluationLatency(latencyMs float64) {
	globalManager.evaluationLatency.Observe(latencyMs)
}

// RecordRunCompleted counts one finished evaluation run.
func RecordRunCompleted() {
	globalManager.runsCompleted.Inc()
}

// UpdateSummaryValue publishes a summary statistic.
func UpdateSummaryValue(metric, stat string, value float64) {
	globalManager.summaryValues.WithLabelValues(metric, stat).Set(value)
}

// Data Quality Metrics Functions.

// RecordDiagnostic counts one non-fatal warning.
func RecordDiagnostic(kind string) {
	globalManager.diagnostics.WithLabelValues(kind).Inc()
}

// RecordVisitsLoaded adds n loaded visit rows.
func RecordVisitsLoaded(n int) {
	globalManager.visitsLoaded.Add(float64(n))
}

// RecordDuplicateVisits adds n dropped duplicate rows.
func RecordDuplicateVisits(n int) {
	globalManager.visitsDuplicate.Add(float64(n))
}

// RecordVisitsSkipped adds n visit rows the slicer could not place.
func RecordVisitsSkipped(n int) {
	globalManager.visitsSkipped.Add(float64(n))
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// Database Metrics Functions.

// RecordDBQueryLatency records one query in milliseconds.
func RecordDBQueryLatency(query string, latencyMs float64) {
	globalManager.dbQueryLatency.WithLabelValues(query).Observe(latencyMs)
}

// RecordDBError counts one failed query.
func RecordDBError(query string) {
	globalManager.dbErrors.WithLabelValues(query).Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest counts one API request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records one API request in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the current state of the registry in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return errorf("write textfile %s: %w", path, err)
	}
	return nil
}

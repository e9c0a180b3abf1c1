// Package metrics provides Prometheus metrics for the Podium judging service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the Podium service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Score ingestion
	scoresSubmitted prometheus.Counter
	scoresDuplicate prometheus.Counter
	scoresRejected  *prometheus.CounterVec
	weightWarnings  prometheus.Counter

	// Aggregation and projection
	aggregationLatency prometheus.Histogram
	recomputeJobs      *prometheus.CounterVec
	recomputeCoalesced prometheus.Counter
	recomputeErrors    prometheus.Counter
	standingsPublished prometheus.Counter
	trackedEvents      prometheus.Gauge
	streamClients      prometheus.Gauge
	feedConnected      prometheus.Gauge
	feedDisconnects    prometheus.Counter

	// Rounds
	roundTransitions *prometheus.CounterVec
	roundConflicts   prometheus.Counter
	eliminations     *prometheus.CounterVec

	// Store
	storeWriteLatency *prometheus.HistogramVec
	storeQueryLatency *prometheus.HistogramVec
	storeScoreRecords prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "podium",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.scoresSubmitted = m.counter("scores_submitted_total", "Total number of score records appended")
	m.scoresDuplicate = m.counter("scores_duplicate_total", "Total number of duplicate score submissions acknowledged without append")
	m.scoresRejected = m.counterVec("scores_rejected_total", "Total number of rejected score submissions by reason", "reason")
	m.weightWarnings = m.counter("criteria_weight_warnings_total", "Total number of criteria sets whose enabled weights do not sum to 100")

	m.aggregationLatency = m.histogram("aggregation_latency_milliseconds", "Latency of composite score recomputation in milliseconds", m.histogramBuckets)
	m.recomputeJobs = m.counterVec("recompute_jobs_total", "Total number of projector recompute jobs by kind", "kind")
	m.recomputeCoalesced = m.counter("recompute_coalesced_total", "Total number of recompute requests merged into an already pending job")
	m.recomputeErrors = m.counter("recompute_errors_total", "Total number of failed projector recompute jobs")
	m.standingsPublished = m.counter("standings_published_total", "Total number of standings views republished to subscribers")
	m.trackedEvents = m.gauge("tracked_events", "Number of events the live projector keeps current")
	m.streamClients = m.gauge("stream_clients", "Number of connected live standings stream clients")
	m.feedConnected = m.gauge("feed_connected", "1 when the change notification feed is connected, 0 otherwise")
	m.feedDisconnects = m.counter("feed_disconnects_total", "Total number of change notification feed failures")

	m.roundTransitions = m.counterVec("round_transitions_total", "Total number of applied round transitions", "from", "to")
	m.roundConflicts = m.counter("round_conflicts_total", "Total number of rejected concurrent round transitions")
	m.eliminations = m.counterVec("eliminations_total", "Total number of contestant eliminations by round", "round")

	m.storeWriteLatency = m.histogramVec("store_write_latency_milliseconds", "Store write latency in milliseconds", "backend", "op")
	m.storeQueryLatency = m.histogramVec("store_query_latency_milliseconds", "Store query latency in milliseconds", "backend", "op")
	m.storeScoreRecords = m.gauge("store_score_records", "Number of score records held by the store")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current size of the recompute queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum recompute queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of active recompute workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Score ingestion.

// RecordScoreSubmitted increments the appended score records counter.
func RecordScoreSubmitted() {
	globalManager.scoresSubmitted.Inc()
}

// RecordScoreDuplicate increments the duplicate submissions counter.
func RecordScoreDuplicate() {
	globalManager.scoresDuplicate.Inc()
}

// RecordScoreRejected counts a rejected submission.
func RecordScoreRejected(reason string) {
	globalManager.scoresRejected.WithLabelValues(reason).Inc()
}

// RecordWeightWarning counts a criteria set with inconsistent weights.
func RecordWeightWarning() {
	globalManager.weightWarnings.Inc()
}

// Aggregation and projection.

// RecordAggregationLatency records composite recomputation latency in milliseconds.
func RecordAggregationLatency(latencyMs float64) {
	globalManager.aggregationLatency.Observe(latencyMs)
}

// RecordRecomputeJob counts a processed recompute job of the given kind.
func RecordRecomputeJob(kind string) {
	globalManager.recomputeJobs.WithLabelValues(kind).Inc()
}

// RecordRecomputeCoalesced counts a request merged into a pending job.
func RecordRecomputeCoalesced() {
	globalManager.recomputeCoalesced.Inc()
}

// RecordRecomputeError counts a failed recompute job.
func RecordRecomputeError() {
	globalManager.recomputeErrors.Inc()
}

// RecordStandingsPublished counts a republished standings view.
func RecordStandingsPublished() {
	globalManager.standingsPublished.Inc()
}

// UpdateTrackedEvents sets the number of tracked events.
func UpdateTrackedEvents(count int) {
	globalManager.trackedEvents.Set(float64(count))
}

// UpdateStreamClients sets the number of live stream clients.
func UpdateStreamClients(count int) {
	globalManager.streamClients.Set(float64(count))
}

// UpdateFeedConnected records the change feed connectivity state.
func UpdateFeedConnected(connected bool) {
	if connected {
		globalManager.feedConnected.Set(1)
		return
	}
	globalManager.feedConnected.Set(0)
}

// RecordFeedDisconnect counts a change feed failure.
func RecordFeedDisconnect() {
	globalManager.feedDisconnects.Inc()
}

// Rounds.

// RecordRoundTransition counts an applied round transition.
func RecordRoundTransition(from, to string) {
	globalManager.roundTransitions.WithLabelValues(from, to).Inc()
}

// RecordRoundConflict counts a rejected concurrent transition.
func RecordRoundConflict() {
	globalManager.roundConflicts.Inc()
}

// RecordEliminations adds n eliminations in the given round.
func RecordEliminations(round string, n int) {
	globalManager.eliminations.WithLabelValues(round).Add(float64(n))
}

// Store.

// RecordStoreWriteLatency records a store write latency.
func RecordStoreWriteLatency(backend, op string, latencyMs float64) {
	globalManager.storeWriteLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreQueryLatency records a store query latency.
func RecordStoreQueryLatency(backend, op string, latencyMs float64) {
	globalManager.storeQueryLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// UpdateStoreScoreRecords sets the number of stored score records.
func UpdateStoreScoreRecords(count int) {
	globalManager.storeScoreRecords.Set(float64(count))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
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

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// SinceMs returns the elapsed milliseconds since start as a float.
func SinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

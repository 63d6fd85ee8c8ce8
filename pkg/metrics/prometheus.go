// Package metrics provides Prometheus metrics for the submission scoring pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the scoring service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline outcome metrics
	submissionsCreated     prometheus.Counter
	submissionsRetriggered prometheus.Counter
	submissionsFinished    *prometheus.CounterVec
	overallScore           prometheus.Histogram
	aiRisk                 prometheus.Histogram

	// Stage metrics
	stageLatency      *prometheus.HistogramVec
	stageRetries      *prometheus.CounterVec
	stageFailures     *prometheus.CounterVec
	stageDegradations *prometheus.CounterVec

	// Queue metrics
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueue     prometheus.Counter
	queueDequeue     prometheus.Counter
	queueRejected    prometheus.Counter
	queueAckFailures prometheus.Counter

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerJobsPerSecond     prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter
	workerSkipped           *prometheus.CounterVec
	workerPanics            prometheus.Counter

	// Broadcaster metrics
	progressSubscribers prometheus.Gauge
	progressPublished   prometheus.Counter
	progressDropped     prometheus.Counter

	// Store metrics
	storeLatency   *prometheus.HistogramVec
	rankingEntries prometheus.Gauge
	batchesActive  prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
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
		namespace:        "intern",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval reports how often gauge updaters should sample.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// SetRefreshInterval changes the sampling period of the process-wide
// manager. Call it before the gauge updaters start.
func SetRefreshInterval(d time.Duration) { WithRefreshInterval(d)(globalManager) }

// RefreshInterval reports the sampling period of the process-wide manager.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

// Enabled reports whether recording is active.
func (m *Manager) Enabled() bool { return m.enabled }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	scoreBuckets := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	riskBuckets := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

	m.submissionsCreated = m.counter("submissions_created_total", "Total number of submissions accepted")
	m.submissionsRetriggered = m.counter("submissions_retriggered_total",
		"Total number of finished submissions reset for another run")
	m.submissionsFinished = m.counterVec("submissions_finished_total",
		"Total number of submissions that reached a terminal state", "outcome")
	m.overallScore = m.histogram("overall_score", "Distribution of overall rubric scores", scoreBuckets)
	m.aiRisk = m.histogram("ai_risk", "Distribution of AI-authorship risk estimates", riskBuckets)

	m.stageLatency = m.histogramVec("stage_latency_milliseconds", "Stage execution latency in milliseconds", "stage")
	m.stageRetries = m.counterVec("stage_retries_total", "Total number of transient retries by stage", "stage")
	m.stageFailures = m.counterVec("stage_failures_total", "Total number of runs failed at a stage", "stage")
	m.stageDegradations = m.counterVec("stage_degradations_total",
		"Total number of categories scored with a degraded default", "stage")

	m.queueSize = m.gauge("queue_size", "Current number of jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueRejected = m.counter("queue_rejected_total", "Total number of jobs rejected for backpressure")
	m.queueAckFailures = m.counter("queue_ack_failures_total", "Total number of failed acknowledgements")

	m.workerCount = m.gauge("worker_count", "Configured number of workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers running a job")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle workers")
	m.workerJobsPerSecond = m.gauge("worker_jobs_per_second", "Average jobs completed per second")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"End-to-end job latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Total number of jobs that ended in error")
	m.workerSkipped = m.counterVec("worker_skipped_total", "Total number of deliveries skipped", "reason")
	m.workerPanics = m.counter("worker_panics_total", "Total number of recovered panics")

	m.progressSubscribers = m.gauge("progress_subscribers", "Current number of progress subscribers")
	m.progressPublished = m.counter("progress_published_total", "Total number of progress events published")
	m.progressDropped = m.counter("progress_dropped_total", "Total number of progress events dropped on full buffers")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency in milliseconds", "op")
	m.rankingEntries = m.gauge("ranking_entries", "Number of completed submissions in the ranking")
	m.batchesActive = m.gauge("batches_active", "Number of batches currently processing")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func on() bool { return globalManager.enabled }

// RecordSubmissionCreated increments the accepted submissions counter.
func RecordSubmissionCreated() {
	if on() {
		globalManager.submissionsCreated.Inc()
	}
}

// RecordSubmissionRetriggered counts a finished submission sent back to pending.
func RecordSubmissionRetriggered() {
	if on() {
		globalManager.submissionsRetriggered.Inc()
	}
}

// RecordSubmissionFinished counts a terminal outcome (completed or failed).
func RecordSubmissionFinished(outcome string) {
	if on() {
		globalManager.submissionsFinished.WithLabelValues(outcome).Inc()
	}
}

// RecordOverallScore observes a completed report's overall score.
func RecordOverallScore(score int) {
	if on() {
		globalManager.overallScore.Observe(float64(score))
	}
}

// RecordAIRisk observes a completed report's authorship risk.
func RecordAIRisk(risk float64) {
	if on() {
		globalManager.aiRisk.Observe(risk)
	}
}

// RecordStageLatency records how long a stage took in milliseconds.
func RecordStageLatency(stage string, latencyMs float64) {
	if on() {
		globalManager.stageLatency.WithLabelValues(stage).Observe(latencyMs)
	}
}

// RecordStageRetry increments the retry counter for stage.
func RecordStageRetry(stage string) {
	if on() {
		globalManager.stageRetries.WithLabelValues(stage).Inc()
	}
}

// RecordStageFailure increments the failure counter for stage.
func RecordStageFailure(stage string) {
	if on() {
		globalManager.stageFailures.WithLabelValues(stage).Inc()
	}
}

// RecordStageDegradation increments the degraded category counter for stage.
func RecordStageDegradation(stage string) {
	if on() {
		globalManager.stageDegradations.WithLabelValues(stage).Inc()
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueue.Inc()
	}
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeue.Inc()
	}
}

// RecordQueueRejected increments the backpressure counter.
func RecordQueueRejected() {
	if on() {
		globalManager.queueRejected.Inc()
	}
}

// RecordQueueAckFailure increments the ack failure counter.
func RecordQueueAckFailure() {
	if on() {
		globalManager.queueAckFailures.Inc()
	}
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	if on() {
		globalManager.workerCount.Set(float64(count))
	}
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	if on() {
		globalManager.workerActiveCount.Set(float64(count))
	}
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	if on() {
		globalManager.workerIdleCount.Set(float64(count))
	}
}

// UpdateWorkerJobsPerSecond sets the average job completion rate.
func UpdateWorkerJobsPerSecond(rate float64) {
	if on() {
		globalManager.workerJobsPerSecond.Set(rate)
	}
}

// RecordWorkerProcessingLatency records end-to-end job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if on() {
		globalManager.workerErrors.Inc()
	}
}

// RecordWorkerSkipped counts a delivery the pool did not run.
func RecordWorkerSkipped(reason string) {
	if on() {
		globalManager.workerSkipped.WithLabelValues(reason).Inc()
	}
}

// RecordWorkerPanic increments the recovered panic counter.
func RecordWorkerPanic() {
	if on() {
		globalManager.workerPanics.Inc()
	}
}

// UpdateProgressSubscribers sets the current subscriber count.
func UpdateProgressSubscribers(count int) {
	if on() {
		globalManager.progressSubscribers.Set(float64(count))
	}
}

// RecordProgressPublished increments the published events counter.
func RecordProgressPublished() {
	if on() {
		globalManager.progressPublished.Inc()
	}
}

// RecordProgressDropped increments the dropped events counter.
func RecordProgressDropped() {
	if on() {
		globalManager.progressDropped.Inc()
	}
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(op string, latencyMs float64) {
	if on() {
		globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

// UpdateRankingEntries sets the number of ranked submissions.
func UpdateRankingEntries(count int) {
	if on() {
		globalManager.rankingEntries.Set(float64(count))
	}
}

// UpdateBatchesActive sets the number of processing batches.
func UpdateBatchesActive(count int) {
	if on() {
		globalManager.batchesActive.Set(float64(count))
	}
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if on() {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if on() {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if on() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the guildboard service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Event lifecycle
	eventsCreated   *prometheus.CounterVec
	eventsActivated *prometheus.CounterVec
	eventsFinished  *prometheus.CounterVec
	eventsDiscarded *prometheus.CounterVec
	enrollments     *prometheus.CounterVec
	eventsActive    prometheus.Gauge
	eventsTracked   prometheus.Gauge
	finishDuration  prometheus.Histogram
	unscored        *prometheus.CounterVec
	dataAnomalies   *prometheus.CounterVec
	storeDivergence *prometheus.CounterVec
	resultsComputed prometheus.Counter
	scoringLatency  prometheus.Histogram
	resultStandings prometheus.Histogram

	// Stats provider
	statsFetches       *prometheus.CounterVec
	statsFetchDuration *prometheus.HistogramVec
	statsRetries       *prometheus.CounterVec

	// Scheduler
	timersArmed    prometheus.Gauge
	timerFires     prometheus.Counter
	timerDuplicate prometheus.Counter
	timerRearms    prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var (
	mu             sync.RWMutex
	globalManager  *Manager
	customRegistry = prometheus.NewRegistry()
	configured     bool
)

func init() { //nolint:gochecknoinits // global collectors must exist before any Record call
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the global collectors on a fresh registry using opts.
// It may be called once, before the service starts recording.
func Configure(opts ...Option) error {
	mu.Lock()
	defer mu.Unlock()
	if configured {
		return ErrAlreadyConfigured
	}
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(reg)}, opts...)...)
	customRegistry = reg
	configured = true
	return nil
}

func current() *Manager {
	mu.RLock()
	defer mu.RUnlock()
	return globalManager
}

// NewManager creates a metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "guildboard",
		subsystem:        "events",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.eventsCreated = m.counterVec("created_total", "Events created, by kind", "kind")
	m.eventsActivated = m.counterVec("activated_total", "Events activated, by kind", "kind")
	m.eventsFinished = m.counterVec("finished_total", "Events that ended, by kind and outcome (finished|failed)", "kind", "outcome")
	m.eventsDiscarded = m.counterVec("discarded_total", "Created events discarded before activation", "kind")
	m.enrollments = m.counterVec("enrollments_total", "Participants enrolled, by kind and event state at enrollment", "kind", "state")
	m.eventsActive = m.gauge("active", "Events currently in the active state")
	m.eventsTracked = m.gauge("tracked", "Events held in the registry, any state")
	m.finishDuration = m.histogram("finish_duration_milliseconds", "Wall time of a finish pass including stat fetches", m.histogramBuckets)
	m.unscored = m.counterVec("participants_unscored_total", "Participants left without a score, by kind and reason", "kind", "reason")
	m.dataAnomalies = m.counterVec("data_anomalies_total", "Counter regressions and profile switches seen between snapshots", "kind", "type")
	m.storeDivergence = m.counterVec("store_divergence_total", "Failed events whose failed state could not be written; the store still says active", "kind")
	m.resultsComputed = m.counter("results_computed_total", "Standings computed on demand")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "Time to score and rank one event", []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 50})
	m.resultStandings = m.histogram("result_standings", "Ranked participants per computed result", []float64{1, 5, 10, 25, 50, 100, 250})

	m.statsFetches = m.counterVec("stats_fetch_total", "Stats provider calls, by kind and outcome", "kind", "outcome")
	m.statsFetchDuration = m.histogramVec("stats_fetch_duration_milliseconds", "Stats provider call latency", "kind")
	m.statsRetries = m.counterVec("stats_fetch_retries_total", "Stats provider retries, by error class", "class")

	m.timersArmed = m.gauge("timers_armed", "End timers currently armed")
	m.timerFires = m.counter("timer_fires_total", "End timers fired")
	m.timerDuplicate = m.counter("timer_fires_duplicate_total", "Timer fires dropped as duplicates")
	m.timerRearms = m.counter("timer_rearms_total", "Timers re-armed after the finish queue refused a task")

	m.queueSize = m.gauge("queue_size", "Finish tasks waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the finish task queue")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Finish tasks enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Finish tasks dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Finish tasks rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Running finish workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spent on one finish task", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Finish tasks that returned an error")

	m.storeOperations = m.counterVec("store_operations_total", "Persistence operations, by operation and outcome", "op", "outcome")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Persistence operation latency", "op")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request latency", "endpoint", "method", "status_code")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Live goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Most recent GC pause", []float64{0.01, 0.1, 0.5, 1, 5, 10, 50, 100})
}

// Event lifecycle.

func RecordEventCreated(kind string)   { current().eventsCreated.WithLabelValues(kind).Inc() }
func RecordEventActivated(kind string) { current().eventsActivated.WithLabelValues(kind).Inc() }
func RecordEventDiscarded(kind string) { current().eventsDiscarded.WithLabelValues(kind).Inc() }

// RecordEventFinished counts an event leaving the active state; outcome is "finished" or "failed".
func RecordEventFinished(kind, outcome string) {
	current().eventsFinished.WithLabelValues(kind, outcome).Inc()
}

// RecordEnrollment counts a participant joining an event in the given state.
func RecordEnrollment(kind, state string) {
	current().enrollments.WithLabelValues(kind, state).Inc()
}

func UpdateActiveEvents(count int)  { current().eventsActive.Set(float64(count)) }
func UpdateTrackedEvents(count int) { current().eventsTracked.Set(float64(count)) }

// RecordFinishDuration records how long a finish pass took.
func RecordFinishDuration(latencyMs float64) { current().finishDuration.Observe(latencyMs) }

// RecordUnscored counts a participant excluded from ranking.
func RecordUnscored(kind, reason string) { current().unscored.WithLabelValues(kind, reason).Inc() }

// RecordDataAnomaly counts a suspicious snapshot pair; typ is "regression" or "profile_switch".
func RecordDataAnomaly(kind, typ string) { current().dataAnomalies.WithLabelValues(kind, typ).Inc() }

// RecordStoreDivergence counts an event held as failed in memory while the
// store still holds it as active.
func RecordStoreDivergence(kind string) { current().storeDivergence.WithLabelValues(kind).Inc() }

// RecordResultComputed records one standings computation.
func RecordResultComputed(latencyMs float64, standings int) {
	m := current()
	m.resultsComputed.Inc()
	m.scoringLatency.Observe(latencyMs)
	m.resultStandings.Observe(float64(standings))
}

// Stats provider.

// RecordStatsFetch records one provider call.
func RecordStatsFetch(kind, outcome string, latencyMs float64) {
	m := current()
	m.statsFetches.WithLabelValues(kind, outcome).Inc()
	m.statsFetchDuration.WithLabelValues(kind).Observe(latencyMs)
}

// RecordStatsRetry counts a retried provider call.
func RecordStatsRetry(class string) { current().statsRetries.WithLabelValues(class).Inc() }

// Scheduler.

func UpdateTimersArmed(count int) { current().timersArmed.Set(float64(count)) }
func RecordTimerFire()            { current().timerFires.Inc() }
func RecordTimerDuplicate()       { current().timerDuplicate.Inc() }
func RecordTimerRearm()           { current().timerRearms.Inc() }

// Queue.

func UpdateQueueSize(size int)         { current().queueSize.Set(float64(size)) }
func UpdateQueueCapacity(capacity int) { current().queueCapacity.Set(float64(capacity)) }
func RecordQueueEnqueue()              { current().queueEnqueue.Inc() }
func RecordQueueDequeue()              { current().queueDequeue.Inc() }
func RecordQueueEnqueueError()         { current().queueEnqueueErrors.Inc() }

// Worker.

func UpdateWorkerCount(count int) { current().workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	current().workerProcessingLatency.Observe(latencyMs)
}

func RecordWorkerError() { current().workerErrors.Inc() }

// Store.

// RecordStoreOperation records one persistence call.
func RecordStoreOperation(op, outcome string, latencyMs float64) {
	m := current()
	m.storeOperations.WithLabelValues(op, outcome).Inc()
	m.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// HTTP.

// RecordHTTPRequest counts one served request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	current().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records request latency in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	current().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	current().errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System.

func UpdateSystemMemoryUsage(bytes uint64)    { current().systemMemoryUsage.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(count int)    { current().systemGoroutineCount.Set(float64(count)) }
func RecordSystemGCPauseTime(pauseMs float64) { current().systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry backing the global collectors.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return customRegistry
}

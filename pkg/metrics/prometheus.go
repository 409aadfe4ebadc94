package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Write path
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    prometheus.Counter
	queueWait        prometheus.Histogram
	workerCount      prometheus.Gauge
	commandLatency   *prometheus.HistogramVec
	commandErrors    *prometheus.CounterVec
	commandRetries   prometheus.Counter
	submissionsTotal *prometheus.CounterVec

	// Core computation
	replayDuration     prometheus.Histogram
	projectionDuration prometheus.Histogram
	whatIfTotal        prometheus.Counter
	whatIfDuration     prometheus.Histogram
	degenerateMetrics  *prometheus.CounterVec
	ledgerPlayers      prometheus.Gauge
	ledgerGames        prometheus.Gauge

	// Store
	storeLoadLatency *prometheus.HistogramVec
	storeSaveLatency *prometheus.HistogramVec
	storeConflicts   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "paddle",
		subsystem:        "league",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"),
		[]string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Commands waiting for the writer"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of commands enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of commands dequeued"))
	m.queueRejected = auto.NewCounter(m.counterOpts("queue_rejected_total", "Commands rejected because the queue was full"))
	m.queueWait = auto.NewHistogram(m.histogramOpts("queue_wait_milliseconds", "Time a command spent queued"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of writer workers"))
	m.commandLatency = auto.NewHistogramVec(m.histogramOpts("command_latency_milliseconds",
		"Load, apply, replay, project and save latency per command"),
		[]string{"kind"})
	m.commandErrors = auto.NewCounterVec(m.counterOpts("command_errors_total",
		"Commands that ended in an error"),
		[]string{"kind", "error_type"})
	m.commandRetries = auto.NewCounter(m.counterOpts("command_retries_total",
		"Commands retried after a write conflict"))
	m.submissionsTotal = auto.NewCounterVec(m.counterOpts("submissions_total",
		"Game submissions by outcome"),
		[]string{"outcome"})

	m.replayDuration = auto.NewHistogram(m.histogramOpts("replay_duration_milliseconds", "Full ledger replay duration"))
	m.projectionDuration = auto.NewHistogram(m.histogramOpts("projection_duration_milliseconds", "Leaderboard projection duration"))
	m.whatIfTotal = auto.NewCounter(m.counterOpts("whatif_total", "Total number of what-if simulations"))
	m.whatIfDuration = auto.NewHistogram(m.histogramOpts("whatif_duration_milliseconds", "What-if simulation duration"))
	m.degenerateMetrics = auto.NewCounterVec(m.counterOpts("degenerate_metrics_total",
		"Projections where a metric population had no spread"),
		[]string{"metric"})
	m.ledgerPlayers = auto.NewGauge(m.gaugeOpts("ledger_players", "Registered players"))
	m.ledgerGames = auto.NewGauge(m.gaugeOpts("ledger_games", "Recorded games"))

	m.storeLoadLatency = auto.NewHistogramVec(m.histogramOpts("store_load_latency_milliseconds",
		"Ledger store load latency"),
		[]string{"driver"})
	m.storeSaveLatency = auto.NewHistogramVec(m.histogramOpts("store_save_latency_milliseconds",
		"Ledger store save latency"),
		[]string{"driver"})
	m.storeConflicts = auto.NewCounterVec(m.counterOpts("store_conflicts_total",
		"Saves rejected by the revision check"),
		[]string{"driver"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	gc := m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds")
	gc.Buckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}
	m.systemGCPauseTime = auto.NewHistogram(gc)
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// HTTP.

// RecordHTTPRequest records a finished HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string, d time.Duration) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms(d))
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// Write path.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue records a dequeue and how long the command waited.
func RecordQueueDequeue(wait time.Duration) {
	globalManager.queueDequeued.Inc()
	globalManager.queueWait.Observe(ms(wait))
}

// RecordQueueRejected increments the backpressure counter.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// UpdateWorkerCount sets the number of writer workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordCommand records one applied command.
func RecordCommand(kind string, d time.Duration) {
	globalManager.commandLatency.WithLabelValues(kind).Observe(ms(d))
}

// RecordCommandError records a command that failed.
func RecordCommandError(kind, errorType string) {
	globalManager.commandErrors.WithLabelValues(kind, errorType).Inc()
}

// RecordCommandRetry increments the conflict retry counter.
func RecordCommandRetry() { globalManager.commandRetries.Inc() }

// Submission outcomes.
const (
	SubmissionAccepted  = "accepted"
	SubmissionDuplicate = "duplicate"
	SubmissionRejected  = "rejected"
)

// RecordSubmission counts a game submission by outcome.
func RecordSubmission(outcome string) {
	globalManager.submissionsTotal.WithLabelValues(outcome).Inc()
}

// Core computation.

// RecordReplay records a replay duration.
func RecordReplay(d time.Duration) { globalManager.replayDuration.Observe(ms(d)) }

// RecordProjection records a projection duration.
func RecordProjection(d time.Duration) { globalManager.projectionDuration.Observe(ms(d)) }

// RecordWhatIf records a simulation.
func RecordWhatIf(d time.Duration) {
	globalManager.whatIfTotal.Inc()
	globalManager.whatIfDuration.Observe(ms(d))
}

// RecordDegenerateMetric counts a projection with a zero-spread metric.
func RecordDegenerateMetric(metric string) {
	globalManager.degenerateMetrics.WithLabelValues(metric).Inc()
}

// UpdateLedgerSize sets the player and game gauges.
func UpdateLedgerSize(players, games int) {
	globalManager.ledgerPlayers.Set(float64(players))
	globalManager.ledgerGames.Set(float64(games))
}

// Store.

// RecordStoreLoad records a store load.
func RecordStoreLoad(driver string, d time.Duration) {
	globalManager.storeLoadLatency.WithLabelValues(driver).Observe(ms(d))
}

// RecordStoreSave records a store save.
func RecordStoreSave(driver string, d time.Duration) {
	globalManager.storeSaveLatency.WithLabelValues(driver).Observe(ms(d))
}

// RecordStoreConflict counts a save rejected by the revision check.
func RecordStoreConflict(driver string) {
	globalManager.storeConflicts.WithLabelValues(driver).Inc()
}

// System.

// UpdateSystemMemoryUsage sets heap memory in use.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records a GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// CollectSystem samples runtime statistics every interval until ctx is done.
func CollectSystem(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	var lastGC uint32
	sample := func() {
		var st runtime.MemStats
		runtime.ReadMemStats(&st)
		UpdateSystemMemoryUsage(st.HeapAlloc)
		UpdateSystemGoroutineCount(runtime.NumGoroutine())
		ring := uint32(len(st.PauseNs))
		from := lastGC
		if st.NumGC > ring && st.NumGC-ring > from {
			from = st.NumGC - ring
		}
		for n := from; n < st.NumGC; n++ {
			RecordSystemGCPauseTime(float64(st.PauseNs[n%ring]) / 1e6)
		}
		lastGC = st.NumGC
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	sample()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			sample()
		}
	}
}

// GetRegistry returns the registry served on /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

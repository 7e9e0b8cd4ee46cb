// Package metrics provides Prometheus metrics for the promptelo tournament service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Tournament metrics
	matchesJudged        *prometheus.CounterVec
	verdictsUnparseable  prometheus.Counter
	matchesSkipped       prometheus.Counter
	roundsPlayed         prometheus.Counter
	ratingDelta          prometheus.Histogram
	tournamentsFinished  *prometheus.CounterVec
	tournamentsActive    prometheus.Gauge
	candidatesRegistered prometheus.Counter

	// Capability metrics
	capabilityCalls     *prometheus.CounterVec
	capabilityFallbacks *prometheus.CounterVec
	capabilityExhausted *prometheus.CounterVec
	capabilityLatency   *prometheus.HistogramVec

	// Queue and worker metrics
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueRejected *prometheus.CounterVec
	workerCount   prometheus.Gauge
	storedResults prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// latencyBuckets are milliseconds; external model calls take seconds.
var latencyBuckets = []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000} //nolint:gochecknoglobals // constant bucket layout

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "promptelo",
		subsystem:        "tournament",
		histogramBuckets: latencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.matchesJudged = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matches_judged_total",
		Help:      "Judged matches by verdict",
	}, []string{"verdict"})

	m.verdictsUnparseable = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "verdicts_unparseable_total",
		Help:      "Evaluator responses without a WINNER line (recorded as draws)",
	})

	m.matchesSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matches_skipped_total",
		Help:      "Matches skipped because the evaluator failed",
	})

	m.roundsPlayed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rounds_played_total",
		Help:      "Tournament rounds that produced at least one pair",
	})

	m.ratingDelta = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rating_delta_abs",
		Help:      "Absolute rating change per candidate per match",
		Buckets:   []float64{0.5, 1, 2, 4, 8, 12, 16, 24, 32, 48},
	})

	m.tournamentsFinished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tournaments_finished_total",
		Help:      "Finished tournaments by status",
	}, []string{"status"})

	m.tournamentsActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tournaments_active",
		Help:      "Tournaments currently running",
	})

	m.candidatesRegistered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "candidates_registered_total",
		Help:      "Candidates registered across all tournaments",
	})

	m.capabilityCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "capability",
		Name:      "calls_total",
		Help:      "Backend invocations by capability, backend and outcome",
	}, []string{"capability", "backend", "outcome"})

	m.capabilityFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "capability",
		Name:      "fallbacks_total",
		Help:      "Times a capability moved on to its next backend",
	}, []string{"capability"})

	m.capabilityExhausted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "capability",
		Name:      "exhausted_total",
		Help:      "Times every backend of a capability failed",
	}, []string{"capability"})

	m.capabilityLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "capability",
		Name:      "latency_milliseconds",
		Help:      "Backend call latency in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"capability", "backend"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "size",
		Help:      "Tournament jobs waiting in the queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "capacity",
		Help:      "Maximum queued tournament jobs",
	})

	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "enqueued_total",
		Help:      "Tournament jobs accepted by the queue",
	})

	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "queue",
		Name:      "rejected_total",
		Help:      "Tournament jobs rejected by the queue, by reason",
	}, []string{"reason"})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "count",
		Help:      "Tournament workers started",
	})

	m.storedResults = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "repository",
		Name:      "results",
		Help:      "Tournament results held in the in-memory store",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// Tournament metrics.

// RecordMatchJudged counts a judged match by verdict (A, B, DRAW).
func RecordMatchJudged(verdict string) {
	globalManager.matchesJudged.WithLabelValues(verdict).Inc()
}

// RecordVerdictUnparseable counts an evaluator response without a verdict line.
func RecordVerdictUnparseable() {
	globalManager.verdictsUnparseable.Inc()
}

// RecordMatchSkipped counts a match dropped after an evaluator failure.
func RecordMatchSkipped() {
	globalManager.matchesSkipped.Inc()
}

// RecordRoundPlayed counts a played round.
func RecordRoundPlayed() {
	globalManager.roundsPlayed.Inc()
}

// RecordRatingDelta observes the absolute rating change of one candidate.
func RecordRatingDelta(delta float64) {
	if delta < 0 {
		delta = -delta
	}
	globalManager.ratingDelta.Observe(delta)
}

// RecordTournamentFinished counts a finished tournament by status.
func RecordTournamentFinished(status string) {
	globalManager.tournamentsFinished.WithLabelValues(status).Inc()
}

// AddActiveTournaments adjusts the running tournaments gauge.
func AddActiveTournaments(delta int) {
	globalManager.tournamentsActive.Add(float64(delta))
}

// RecordCandidatesRegistered counts registered candidates.
func RecordCandidatesRegistered(n int) {
	globalManager.candidatesRegistered.Add(float64(n))
}

// Capability metrics.

// RecordCapabilityCall counts one backend call and observes its latency.
func RecordCapabilityCall(capability, backend, outcome string, latencyMs float64) {
	globalManager.capabilityCalls.WithLabelValues(capability, backend, outcome).Inc()
	globalManager.capabilityLatency.WithLabelValues(capability, backend).Observe(latencyMs)
}

// RecordCapabilityFallback counts a move to the next backend.
func RecordCapabilityFallback(capability string) {
	globalManager.capabilityFallbacks.WithLabelValues(capability).Inc()
}

// RecordCapabilityExhausted counts a capability whose backends all failed.
func RecordCapabilityExhausted(capability string) {
	globalManager.capabilityExhausted.WithLabelValues(capability).Inc()
}

// Queue and worker metrics.

// UpdateQueueSize sets the queued jobs gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts a rejected job.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the worker gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateStoredResults sets the stored results gauge.
func UpdateStoredResults(count int) {
	globalManager.storedResults.Set(float64(count))
}

// HTTP metrics.

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom registry every metric is registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// latencyBuckets covers collaborator calls from fast local heuristics to slow LLM requests.
var latencyBuckets = []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

// Manager owns every metric the engine records. A nil *Manager is valid and
// records nothing, so components can be built without metrics in tests.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Generation runs
	runsTotal         *prometheus.CounterVec
	stepsCommitted    *prometheus.CounterVec
	attemptsTotal     prometheus.Counter
	retriesTotal      prometheus.Counter
	unverifiedCommits prometheus.Counter
	attemptErrors     *prometheus.CounterVec

	// Planning
	rowFallbacks    prometheus.Counter
	matrixFallbacks prometheus.Counter
	modelSwaps      prometheus.Counter

	// Mining
	segmentsClassified  prometheus.Counter
	classifierRecovered prometheus.Counter
	labelsCoerced       prometheus.Counter
	miningDuration      prometheus.Histogram

	// Collaborators
	collaboratorLatency *prometheus.HistogramVec
}

// NewManager creates a metrics manager on its own registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "nte",
		subsystem:        "trajectory",
		histogramBuckets: latencyBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Generation runs by final status",
	}, []string{"status"})

	m.stepsCommitted = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "steps_committed_total",
		Help:      "Committed story positions by planning mode",
	}, []string{"mode"})

	m.attemptsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "attempts_total",
		Help:      "Generate/verify attempts issued",
	})

	m.retriesTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retries_total",
		Help:      "Attempts issued after a rejected verification",
	})

	m.unverifiedCommits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "unverified_commits_total",
		Help:      "Steps committed best-effort after retries were exhausted",
	})

	m.attemptErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "attempt_errors_total",
		Help:      "Recovered collaborator errors during generation, by stage",
	}, []string{"stage"})

	m.rowFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "row_fallbacks_total",
		Help:      "Transition rows emptied by constraints and resolved by fallback",
	})

	m.matrixFallbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "matrix_fallbacks_total",
		Help:      "Position lookups that fell back to the first bin",
	})

	m.modelSwaps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_swaps_total",
		Help:      "Active trajectory model replacements",
	})

	m.segmentsClassified = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "segments_classified_total",
		Help:      "Corpus segments sent to the classifier",
	})

	m.classifierRecovered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "classifier_recovered_total",
		Help:      "Classifier failures replaced by the filler label",
	})

	m.labelsCoerced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "labels_coerced_total",
		Help:      "Classifier answers outside the alphabet coerced to the default label",
	})

	m.miningDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mining_duration_milliseconds",
		Help:      "Duration of archetype mining runs in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
	})

	m.collaboratorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "collaborator_latency_milliseconds",
		Help:      "Latency of external collaborator calls in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"operation"})
}

// RecordRun counts a finished run by status.
func (m *Manager) RecordRun(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

// RecordStep counts a committed step.
func (m *Manager) RecordStep(mode string, verified bool) {
	if m == nil {
		return
	}
	m.stepsCommitted.WithLabelValues(mode).Inc()
	if !verified {
		m.unverifiedCommits.Inc()
	}
}

// RecordAttempt counts one generate/verify attempt; retry marks attempts after the first.
func (m *Manager) RecordAttempt(retry bool) {
	if m == nil {
		return
	}
	m.attemptsTotal.Inc()
	if retry {
		m.retriesTotal.Inc()
	}
}

// RecordAttemptError counts a recovered collaborator error at stage (generate, verify, evaluate).
func (m *Manager) RecordAttemptError(stage string) {
	if m == nil {
		return
	}
	m.attemptErrors.WithLabelValues(stage).Inc()
}

// RecordRowFallback counts a constraint-emptied row.
func (m *Manager) RecordRowFallback() {
	if m == nil {
		return
	}
	m.rowFallbacks.Inc()
}

// RecordMatrixFallback counts a malformed position lookup.
func (m *Manager) RecordMatrixFallback() {
	if m == nil {
		return
	}
	m.matrixFallbacks.Inc()
}

// RecordModelSwap counts an active model replacement.
func (m *Manager) RecordModelSwap() {
	if m == nil {
		return
	}
	m.modelSwaps.Inc()
}

// RecordSegment counts a classified segment and its recovery outcome.
func (m *Manager) RecordSegment(recovered, coerced bool) {
	if m == nil {
		return
	}
	m.segmentsClassified.Inc()
	if recovered {
		m.classifierRecovered.Inc()
	}
	if coerced {
		m.labelsCoerced.Inc()
	}
}

// ObserveMining records the duration of a mining run.
func (m *Manager) ObserveMining(d time.Duration) {
	if m == nil {
		return
	}
	m.miningDuration.Observe(float64(d.Milliseconds()))
}

// ObserveCollaborator records the latency of one collaborator call.
func (m *Manager) ObserveCollaborator(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.collaboratorLatency.WithLabelValues(operation).Observe(float64(d.Milliseconds()))
}

// Registry returns the registry metrics live on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

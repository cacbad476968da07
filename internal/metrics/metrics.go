// Package metrics exposes Prometheus metrics for the bulk record processor.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/bulk-record-processor/internal/apperr"
	"github.com/example/bulk-record-processor/internal/reconcile"
)

// Message outcomes recorded by ObserveMessage.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeInvalid   = "invalid"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for the row latency histogram.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry sets the registry metrics are registered on and served from.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	messages       *prometheus.CounterVec
	rows           *prometheus.CounterVec
	rowDuration    prometheus.Histogram
	groupActions   *prometheus.CounterVec
	batchRows      prometheus.Histogram
	batchesRunning prometheus.Gauge
}

// NewManager creates a Manager on a private registry unless one is supplied.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bulk_record_processor",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.messages = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "messages_total",
		Help:      "Inbound upload events by terminal outcome",
	}, []string{"outcome"})

	m.rows = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "rows_total",
		Help:      "Reconciled rows by result and error kind",
	}, []string{"result", "kind"})

	m.rowDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "row_duration_seconds",
		Help:      "Time spent reconciling a single row",
		Buckets:   m.histogramBuckets,
	})

	m.groupActions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "group_actions_total",
		Help:      "Sub-record actions by group and action",
	}, []string{"group", "action"})

	m.batchRows = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "batch_rows",
		Help:      "Number of rows per processed workbook",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	m.batchesRunning = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "batches_in_progress",
		Help:      "Workbooks currently being processed",
	})
}

// ObserveRow records one row outcome.
func (m *Manager) ObserveRow(outcome reconcile.Outcome, elapsed time.Duration) {
	result := "succeeded"
	if !outcome.OK() {
		result = "failed"
	}
	m.rows.WithLabelValues(result, apperr.Kind(outcome.Err)).Inc()
	m.rowDuration.Observe(elapsed.Seconds())
	for _, a := range outcome.Actions {
		m.groupActions.WithLabelValues(groupKind(a.Group), string(a.Action)).Inc()
	}
}

// ObserveMessage records the terminal outcome of one inbound event.
func (m *Manager) ObserveMessage(outcome string) {
	m.messages.WithLabelValues(outcome).Inc()
}

// BatchStarted marks a workbook as in progress and records its size. The
// returned func marks it done.
func (m *Manager) BatchStarted(rows int) func() {
	m.batchRows.Observe(float64(rows))
	m.batchesRunning.Inc()
	return m.batchesRunning.Dec
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// groupKind drops the attribute index so labels stay bounded.
func groupKind(name string) string {
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

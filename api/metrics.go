package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/points-engine/generic"
)

// =============================================================================
// METRICS - Prometheus instrumentation of Ledger operations
// =============================================================================

const (
	opRecord  = "record"
	opCorrect = "correct"
	opSpend   = "spend"
	opBalance = "balance"
	opReset   = "reset"

	resultSuccess = "success"
	resultError   = "error"
)

// Metrics holds the server's collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	earned     prometheus.Counter
	spent      prometheus.Counter
	corrected  prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "points_operations_total",
			Help: "Ledger operations by operation and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "points_operation_duration_seconds",
			Help:    "Ledger operation latency in seconds, lock wait included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		earned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "points_earned_total",
			Help: "Points recorded as earned lots.",
		}),
		spent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "points_spent_total",
			Help: "Points consumed by spends.",
		}),
		corrected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "points_corrected_total",
			Help: "Points removed by payer corrections.",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		m.operations,
		m.durations,
		m.earned,
		m.spent,
		m.corrected,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe records one operation outcome.
func (m *Metrics) Observe(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.durations.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// ObservePoints counts points moved by a successful operation.
func (m *Metrics) ObservePoints(operation string, points generic.Points) {
	if m == nil || points == 0 {
		return
	}
	if points < 0 {
		points = -points
	}
	switch operation {
	case opRecord:
		m.earned.Add(float64(points))
	case opSpend:
		m.spent.Add(float64(points))
	case opCorrect:
		m.corrected.Add(float64(points))
	}
}

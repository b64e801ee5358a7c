// Package metrics exposes Prometheus instruments for the ledger.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/udhaari/khata/internal/models"
)

// Metrics groups the ledger instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	mutations     *prometheus.CounterVec
	undo          *prometheus.CounterVec
	drift         prometheus.Counter
	subscriptions prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "khata",
			Name:      "ledger_mutations_total",
			Help:      "Ledger mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		undo: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "khata",
			Name:      "undo_requests_total",
			Help:      "Undo requests by outcome.",
		}, []string{"outcome"}),
		drift: f.NewCounter(prometheus.CounterOpts{
			Namespace: "khata",
			Name:      "reconcile_drift_total",
			Help:      "Customers whose cached balance differed from the ledger replay.",
		}),
		subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "khata",
			Name:      "live_subscriptions",
			Help:      "Open live-update subscriptions.",
		}),
	}
}

// Outcome buckets an operation error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrUndoExpired):
		return "expired"
	case errors.Is(err, models.ErrUndoUnavailable):
		return "unavailable"
	case errors.Is(err, models.ErrWriteFailure):
		return "write_failure"
	default:
		return "error"
	}
}

func (m *Metrics) Mutation(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, Outcome(err)).Inc()
}

func (m *Metrics) Undo(err error) {
	if m == nil {
		return
	}
	m.undo.WithLabelValues(Outcome(err)).Inc()
}

func (m *Metrics) Drift() {
	if m == nil {
		return
	}
	m.drift.Inc()
}

func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

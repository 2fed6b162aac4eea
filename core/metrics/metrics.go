package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/registry"
	"github.com/dmitrymomot/extsession/core/session"
)

// Metrics holds the session collectors of one registry.
type Metrics struct {
	gatherer prometheus.Gatherer

	events             *prometheus.CounterVec
	operations         *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	sweptSessions      *prometheus.CounterVec
	rejectedAdmissions prometheus.Counter
}

// New registers the session collectors under namespace. A nil registry uses a
// fresh one, which keeps tests independent of the global default.
func New(reg *prometheus.Registry, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "The total number of session lifecycle events by kind",
		}, []string{"kind"}),
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_repository_operations_total",
			Help:      "The total number of session repository operations",
		}, []string{"operation", "status"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_repository_operation_duration_seconds",
			Help:      "The session repository operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		sweptSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_swept_total",
			Help:      "The total number of expired sessions removed by sweeps",
		}, []string{"backend"}),
		rejectedAdmissions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_admissions_rejected_total",
			Help:      "The total number of logins rejected by the concurrent session limit",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// EventHandler counts delivered session events. Subscribe it to an event.Bus.
func (m *Metrics) EventHandler() event.Handler {
	return event.HandlerFunc(func(_ context.Context, evt event.SessionEvent) error {
		m.events.WithLabelValues(evt.Kind.String()).Inc()
		return nil
	})
}

// ObserveSweep records the result of one sweep of backend.
func (m *Metrics) ObserveSweep(backend string, removed int) {
	m.sweptSessions.WithLabelValues(backend).Add(float64(removed))
}

// ObserveAdmission records a rejected login when err is a concurrency limit denial.
func (m *Metrics) ObserveAdmission(err error) {
	if errors.Is(err, registry.ErrConcurrentSessionLimitExceeded) {
		m.rejectedAdmissions.Inc()
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	m.operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.operations.WithLabelValues(op, status(err)).Inc()
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, session.ErrNotFound):
		return "not_found"
	case errors.Is(err, session.ErrExpired):
		return "expired"
	case errors.Is(err, session.ErrRepositoryUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

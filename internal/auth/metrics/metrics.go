// Package metrics holds the Prometheus collectors for the session service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics contains the custom collectors. A nil *Metrics is valid and
// records nothing, so services can run without a registry in tests.
type Metrics struct {
	Operations   *prometheus.CounterVec
	Lockouts     prometheus.Counter
	Mail         *prometheus.CounterVec
	PasswordHash prometheus.Histogram

	registry *prometheus.Registry
}

// New creates a private registry with the Go and process collectors plus the
// session metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := NewMetrics(registry)
	m.registry = registry
	return m
}

// NewMetrics creates and registers the session metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionauth_operations_total",
				Help: "Total number of session operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Lockouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessionauth_lockouts_total",
				Help: "Total number of accounts locked after repeated failed logins",
			},
		),
		Mail: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionauth_mail_total",
				Help: "Total number of outbound emails by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		PasswordHash: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sessionauth_password_hash_seconds",
				Help:    "Time spent hashing or verifying passwords",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
	}

	reg.MustRegister(m.Operations)
	reg.MustRegister(m.Lockouts)
	reg.MustRegister(m.Mail)
	reg.MustRegister(m.PasswordHash)

	return m
}

// Handler serves the registry in the Prometheus exposition format. It is
// only usable on a Metrics built by New.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Operation counts one session operation.
func (m *Metrics) Operation(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

// Lockout counts an account transitioning to locked.
func (m *Metrics) Lockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// MailSent counts one outbound email attempt.
func (m *Metrics) MailSent(kind string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.Mail.WithLabelValues(kind, outcome).Inc()
}

// ObserveHash records how long a password hash or verification took.
func (m *Metrics) ObserveHash(start time.Time) {
	if m == nil {
		return
	}
	m.PasswordHash.Observe(time.Since(start).Seconds())
}

// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "webmention"

// Ingest outcomes used as the "outcome" label.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeRejected  = "rejected"
	OutcomeForbidden = "forbidden"
	OutcomeError     = "error"
)

// Metrics groups the receiver's collectors.
type Metrics struct {
	Ingest            *prometheus.CounterVec
	MigrationsApplied prometheus.Counter
	RateLimited       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ingest: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "ingest_total", Help: "Webmention submissions by outcome."},
			[]string{"outcome"},
		),
		MigrationsApplied: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "migrations_applied_total", Help: "Schema migrations applied since start."},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "rate_limited_total", Help: "Requests rejected by the rate limiter."},
			[]string{"route"},
		),
	}

	reg.MustRegister(m.Ingest)
	reg.MustRegister(m.MigrationsApplied)
	reg.MustRegister(m.RateLimited)

	return m
}

// NewUnregistered returns collectors that are not exported anywhere.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

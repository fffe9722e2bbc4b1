package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the binding engine
type Metrics struct {
	BindsTotal       *prometheus.CounterVec
	ValidationsTotal *prometheus.CounterVec
	UnbindsTotal     *prometheus.CounterVec
	SuspensionsTotal prometheus.Counter
	TokensIssued     prometheus.Counter
	TokensRevoked    prometheus.Counter
	BindDuration     prometheus.Histogram
}

// NewMetrics creates and registers the engine collectors on the given
// registerer. Pass prometheus.NewRegistry() in tests to avoid collisions
// with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BindsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsbind",
			Name:      "binds_total",
			Help:      "Bind attempts by result",
		}, []string{"result"}),
		ValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsbind",
			Name:      "validations_total",
			Help:      "Validation attempts by result",
		}, []string{"result"}),
		UnbindsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsbind",
			Name:      "unbinds_total",
			Help:      "Unbind attempts by result",
		}, []string{"result"}),
		SuspensionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsbind",
			Name:      "suspensions_total",
			Help:      "Bindings suspended after exceeding the failure ceiling",
		}),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsbind",
			Name:      "tokens_issued_total",
			Help:      "License tokens issued",
		}),
		TokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsbind",
			Name:      "tokens_revoked_total",
			Help:      "License tokens revoked",
		}),
		BindDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wsbind",
			Name:      "bind_duration_seconds",
			Help:      "End-to-end bind latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.BindsTotal,
		m.ValidationsTotal,
		m.UnbindsTotal,
		m.SuspensionsTotal,
		m.TokensIssued,
		m.TokensRevoked,
		m.BindDuration,
	)
	return m
}

// Package metrics provides Prometheus instrumentation for review runs and
// the aggregation of accepted analyses into role × type counts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for a run.
type Metrics struct {
	RemoteCallsTotal    *prometheus.CounterVec
	RemoteCallDuration  *prometheus.HistogramVec
	RateLimitRemaining  prometheus.Gauge
	RateLimitWaitsTotal prometheus.Counter
	CacheLookupsTotal   *prometheus.CounterVec
	ContributionsTotal  *prometheus.CounterVec
	SkipsTotal          *prometheus.CounterVec
	PhaseGauge          *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RemoteCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfreview_remote_calls_total",
				Help: "Total remote platform calls by kind and status.",
			},
			[]string{"kind", "status"},
		),
		RemoteCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "perfreview_remote_call_duration_seconds",
				Help:    "Remote platform call duration by kind.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		RateLimitRemaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "perfreview_rate_limit_remaining",
				Help: "Remaining platform quota as last reported.",
			},
		),
		RateLimitWaitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "perfreview_rate_limit_waits_total",
				Help: "Number of times a caller was suspended until quota reset.",
			},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfreview_cache_lookups_total",
				Help: "Cache lookups by cache and result.",
			},
			[]string{"cache", "result"},
		),
		ContributionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfreview_contributions_total",
				Help: "Accepted contributions by role and type.",
			},
			[]string{"role", "type"},
		),
		SkipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "perfreview_skips_total",
				Help: "Skipped contributions by phase and cause.",
			},
			[]string{"phase", "cause"},
		),
		PhaseGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "perfreview_phase",
				Help: "1 for the phase the run is currently in.",
			},
			[]string{"phase"},
		),
		registry: reg,
	}

	reg.MustRegister(m.RemoteCallsTotal)
	reg.MustRegister(m.RemoteCallDuration)
	reg.MustRegister(m.RateLimitRemaining)
	reg.MustRegister(m.RateLimitWaitsTotal)
	reg.MustRegister(m.CacheLookupsTotal)
	reg.MustRegister(m.ContributionsTotal)
	reg.MustRegister(m.SkipsTotal)
	reg.MustRegister(m.PhaseGauge)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRemoteCall counts a remote call and its duration.
func (m *Metrics) RecordRemoteCall(kind, status string, seconds float64) {
	m.RemoteCallsTotal.WithLabelValues(kind, status).Inc()
	m.RemoteCallDuration.WithLabelValues(kind).Observe(seconds)
}

// SetRateLimitRemaining records the last reported quota.
func (m *Metrics) SetRateLimitRemaining(n int) {
	m.RateLimitRemaining.Set(float64(n))
}

// RecordRateLimitWait counts a suspension until quota reset.
func (m *Metrics) RecordRateLimitWait() {
	m.RateLimitWaitsTotal.Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordSkip counts a skipped contribution.
func (m *Metrics) RecordSkip(phase, cause string) {
	m.SkipsTotal.WithLabelValues(phase, cause).Inc()
}

// SetPhase marks phase as current and clears the others.
func (m *Metrics) SetPhase(phase string, all []string) {
	for _, p := range all {
		m.PhaseGauge.WithLabelValues(p).Set(0)
	}
	m.PhaseGauge.WithLabelValues(phase).Set(1)
}

// PublishCounts exports an aggregated tally.
func (m *Metrics) PublishCounts(c Counts) {
	for role, byType := range c.ByRoleType {
		for typ, n := range byType {
			m.ContributionsTotal.WithLabelValues(string(role), string(typ)).Add(float64(n))
		}
	}
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics QA workflow collectors
type Metrics struct {
	registry *prometheus.Registry

	Transitions     *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	Conflicts       *prometheus.CounterVec
	EffectFailures  *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	CompletenessRun prometheus.Histogram
}

// New registers collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siteqa",
			Name:      "transitions_total",
			Help:      "Accepted workflow events by entity and event.",
		}, []string{"entity", "event"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siteqa",
			Name:      "rejections_total",
			Help:      "Rejected workflow events by entity, kind and code.",
		}, []string{"entity", "kind", "code"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siteqa",
			Name:      "version_conflicts_total",
			Help:      "Writes refused because the entity changed underneath.",
		}, []string{"entity"}),
		EffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siteqa",
			Name:      "effect_failures_total",
			Help:      "Side effects (notifications) that failed after a transition.",
		}, []string{"effect"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "siteqa",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		CompletenessRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "siteqa",
			Name:      "completeness_check_seconds",
			Help:      "Time to load signals and score a claim.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5},
		}),
	}
	m.registry.MustRegister(
		m.Transitions,
		m.Rejections,
		m.Conflicts,
		m.EffectFailures,
		m.HTTPDuration,
		m.CompletenessRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Accepted count an accepted event; nil-safe
func (m *Metrics) Accepted(entity, event string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(entity, event).Inc()
}

// Rejected count a rejection; nil-safe
func (m *Metrics) Rejected(entity, kind, code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(entity, kind, code).Inc()
}

// Conflict count a version conflict; nil-safe
func (m *Metrics) Conflict(entity string) {
	if m == nil {
		return
	}
	m.Conflicts.WithLabelValues(entity).Inc()
}

// EffectFailed count a failed side effect; nil-safe
func (m *Metrics) EffectFailed(effect string) {
	if m == nil {
		return
	}
	m.EffectFailures.WithLabelValues(effect).Inc()
}

package dispatch

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dispatch-gateway/dispatch/domain"
)

const (
	OutcomeResolved        = "resolved"
	OutcomeNoRoute         = "no_route"
	OutcomeResolverError   = "resolver_error"
	OutcomeMiddlewareError = "middleware_error"
)

// Metrics conta os resultados de Resolve e mede sua duração.
type Metrics struct {
	resolutions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewMetrics cria e registra as métricas em reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dispatch",
			Name:      "resolutions_total",
			Help:      "Resolve calls by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving a route and running its middleware.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.resolutions, m.duration)
	}
	return m
}

func (m *Metrics) observe(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func outcomeOf(rt *domain.Route, err error) string {
	var rerr *domain.ResolutionError
	switch {
	case errors.As(err, &rerr):
		return OutcomeResolverError
	case err != nil:
		return OutcomeMiddlewareError
	case rt == nil:
		return OutcomeNoRoute
	default:
		return OutcomeResolved
	}
}

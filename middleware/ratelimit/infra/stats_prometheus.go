package infra

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"dispatch-gateway/middleware/ratelimit/domain"
)

// PrometheusStatsStore expõe as decisões como contador
// ratelimit_decisions_total{decision,route}. Não rotula por key.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

const (
	DecisionAllowed  = "allowed"
	DecisionDenied   = "denied"
	DecisionFailOpen = "fail_open"
)

func NewPrometheusStatsStore(reg prometheus.Registerer) *PrometheusStatsStore {
	s := &PrometheusStatsStore{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Decisões do rate limit por rota.",
		}, []string{"decision", "route"}),
	}
	if reg != nil {
		reg.MustRegister(s.decisions)
	}
	return s
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	decision := DecisionDenied
	switch {
	case ev.FailOpen:
		decision = DecisionFailOpen
	case ev.Allowed:
		decision = DecisionAllowed
	}
	s.decisions.WithLabelValues(decision, routeLabel(ev)).Inc()
	return nil
}

// Collector devolve o contador, para registro manual ou testes.
func (s *PrometheusStatsStore) Collector() *prometheus.CounterVec { return s.decisions }

// MultiStats repassa o evento para várias stores e devolve o primeiro erro.
type MultiStats []domain.StatsStore

func (m MultiStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package infra

import (
	"context"
	"maps"
	"sync"

	"dispatch-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
	// FailOpen conta as liberações feitas com a store fora do ar.
	FailOpen int64
}

func (c *Counters) add(ev domain.StatsEvent) {
	switch {
	case ev.FailOpen:
		c.FailOpen++
		c.Allowed++
	case ev.Allowed:
		c.Allowed++
	default:
		c.Denied++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[domain.Key]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[domain.Key]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)

	route := routeLabel(ev)
	c := s.byRoute[route]
	c.add(ev)
	s.byRoute[route] = c

	if s.trackKeys && ev.Key != "" {
		k := s.byKey[ev.Key]
		k.add(ev)
		s.byKey[ev.Key] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByRoute é indexado por "METHOD /rota".
func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[domain.Key]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}

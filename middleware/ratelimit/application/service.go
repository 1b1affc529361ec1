package application

import (
	"time"

	"dispatch-gateway/middleware/ratelimit/domain"
)

// Service é o limite local, por instância (token bucket).
//
// Serve de primeira barreira antes da janela compartilhada: barra rajadas sem
// gastar uma ida ao redis. Não sabe nada sobre HTTP, apenas retorna uma decisão.
type Service struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s Service) Decide(key domain.Key) domain.Decision {
	allowed := domain.Decision{Allowed: true, Exceeded: -1, Remaining: -1}
	if s.Store == nil {
		return allowed
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		return allowed
	}
	return domain.Decision{Allowed: false, Exceeded: -1, Remaining: 0, RetryAfter: s.RetryAfter}
}

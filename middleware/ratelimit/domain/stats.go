package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão do rate limit.
//
// Route é o prefixo da rota resolvida; cuidado com cardinalidade de Key.
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Route  string

	// FailOpen indica que a store falhou e a requisição passou mesmo assim.
	FailOpen bool

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do rate limit.
//
// Implementações: memória, redis, prometheus.
// O middleware trata erro como best-effort (não derruba a requisição).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

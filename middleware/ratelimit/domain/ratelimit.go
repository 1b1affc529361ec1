package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Key é a identidade limitada (IP, API key, usuário).
type Key string

// RateLimit limita Amount requisições dentro da janela deslizante Precision.
type RateLimit struct {
	Precision time.Duration
	Amount    int64
}

// WindowOp é a operação de janela deslizante para uma chave, executada pela store
// como uma unidade:
//
//  1. remove entradas com score <= Cutoff
//  2. lê a cardinalidade c
//  3. se Threshold > c, insere Now (atômico em relação à leitura)
//  4. renova a expiração da chave para TTL
//
// O resultado é c+1: a contagem na janela incluindo a requisição atual.
type WindowOp struct {
	Key       string
	Cutoff    int64 // ms
	Now       int64 // ms
	Threshold int64
	TTL       time.Duration
}

// WindowStore executa um lote de WindowOp numa única ida à store compartilhada.
// Devolve uma contagem por operação, na mesma ordem.
type WindowStore interface {
	Apply(ctx context.Context, ops []WindowOp) ([]int64, error)
}

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Observação: usado pelo limite local (token bucket, golang.org/x/time/rate).
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP, API key, usuário).
// A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// Counts traz a contagem por limite, na ordem dos limites avaliados.
	Counts []int64
	// Exceeded é o índice do primeiro limite estourado, ou -1.
	Exceeded int
	// Remaining é quanto ainda cabe no limite mais apertado.
	Remaining int64
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

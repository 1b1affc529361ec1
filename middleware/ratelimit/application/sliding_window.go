package application

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dispatch-gateway/middleware/ratelimit/domain"
)

// SlidingWindow conta requisições por identidade em janelas deslizantes numa
// store compartilhada.
//
// Ele só reporta contagens; quem compara com Amount é Decide (ou quem chama).
type SlidingWindow struct {
	Store domain.WindowStore
	// Now permite fixar o relógio em testes. Padrão: time.Now.
	Now func() time.Time
}

// IncrementRequest registra uma requisição de id em todos os limites, numa única
// ida à store, e devolve a contagem de cada limite na mesma ordem.
//
// A contagem inclui a requisição atual: acima de Amount significa que ela não
// foi registrada.
func (s SlidingWindow) IncrementRequest(ctx context.Context, id domain.Key, limits []domain.RateLimit) ([]int64, error) {
	if len(limits) == 0 {
		return nil, nil
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ts := now().UnixMilli()

	ops := make([]domain.WindowOp, 0, len(limits))
	for _, l := range limits {
		precision := l.Precision.Milliseconds()
		ops = append(ops, domain.WindowOp{
			Key:       WindowKey(id, l.Precision),
			Cutoff:    ts - precision,
			Now:       ts,
			Threshold: l.Amount,
			TTL:       expiry(l.Precision),
		})
	}

	counts, err := s.Store.Apply(ctx, ops)
	if err != nil {
		return nil, &domain.StoreError{Op: "increment", Err: err}
	}
	if len(counts) != len(ops) {
		return nil, &domain.StoreError{Op: "increment", Err: fmt.Errorf("expected %d counts, got %d", len(ops), len(counts))}
	}
	return counts, nil
}

// Decide chama IncrementRequest e compara cada contagem com o seu limite.
// Sem store ou sem limites, tudo passa.
func (s SlidingWindow) Decide(ctx context.Context, id domain.Key, limits []domain.RateLimit) (domain.Decision, error) {
	dec := domain.Decision{Allowed: true, Exceeded: -1, Remaining: -1}
	if s.Store == nil || len(limits) == 0 {
		return dec, nil
	}

	counts, err := s.IncrementRequest(ctx, id, limits)
	if err != nil {
		return dec, err
	}
	dec.Counts = counts

	for i, l := range limits {
		c := counts[i]
		rem := max(l.Amount-c, 0)
		if dec.Remaining < 0 || rem < dec.Remaining {
			dec.Remaining = rem
		}
		if c > l.Amount && dec.Allowed {
			dec.Allowed = false
			dec.Exceeded = i
			dec.RetryAfter = l.Precision
		}
	}
	return dec, nil
}

// WindowKey é a chave da janela de id para a precisão p: "<id>:<ms>".
func WindowKey(id domain.Key, p time.Duration) string {
	return string(id) + ":" + strconv.FormatInt(p.Milliseconds(), 10)
}

// expiry é um pouco mais que a janela, arredondado para segundos.
func expiry(p time.Duration) time.Duration {
	return (p + time.Millisecond + time.Second - 1).Truncate(time.Second)
}

package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"dispatch-gateway/middleware/ratelimit/domain"
)

// MemoryWindowStore implementa domain.WindowStore em memória, com a mesma
// semântica da store redis. Útil para testes e para uma única instância.
//
// Não é compartilhada entre processos.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	scores   []int64 // ordenado
	expireAt time.Time
}

type MemoryWindowOption func(*MemoryWindowStore)

// WithWindowClock troca o relógio usado para expirar chaves.
func WithWindowClock(now func() time.Time) MemoryWindowOption {
	return func(s *MemoryWindowStore) { s.now = now }
}

func NewMemoryWindowStore(opts ...MemoryWindowOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply executa o lote inteiro sob o mesmo lock.
func (s *MemoryWindowStore) Apply(_ context.Context, ops []domain.WindowOp) ([]int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make([]int64, 0, len(ops))
	for _, op := range ops {
		w := s.windows[op.Key]
		if w != nil && !w.expireAt.IsZero() && !now.Before(w.expireAt) {
			w = nil
		}
		if w == nil {
			w = &window{}
			s.windows[op.Key] = w
		}

		// ZREMRANGEBYSCORE key 0 cutoff
		cut := sort.Search(len(w.scores), func(i int) bool { return w.scores[i] > op.Cutoff })
		w.scores = w.scores[cut:]

		c := int64(len(w.scores))
		if op.Threshold > c {
			i := sort.Search(len(w.scores), func(i int) bool { return w.scores[i] > op.Now })
			w.scores = append(w.scores, 0)
			copy(w.scores[i+1:], w.scores[i:])
			w.scores[i] = op.Now
		}
		if op.TTL > 0 {
			w.expireAt = now.Add(op.TTL)
		}
		counts = append(counts, c+1)
	}
	return counts, nil
}

// Cardinality devolve quantas entradas a chave tem agora (sem despejar nada).
func (s *MemoryWindowStore) Cardinality(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.windows[key]
	if w == nil || (!w.expireAt.IsZero() && !s.now().Before(w.expireAt)) {
		return 0
	}
	return int64(len(w.scores))
}

// Cleanup remove chaves expiradas.
func (s *MemoryWindowStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, w := range s.windows {
		if !w.expireAt.IsZero() && !now.Before(w.expireAt) {
			delete(s.windows, k)
		}
	}
}

// StartJanitor limpa chaves expiradas a cada every. Pare cancelando o contexto.
func (s *MemoryWindowStore) StartJanitor(ctx DoneContext, every time.Duration) {
	janitor(ctx, every, s.Cleanup)
}

package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dispatch-gateway/middleware/ratelimit/domain"
)

// BucketStore guarda um token bucket (x/time/rate) por chave, para o limite
// local de cada instância. Chaves sem uso por idleTTL são descartadas.
type BucketStore struct {
	mu      sync.Mutex
	buckets map[domain.Key]*bucket
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type BucketOption func(*BucketStore)

func WithIdleTTL(d time.Duration) BucketOption {
	return func(s *BucketStore) { s.idleTTL = d }
}

func WithBucketClock(now func() time.Time) BucketOption {
	return func(s *BucketStore) { s.now = now }
}

// NewBucketStore cria a store com rps tokens por segundo e rajada burst.
// burst < 1 vira 1.
func NewBucketStore(rps float64, burst int, opts ...BucketOption) *BucketStore {
	s := &BucketStore{
		buckets: make(map[domain.Key]*bucket),
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
		idleTTL: 15 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implementa domain.LimiterStore.
func (s *BucketStore) Get(key domain.Key) domain.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[key]; ok {
		b.lastSeen = now
		return b.lim
	}
	b := &bucket{lim: rate.NewLimiter(s.rps, s.burst), lastSeen: now}
	s.buckets[key] = b
	return b.lim
}

func (s *BucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Cleanup descarta buckets ociosos há mais de idleTTL.
func (s *BucketStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, k)
		}
	}
}

// StartJanitor roda Cleanup a cada every até o contexto encerrar.
func (s *BucketStore) StartJanitor(ctx DoneContext, every time.Duration) {
	janitor(ctx, every, s.Cleanup)
}

// DoneContext é o mínimo de context.Context que os janitors precisam.
type DoneContext interface {
	Done() <-chan struct{}
}

func janitor(ctx DoneContext, every time.Duration, fn func()) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				fn()
			}
		}
	}()
}

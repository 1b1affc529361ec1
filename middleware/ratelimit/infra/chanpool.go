package infra

import (
	"context"
	"sync"

	"dispatch-gateway/middleware/ratelimit/domain"
)

// ChanPool é um semáforo sobre channel bufferizado.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

// NewChanPool cria o pool com max vagas (mínimo 1).
func NewChanPool(max int) *ChanPool {
	if max < 1 {
		max = 1
	}
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	// ctx já encerrado não disputa vaga com o select abaixo
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) InUse() int { return len(p.sem) }
func (p *ChanPool) Cap() int   { return cap(p.sem) }

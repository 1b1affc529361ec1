package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingPool struct{}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

func (p *blockingPool) InUse() int { return 1 }
func (p *blockingPool) Cap() int   { return 1 }

type immediatePool struct {
	acquired int
}

func (p *immediatePool) Acquire(context.Context) (func(), bool) {
	p.acquired++
	return func() {}, true
}

func (p *immediatePool) InUse() int { return 0 }
func (p *immediatePool) Cap() int   { return 1 }

func TestConcurrencyService_Acquire_AllowsWhenNoPool(t *testing.T) {
	svc := ConcurrencyService{}
	release, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestConcurrencyService_Acquire_UsesTimeout(t *testing.T) {
	svc := ConcurrencyService{Pool: &blockingPool{}, AcquireTimeout: 10 * time.Millisecond}

	_, err := svc.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoSlot)
}

func TestConcurrencyService_Acquire_ReportsCallerCancellation(t *testing.T) {
	svc := ConcurrencyService{Pool: &blockingPool{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrencyService_Acquire_NoTimeoutDelegatesToPool(t *testing.T) {
	pool := &immediatePool{}
	svc := ConcurrencyService{Pool: pool}

	_, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pool.acquired)
}

package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"dispatch-gateway/middleware/ratelimit/domain"
)

type fakeLimiter struct {
	allow bool
}

func (f fakeLimiter) Allow() bool { return f.allow }

type fakeStore struct {
	lim domain.Limiter
}

func (s fakeStore) Get(domain.Key) domain.Limiter { return s.lim }

func TestService_Decide_AllowsWhenNoStore(t *testing.T) {
	dec := Service{}.Decide("k")
	assert.True(t, dec.Allowed)
	assert.Zero(t, dec.RetryAfter)
	assert.Equal(t, -1, dec.Exceeded)
}

func TestService_Decide_AllowsWhenLimiterAllows(t *testing.T) {
	svc := Service{Store: fakeStore{lim: fakeLimiter{allow: true}}, RetryAfter: 5 * time.Second}
	assert.True(t, svc.Decide("k").Allowed)
}

func TestService_Decide_AllowsWhenNoLimiter(t *testing.T) {
	svc := Service{Store: fakeStore{}}
	assert.True(t, svc.Decide("k").Allowed)
}

func TestService_Decide_BlocksWithRetryAfterDefault(t *testing.T) {
	dec := Service{Store: fakeStore{lim: fakeLimiter{allow: false}}}.Decide("k")
	assert.False(t, dec.Allowed)
	assert.Equal(t, 1*time.Second, dec.RetryAfter)
	assert.Equal(t, -1, dec.Exceeded)
}

func TestService_Decide_BlocksWithConfiguredRetryAfter(t *testing.T) {
	svc := Service{Store: fakeStore{lim: fakeLimiter{allow: false}}, RetryAfter: 2500 * time.Millisecond}
	dec := svc.Decide("k")
	assert.False(t, dec.Allowed)
	assert.Equal(t, 2500*time.Millisecond, dec.RetryAfter)
	assert.Equal(t, -1, dec.Exceeded)
}

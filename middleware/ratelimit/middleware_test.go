package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch-gateway/dispatch"
	ddomain "dispatch-gateway/dispatch/domain"
	"dispatch-gateway/dispatch/pipeline"
	"dispatch-gateway/middleware/ratelimit/domain"
	"dispatch-gateway/middleware/ratelimit/infra"
)

type brokenWindows struct{}

func (brokenWindows) Apply(context.Context, []domain.WindowOp) ([]int64, error) {
	return nil, errors.New("connection refused")
}

// chain monta o pipeline rate limit -> contador, como um resolver faria.
func chain(opts Options) (*pipeline.Pipeline, *int) {
	calls := 0
	p := pipeline.New().
		Use(Handler(opts)).
		Use(pipeline.Normal(func(context.Context, *ddomain.Request, ddomain.Response, pipeline.Next) error {
			calls++
			return nil
		}))
	return p, &calls
}

func run(t *testing.T, p *pipeline.Pipeline, remote string) (*httptest.ResponseRecorder, *dispatch.HTTPResponse, error) {
	t.Helper()
	rec := httptest.NewRecorder()
	res := dispatch.NewHTTPResponse(rec)
	err := p.Run(context.Background(), newRequest(remote, nil), res)
	return rec, res, err
}

func fixedNow() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }

func TestHandler_AllowsThenRejectsSameKey(t *testing.T) {
	p, calls := chain(Options{
		Windows:             infra.NewMemoryWindowStore(),
		Limits:              []domain.RateLimit{{Precision: time.Second, Amount: 2}},
		AddRateLimitHeaders: true,
		Now:                 fixedNow,
	})

	rec, res, err := run(t, p, "10.0.0.1:1234")
	require.NoError(t, err)
	assert.False(t, res.Finished())
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	_, _, err = run(t, p, "10.0.0.1:1234")
	require.NoError(t, err)

	rec, res, err = run(t, p, "10.0.0.1:1234")
	require.NoError(t, err)
	assert.True(t, res.Finished())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, 2, *calls, "rejected request must not reach the next handler")
}

func TestHandler_KeysAreIndependent(t *testing.T) {
	p, calls := chain(Options{
		Windows: infra.NewMemoryWindowStore(),
		Limits:  []domain.RateLimit{{Precision: time.Second, Amount: 1}},
		Now:     fixedNow,
	})

	for _, remote := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		rec, _, err := run(t, p, remote)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, *calls)
}

func TestHandler_ScopesSeparateCounters(t *testing.T) {
	store := infra.NewMemoryWindowStore()
	limits := []domain.RateLimit{{Precision: time.Second, Amount: 1}}
	a, _ := chain(Options{Windows: store, Limits: limits, Scope: "a", Now: fixedNow})
	b, _ := chain(Options{Windows: store, Limits: limits, Scope: "b", Now: fixedNow})

	_, res, _ := run(t, a, "10.0.0.1:1")
	assert.False(t, res.Finished())
	_, res, _ = run(t, b, "10.0.0.1:1")
	assert.False(t, res.Finished())

	assert.Equal(t, int64(1), store.Cardinality("a:10.0.0.1:1000"))
}

func TestHandler_RetryAfterUsesExceededWindow(t *testing.T) {
	p, _ := chain(Options{
		Windows: infra.NewMemoryWindowStore(),
		Limits: []domain.RateLimit{
			{Precision: time.Second, Amount: 10},
			{Precision: 90 * time.Second, Amount: 1},
		},
		Now: fixedNow,
	})

	_, _, _ = run(t, p, "10.0.0.1:1")
	rec, _, _ := run(t, p, "10.0.0.1:1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
}

func TestHandler_FailOpenByDefault(t *testing.T) {
	logger, hook := test.NewNullLogger()
	stats := infra.NewMemoryStatsStore()
	p, calls := chain(Options{
		Windows: brokenWindows{},
		Limits:  []domain.RateLimit{{Precision: time.Second, Amount: 1}},
		Stats:   stats,
		Log:     logger,
	})

	rec, res, err := run(t, p, "10.0.0.1:1")
	require.NoError(t, err)
	assert.False(t, res.Finished())
	assert.Equal(t, 1, *calls)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), stats.Total().FailOpen)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestHandler_FailClosedReturnsUnavailable(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p, calls := chain(Options{
		Windows:    brokenWindows{},
		Limits:     []domain.RateLimit{{Precision: time.Second, Amount: 1}},
		FailClosed: true,
		Log:        logger,
	})

	_, _, err := run(t, p, "10.0.0.1:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, ddomain.StatusOf(err))

	var storeErr *domain.StoreError
	assert.ErrorAs(t, err, &storeErr)
	assert.Equal(t, 0, *calls)
}

func TestHandler_LocalBucketRejectsBeforeWindow(t *testing.T) {
	windows := infra.NewMemoryWindowStore()
	p, calls := chain(Options{
		Windows:         windows,
		Limits:          []domain.RateLimit{{Precision: time.Second, Amount: 100}},
		Local:           infra.NewBucketStore(0.02, 1),
		LocalRetryAfter: 2500 * time.Millisecond,
		Now:             fixedNow,
	})

	_, _, _ = run(t, p, "10.0.0.1:1")
	rec, _, _ := run(t, p, "10.0.0.1:1")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.Equal(t, 1, *calls)
	assert.Equal(t, int64(1), windows.Cardinality("10.0.0.1:1000"), "local rejection must not touch the shared window")
}

func TestHandler_LocalRejectionOmitsWindowHeaders(t *testing.T) {
	p, _ := chain(Options{
		Windows:             infra.NewMemoryWindowStore(),
		Limits:              []domain.RateLimit{{Precision: time.Second, Amount: 100}},
		Local:               infra.NewBucketStore(0.02, 1),
		AddRateLimitHeaders: true,
		Now:                 fixedNow,
	})

	rec, _, _ := run(t, p, "10.0.0.1:1")
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))

	rec, _, _ = run(t, p, "10.0.0.1:1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	// o balde local não corresponde a nenhuma janela configurada
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Window"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Remaining"))
}

func TestHandler_RecordsStats(t *testing.T) {
	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))
	p, _ := chain(Options{
		Windows: infra.NewMemoryWindowStore(),
		Limits:  []domain.RateLimit{{Precision: time.Second, Amount: 1}},
		Stats:   stats,
		Scope:   "api",
		Now:     fixedNow,
	})

	_, _, _ = run(t, p, "10.0.0.1:1")
	_, _, _ = run(t, p, "10.0.0.1:1")

	assert.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, stats.ByRoute()["GET api"])
	assert.Equal(t, infra.Counters{Allowed: 1, Denied: 1}, stats.ByKey()["api:10.0.0.1"])
}

func TestHandler_NoLimitsAllowsEverything(t *testing.T) {
	p, calls := chain(Options{})
	for range 3 {
		_, _, err := run(t, p, "10.0.0.1:1")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, *calls)
}

func TestFormatSeconds_RoundsUp(t *testing.T) {
	assert.Equal(t, "1", formatSeconds(0))
	assert.Equal(t, "1", formatSeconds(time.Millisecond))
	assert.Equal(t, "3", formatSeconds(2500*time.Millisecond))
	assert.Equal(t, "60", formatSeconds(time.Minute))
}

package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	ddomain "dispatch-gateway/dispatch/domain"
	"dispatch-gateway/dispatch/pipeline"
	"dispatch-gateway/middleware/ratelimit/application"
	"dispatch-gateway/middleware/ratelimit/domain"
)

type Options struct {
	// Windows é a store da janela deslizante compartilhada. Sem ela, só o
	// limite local vale.
	Windows domain.WindowStore
	Limits  []domain.RateLimit

	// Local é o token bucket por instância, checado antes da janela.
	Local           domain.LimiterStore
	LocalRetryAfter time.Duration

	Stats domain.StatsStore

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool

	// Scope separa os contadores de resolvers diferentes e rotula as estatísticas.
	Scope string

	RejectStatus int
	// FailClosed rejeita com 503 quando a store falha. Padrão: deixa passar.
	FailClosed          bool
	AddRateLimitHeaders bool

	Log log.FieldLogger
	Now func() time.Time
}

// ErrStoreUnavailable é devolvido no modo fail-closed quando a store falha.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Handler devolve o passo de pipeline que aplica o rate limit.
//
// Requisição bloqueada recebe RejectStatus (429) com Retry-After e a resposta é
// finalizada, o que encerra a cadeia. Permitida, a cadeia segue.
func Handler(opts Options) pipeline.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Log == nil {
		opts.Log = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Log.WithField("scope", opts.Scope)

	local := application.Service{Store: opts.Local, RetryAfter: opts.LocalRetryAfter}
	window := application.SlidingWindow{Store: opts.Windows, Now: opts.Now}

	return pipeline.Normal(func(ctx context.Context, req *ddomain.Request, res ddomain.Response, _ pipeline.Next) error {
		key := opts.KeyFn(req)
		id := domain.Key(key)
		if opts.Scope != "" {
			id = domain.Key(opts.Scope + ":" + key)
		}
		ev := domain.StatsEvent{Key: id, Method: req.Method, Route: opts.Scope, At: opts.Now()}

		if dec := local.Decide(id); !dec.Allowed {
			record(ctx, logger, opts.Stats, ev)
			reject(res, opts, dec)
			return nil
		}

		dec, err := window.Decide(ctx, id, opts.Limits)
		if err != nil {
			if opts.FailClosed {
				logger.WithError(err).Error("rate limit store failed, rejecting")
				return ddomain.WithStatus(errors.Join(ErrStoreUnavailable, err), http.StatusServiceUnavailable)
			}
			logger.WithError(err).Warn("rate limit store failed, letting request through")
			ev.Allowed, ev.FailOpen = true, true
			record(ctx, logger, opts.Stats, ev)
			return nil
		}

		ev.Allowed = dec.Allowed
		record(ctx, logger, opts.Stats, ev)

		if !dec.Allowed {
			reject(res, opts, dec)
			return nil
		}
		if tightest := tightestLimit(opts.Limits, dec.Counts); opts.AddRateLimitHeaders && tightest >= 0 {
			if w, ok := res.(http.ResponseWriter); ok {
				setLimitHeaders(w.Header(), opts.Limits[tightest], dec.Remaining)
			}
		}
		return nil
	})
}

func reject(res ddomain.Response, opts Options, dec domain.Decision) {
	if w, ok := res.(http.ResponseWriter); ok {
		h := w.Header()
		if dec.RetryAfter > 0 {
			h.Set("Retry-After", formatSeconds(dec.RetryAfter))
		}
		if opts.AddRateLimitHeaders && dec.Exceeded >= 0 && dec.Exceeded < len(opts.Limits) {
			setLimitHeaders(h, opts.Limits[dec.Exceeded], 0)
		}
		http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
	}
	res.End()
}

func setLimitHeaders(h http.Header, l domain.RateLimit, remaining int64) {
	h.Set("X-RateLimit-Limit", formatInt(l.Amount))
	h.Set("X-RateLimit-Remaining", formatInt(max(remaining, 0)))
	h.Set("X-RateLimit-Window", formatSeconds(l.Precision))
}

// tightestLimit é o índice do limite com menos folga, ou -1.
func tightestLimit(limits []domain.RateLimit, counts []int64) int {
	best, bestRem := -1, int64(0)
	for i, l := range limits {
		if i >= len(counts) {
			break
		}
		rem := l.Amount - counts[i]
		if best < 0 || rem < bestRem {
			best, bestRem = i, rem
		}
	}
	return best
}

func record(ctx context.Context, logger log.FieldLogger, stats domain.StatsStore, ev domain.StatsEvent) {
	if stats == nil {
		return
	}
	if err := stats.Record(ctx, ev); err != nil {
		logger.WithError(err).Debug("failed to record rate limit stats")
	}
}

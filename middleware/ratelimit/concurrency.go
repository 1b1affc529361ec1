package ratelimit

import (
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"dispatch-gateway/middleware/ratelimit/application"
	"dispatch-gateway/middleware/ratelimit/domain"
	"dispatch-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool substitui o semáforo padrão (infra.ChanPool com Max vagas).
	Pool domain.SlotPool
	Log  log.FieldLogger
}

// ConcurrencyMiddleware limita quantas requisições o gateway despacha ao mesmo
// tempo. Sem vaga dentro de AcquireTimeout, responde RejectStatus (503).
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil && opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	if opts.Log == nil {
		opts.Log = log.StandardLogger()
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				if errors.Is(err, application.ErrNoSlot) {
					opts.Log.WithFields(log.Fields{
						"path":   r.URL.Path,
						"in_use": opts.Pool.InUse(),
					}).Warn("no concurrency slot available")
					http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				}
				// cliente desistiu: não há a quem responder
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}

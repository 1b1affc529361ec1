package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"dispatch-gateway/dispatch"
	"dispatch-gateway/dispatch/domain"
	"dispatch-gateway/dispatch/registry"
	"dispatch-gateway/middleware/ratelimit"
	rldomain "dispatch-gateway/middleware/ratelimit/domain"
	"dispatch-gateway/middleware/ratelimit/infra"
)

func main() {
	// Exemplo: usando o dispatch direto no seu webserver (sem proxy).
	// Um resolver callback escolhe a "rota" e o pipeline aplica o rate limit;
	// quem responde é o próprio servidor.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	windows := infra.NewMemoryWindowStore()
	windows.StartJanitor(ctx, time.Minute)
	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))

	resolver := dispatch.New()
	api := registry.Func(func(_ context.Context, _, path string, _ *domain.Request) (any, error) {
		if strings.HasPrefix(path, "/api") {
			return "http://localhost/api", nil
		}
		return nil, nil
	}).WithPriority(10)

	h, err := resolver.AddResolver(api)
	if err != nil {
		log.Fatalf("resolver error: %v", err)
	}
	h.Use(ratelimit.Handler(ratelimit.Options{
		Windows: windows,
		Limits: []rldomain.RateLimit{
			{Precision: time.Second, Amount: 5},
			{Precision: time.Minute, Amount: 100},
		},
		Stats:               stats,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		Scope:               "api",
		AddRateLimitHeaders: true,
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		total := stats.Total()
		log.WithFields(log.Fields{"allowed": total.Allowed, "denied": total.Denied}).Info("stats")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		res := dispatch.NewHTTPResponse(w)
		rt, err := resolver.Resolve(r.Context(), domain.FromHTTP(r), res)
		switch {
		case err != nil:
			dispatch.WriteError(res, err)
		case res.Finished():
		case rt == nil:
			http.NotFound(res, r)
		default:
			res.WriteHeader(http.StatusOK)
			_, _ = res.Write([]byte("ok " + rt.Path + "\n"))
		}
	})

	var handler http.Handler = mux
	handler = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50})(handler)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("example server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"dispatch-gateway/config"
	"dispatch-gateway/dispatch"
	"dispatch-gateway/middleware/ratelimit"
	"dispatch-gateway/middleware/ratelimit/infra"
)

func main() {
	// .env é opcional
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	setupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := setupTracing("dispatch-gateway")
		if err != nil {
			log.Fatalf("tracing error: %v", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var rdb redis.UniversalClient
	if cfg.Redis.Enabled() {
		rdb, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("redis error: %v", err)
		}
		defer func() { _ = rdb.Close() }()
	}

	resolver := dispatch.New(
		dispatch.WithLogger(log.StandardLogger()),
		dispatch.WithMetrics(dispatch.NewMetrics(reg)),
		dispatch.WithTracerProvider(otel.GetTracerProvider()),
	)
	if err := configure(ctx, resolver, cfg, rdb, reg); err != nil {
		log.Fatalf("dispatch config error: %v", err)
	}

	pool := infra.NewChanPool(max(cfg.Concurrency.Max, 1))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "gateway_inflight_requests",
		Help: "Requisições em andamento no gateway.",
	}, func() float64 { return float64(pool.InUse()) }))

	var h http.Handler = newGateway(resolver, log.StandardLogger())
	if cfg.Concurrency.Max > 0 {
		h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Pool:           pool,
			AcquireTimeout: cfg.Concurrency.Timeout,
		})(h)
	}
	if cfg.Tracing.Enabled {
		h = otelhttp.NewHandler(h, "gateway")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	ops := &http.Server{
		Addr:              cfg.OpsAddr,
		Handler:           opsRouter(resolver, reg, rdb),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = ops.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("ops server error: %v", err)
		}
	}()

	log.WithFields(log.Fields{
		"listen":    cfg.ListenAddr,
		"ops":       cfg.OpsAddr,
		"routes":    len(cfg.Routes),
		"resolvers": len(cfg.Resolvers),
	}).Info("gateway listening")
	log.WithFields(log.Fields{
		"enabled":    cfg.Rate.Enabled,
		"limits":     len(cfg.Rate.Limits),
		"local_rps":  cfg.Rate.LocalRPS,
		"key_header": cfg.Rate.KeyHeader,
		"trust_xff":  cfg.Rate.TrustXFF,
		"fail_open":  cfg.Rate.FailOpen,
		"redis":      cfg.Redis.Enabled(),
	}).Info("rate limit")
	log.WithFields(log.Fields{
		"max":     cfg.Concurrency.Max,
		"timeout": cfg.Concurrency.Timeout,
	}).Info("concurrency")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func setupLogging(c config.LogConfig) {
	if lvl, err := log.ParseLevel(c.Level); err == nil {
		log.SetLevel(lvl)
	}
	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	log.SetOutput(os.Stdout)
}

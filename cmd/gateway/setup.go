package main

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"dispatch-gateway/config"
	"dispatch-gateway/dispatch"
	"dispatch-gateway/dispatch/pipeline"
	"dispatch-gateway/dispatch/registry"
	"dispatch-gateway/dispatch/route"
	"dispatch-gateway/middleware/ratelimit"
	"dispatch-gateway/middleware/ratelimit/domain"
	"dispatch-gateway/middleware/ratelimit/infra"
)

// connectRedis cria o cliente e espera o redis responder, com backoff exponencial.
func connectRedis(ctx context.Context, c config.RedisConfig) (redis.UniversalClient, error) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addrs,
		Password: c.Password,
		DB:       c.DB,
	})

	_, err := backoff.Retry(ctx, func() (string, error) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		res, err := rdb.Ping(pingCtx).Result()
		if err != nil {
			log.WithError(err).Warn("redis ping failed, retrying")
		}
		return res, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// configure registra as rotas estáticas e os resolvers declarativos, com o
// rate limit no pipeline de cada um.
func configure(ctx context.Context, r *dispatch.Resolver, cfg *config.Config, rdb redis.UniversalClient, reg prometheus.Registerer) error {
	for _, rt := range cfg.Routes {
		if err := r.Register(rt.Source, rt.Targets...); err != nil {
			return err
		}
	}

	limiter := newLimiter(ctx, cfg, rdb, reg)

	if limiter != nil && len(cfg.Rate.Limits) > 0 {
		r.Registry().Default().Use(limiter("static", config.RateLimits(cfg.Rate.Limits)))
	}

	for i, rc := range cfg.Resolvers {
		m := &registry.Matcher{
			Match:    regexp.MustCompile(rc.Match),
			Method:   rc.Method,
			Priority: rc.Priority,
		}
		if rc.Host != "" {
			m.Host = regexp.MustCompile(rc.Host)
		}
		if rc.Target != "" {
			m.Target = &route.Spec{URL: rc.Target}
		}
		h, err := r.AddResolver(m)
		if err != nil {
			return fmt.Errorf("resolvers[%d]: %w", i, err)
		}
		if limits := cfg.LimitsFor(rc); limiter != nil && len(limits) > 0 {
			h.Use(limiter(rc.Match, limits))
		}
	}
	return nil
}

// newLimiter monta as stores do rate limit e devolve a fábrica de handlers por
// escopo. Devolve nil com o rate limit desligado.
func newLimiter(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient, reg prometheus.Registerer) func(scope string, limits []domain.RateLimit) pipeline.Handler {
	if !cfg.Rate.Enabled {
		return nil
	}

	var windows domain.WindowStore
	if rdb != nil {
		rs := infra.NewRedisWindowStore(rdb, infra.WithWindowPrefix(cfg.Redis.KeyPrefix))
		if err := rs.Load(ctx); err != nil {
			log.WithError(err).Warn("failed to preload rate limit script")
		}
		windows = rs
	} else {
		log.Warn("redis.addrs not set: rate limit windows are local to this instance")
		ms := infra.NewMemoryWindowStore()
		ms.StartJanitor(ctx, time.Minute)
		windows = ms
	}

	stats := infra.MultiStats{infra.NewPrometheusStatsStore(reg)}
	if cfg.Stats.Enabled && rdb != nil {
		stats = append(stats, infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		))
	}

	var local domain.LimiterStore
	if cfg.Rate.LocalRPS > 0 {
		bs := infra.NewBucketStore(cfg.Rate.LocalRPS, cfg.Rate.LocalBurst)
		bs.StartJanitor(ctx, 2*time.Minute)
		local = bs
	}

	return func(scope string, limits []domain.RateLimit) pipeline.Handler {
		return ratelimit.Handler(ratelimit.Options{
			Windows:             windows,
			Limits:              limits,
			Local:               local,
			Stats:               stats,
			KeyHeader:           cfg.Rate.KeyHeader,
			TrustXForwardedFor:  cfg.Rate.TrustXFF,
			Scope:               scope,
			FailClosed:          !cfg.Rate.FailOpen,
			AddRateLimitHeaders: cfg.Rate.AddHeaders,
			Log:                 log.StandardLogger(),
		})
	}
}

func setupTracing(service string) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", service)),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

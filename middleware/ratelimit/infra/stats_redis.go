package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"dispatch-gateway/middleware/ratelimit/domain"
)

// RedisStatsStore agrega as decisões em hashes no redis, compartilhados entre
// instâncias:
//
//	<prefix>:total                 allowed / denied / fail_open
//	<prefix>:minute:<YYYYMMDDhhmm> idem, com TTL
//	<prefix>:route                 "<METHOD /rota>:<campo>"
//	<prefix>:key:<key>             idem total, com TTL (opcional)
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal / por key.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	fields := []string{"denied"}
	switch {
	case ev.FailOpen:
		fields = []string{"allowed", "fail_open"}
	case ev.Allowed:
		fields = []string{"allowed"}
	}

	pipe := s.rdb.Pipeline()
	incr := func(key, prefix string, ttl time.Duration) {
		for _, f := range fields {
			pipe.HIncrBy(ctx, key, prefix+f, 1)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
	}

	incr(s.prefix+":total", "", 0)

	if s.bucket == "minute" {
		incr(fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")), "", s.ttl)
	}

	if route := routeLabel(ev); route != "" {
		incr(s.prefix+":route", route+":", 0)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			incr(s.prefix+":key:"+k, "", s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

func routeLabel(ev domain.StatsEvent) string {
	return strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Route))
}

package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"dispatch-gateway/middleware/ratelimit/domain"
)

// checkAndInsert registra ARGV[2] (score) / ARGV[3] (membro) se ainda cabe no
// limite ARGV[1]. Devolve a contagem incluindo a requisição atual.
var checkAndInsert = redis.NewScript(`local c = tonumber(redis.call('ZCARD', KEYS[1]))
if c == nil then
  c = 0
end
if tonumber(ARGV[1]) > c then
  redis.call('ZADD', KEYS[1], ARGV[2], ARGV[3])
end
return c + 1`)

// RedisWindowStore implementa domain.WindowStore sobre sorted sets no redis.
//
// Cada WindowOp vira ZREMRANGEBYSCORE, ZCARD, EVALSHA(checkAndInsert) e EXPIRE,
// e o lote inteiro vai num único MULTI/EXEC.
type RedisWindowStore struct {
	rdb    redis.UniversalClient
	prefix string
	loads  singleflight.Group
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func NewRedisWindowStore(rdb redis.UniversalClient, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "ratelimit:window",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load carrega o script no redis. É opcional: Apply carrega sob demanda.
func (s *RedisWindowStore) Load(ctx context.Context) error {
	_, err, _ := s.loads.Do("load", func() (any, error) {
		return checkAndInsert.Load(ctx, s.rdb).Result()
	})
	return err
}

func (s *RedisWindowStore) Apply(ctx context.Context, ops []domain.WindowOp) ([]int64, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	counts, err := s.apply(ctx, ops)
	if err != nil && redis.HasErrorPrefix(err, "NOSCRIPT") {
		// redis reiniciado ou SCRIPT FLUSH: recarrega e tenta uma vez
		if lerr := s.Load(ctx); lerr != nil {
			return nil, fmt.Errorf("load script: %w", lerr)
		}
		counts, err = s.apply(ctx, ops)
	}
	return counts, err
}

func (s *RedisWindowStore) apply(ctx context.Context, ops []domain.WindowOp) ([]int64, error) {
	evals := make([]*redis.Cmd, len(ops))
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, op := range ops {
			key := s.key(op.Key)
			member := strconv.FormatInt(op.Now, 10) + "-" + uuid.NewString()

			pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(op.Cutoff, 10))
			pipe.ZCard(ctx, key)
			evals[i] = pipe.EvalSha(ctx, checkAndInsert.Hash(), []string{key}, op.Threshold, op.Now, member)
			if op.TTL > 0 {
				pipe.Expire(ctx, key, op.TTL)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	counts := make([]int64, len(ops))
	for i, cmd := range evals {
		n, err := cmd.Int64()
		if err != nil {
			return nil, fmt.Errorf("read count for %s: %w", ops[i].Key, err)
		}
		counts[i] = n
	}
	return counts, nil
}

func (s *RedisWindowStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Cardinality lê quantas entradas a chave tem agora (sem despejar nada).
func (s *RedisWindowStore) Cardinality(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, s.key(key)).Result()
}

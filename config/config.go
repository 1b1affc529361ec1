// Package config carrega a configuração do gateway: arquivo yaml opcional e
// depois variáveis de ambiente GATEWAY_* (que sobrescrevem o arquivo).
//
// Aninhamento no ambiente usa "__": GATEWAY_RATE__KEY_HEADER vira rate.key_header.
// Listas aceitam valores separados por vírgula (GATEWAY_REDIS__ADDRS=a:6379,b:6379).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/sirupsen/logrus"

	"dispatch-gateway/middleware/ratelimit/domain"
)

const (
	EnvPrefix   = "GATEWAY_"
	EnvFile     = "GATEWAY_CONFIG"
	DefaultFile = "gateway.yaml"
)

type Config struct {
	ListenAddr  string            `koanf:"listen_addr"`
	OpsAddr     string            `koanf:"ops_addr"`
	Log         LogConfig         `koanf:"log"`
	Routes      []RouteConfig     `koanf:"routes"`
	Resolvers   []ResolverConfig  `koanf:"resolvers"`
	Rate        RateConfig        `koanf:"rate"`
	Redis       RedisConfig       `koanf:"redis"`
	Stats       StatsConfig       `koanf:"stats"`
	Concurrency ConcurrencyConfig `koanf:"concurrency"`
	Tracing     TracingConfig     `koanf:"tracing"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text ou json
}

// RouteConfig é uma entrada da tabela estática: source é "host/path".
type RouteConfig struct {
	Source  string   `koanf:"source"`
	Targets []string `koanf:"targets"`
}

// ResolverConfig é um resolver declarativo. Sem target, só aplica os limites.
type ResolverConfig struct {
	Match    string        `koanf:"match"`
	Host     string        `koanf:"host"`
	Method   string        `koanf:"method"`
	Priority int           `koanf:"priority"`
	Target   string        `koanf:"target"`
	Limits   []LimitConfig `koanf:"limits"`
}

type LimitConfig struct {
	Precision time.Duration `koanf:"precision"`
	Amount    int64         `koanf:"amount"`
}

type RateConfig struct {
	Enabled   bool   `koanf:"enabled"`
	KeyHeader string `koanf:"key_header"`
	TrustXFF  bool   `koanf:"trust_xff"`
	FailOpen  bool   `koanf:"fail_open"`
	// Limits valem para a tabela estática e para resolvers sem limites próprios.
	Limits     []LimitConfig `koanf:"limits"`
	LocalRPS   float64       `koanf:"local_rps"`
	LocalBurst int           `koanf:"local_burst"`
	AddHeaders bool          `koanf:"add_headers"`
}

type RedisConfig struct {
	Addrs     []string `koanf:"addrs"`
	Password  string   `koanf:"password"`
	DB        int      `koanf:"db"`
	KeyPrefix string   `koanf:"key_prefix"`
}

func (r RedisConfig) Enabled() bool { return len(r.Addrs) > 0 }

type StatsConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Prefix    string        `koanf:"prefix"`
	TTL       time.Duration `koanf:"ttl"`
	Bucket    string        `koanf:"bucket"`
	TrackKeys bool          `koanf:"track_keys"`
}

type ConcurrencyConfig struct {
	Max     int           `koanf:"max"`
	Timeout time.Duration `koanf:"timeout"`
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
}

var defaults = map[string]any{
	"listen_addr":         ":8080",
	"ops_addr":            ":9090",
	"log.level":           "info",
	"log.format":          "text",
	"rate.enabled":        true,
	"rate.fail_open":      true,
	"rate.local_burst":    20,
	"redis.key_prefix":    "ratelimit:window",
	"stats.prefix":        "ratelimit:stats",
	"stats.ttl":           "24h",
	"stats.bucket":        "minute",
	"concurrency.max":     100,
	"concurrency.timeout": "0s",
}

// Path devolve o arquivo indicado em GATEWAY_CONFIG, ou gateway.yaml.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(EnvFile)); p != "" {
		return p
	}
	return DefaultFile
}

// Load lê path (se existir) e o ambiente, aplica os padrões e valida.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		if s == EnvFile {
			return ""
		}
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen_addr is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	for i, r := range c.Routes {
		if strings.TrimSpace(r.Source) == "" {
			return fmt.Errorf("routes[%d].source is required", i)
		}
		if len(r.Targets) == 0 {
			return fmt.Errorf("routes[%d].targets must not be empty", i)
		}
	}

	for i, r := range c.Resolvers {
		if r.Match == "" {
			return fmt.Errorf("resolvers[%d].match is required", i)
		}
		if _, err := regexp.Compile(r.Match); err != nil {
			return fmt.Errorf("resolvers[%d].match: %w", i, err)
		}
		if r.Host != "" {
			if _, err := regexp.Compile(r.Host); err != nil {
				return fmt.Errorf("resolvers[%d].host: %w", i, err)
			}
		}
		if err := validateLimits(fmt.Sprintf("resolvers[%d].limits", i), r.Limits); err != nil {
			return err
		}
	}

	if err := validateLimits("rate.limits", c.Rate.Limits); err != nil {
		return err
	}
	if c.Rate.LocalRPS < 0 {
		return errors.New("rate.local_rps must be >= 0")
	}
	if c.Rate.LocalRPS > 0 && c.Rate.LocalBurst <= 0 {
		return errors.New("rate.local_burst must be > 0")
	}
	if c.Stats.Enabled && !c.Redis.Enabled() {
		return errors.New("redis.addrs is required when stats.enabled=true")
	}
	if c.Concurrency.Max < 0 {
		return errors.New("concurrency.max must be >= 0")
	}
	return nil
}

func validateLimits(name string, limits []LimitConfig) error {
	for i, l := range limits {
		if l.Precision < time.Millisecond {
			return fmt.Errorf("%s[%d].precision must be >= 1ms", name, i)
		}
		if l.Amount <= 0 {
			return fmt.Errorf("%s[%d].amount must be > 0", name, i)
		}
	}
	return nil
}

// RateLimits converte os limites configurados para o domínio do rate limit.
func RateLimits(limits []LimitConfig) []domain.RateLimit {
	out := make([]domain.RateLimit, 0, len(limits))
	for _, l := range limits {
		out = append(out, domain.RateLimit{Precision: l.Precision, Amount: l.Amount})
	}
	return out
}

// LimitsFor devolve os limites do resolver ou, sem eles, os de rate.limits.
func (c *Config) LimitsFor(r ResolverConfig) []domain.RateLimit {
	if len(r.Limits) > 0 {
		return RateLimits(r.Limits)
	}
	return RateLimits(c.Rate.Limits)
}

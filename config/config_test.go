package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch-gateway/middleware/ratelimit/domain"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, ":9090", cfg.OpsAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Rate.Enabled)
	assert.True(t, cfg.Rate.FailOpen)
	assert.Equal(t, 20, cfg.Rate.LocalBurst)
	assert.Equal(t, 24*time.Hour, cfg.Stats.TTL)
	assert.Equal(t, 100, cfg.Concurrency.Max)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
listen_addr: ":7000"
routes:
  - source: example.com/api
    targets: ["http://10.0.0.1:8080", "http://10.0.0.2:8080"]
resolvers:
  - match: "^/admin"
    method: POST
    priority: 10
    target: http://admin:9000
    limits:
      - precision: 1s
        amount: 5
rate:
  limits:
    - precision: 1m
      amount: 100
redis:
  addrs: ["localhost:6379"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ListenAddr)
	require.Len(t, cfg.Routes, 1)
	assert.Equal(t, "example.com/api", cfg.Routes[0].Source)
	assert.Len(t, cfg.Routes[0].Targets, 2)

	require.Len(t, cfg.Resolvers, 1)
	r := cfg.Resolvers[0]
	assert.Equal(t, "POST", r.Method)
	assert.Equal(t, 10, r.Priority)
	assert.Equal(t, []domain.RateLimit{{Precision: time.Second, Amount: 5}}, cfg.LimitsFor(r))
	assert.Equal(t, []domain.RateLimit{{Precision: time.Minute, Amount: 100}}, cfg.LimitsFor(ResolverConfig{}))
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "listen_addr: \":7000\"\n")
	t.Setenv("GATEWAY_LISTEN_ADDR", ":7001")
	t.Setenv("GATEWAY_RATE__KEY_HEADER", "X-Api-Key")
	t.Setenv("GATEWAY_REDIS__ADDRS", "a:6379,b:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.ListenAddr)
	assert.Equal(t, "X-Api-Key", cfg.Rate.KeyHeader)
	assert.Equal(t, []string{"a:6379", "b:6379"}, cfg.Redis.Addrs)
}

func TestPath(t *testing.T) {
	t.Setenv(EnvFile, "")
	assert.Equal(t, DefaultFile, Path())

	t.Setenv(EnvFile, "/etc/gateway.yaml")
	assert.Equal(t, "/etc/gateway.yaml", Path())
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load(writeFile(t, "routes: [this is: not yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{ListenAddr: ":8080", Log: LogConfig{Level: "info", Format: "text"}}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"empty listen", func(c *Config) { c.ListenAddr = "" }, "listen_addr is required"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"route without source", func(c *Config) { c.Routes = []RouteConfig{{Targets: []string{"x"}}} }, "routes[0].source"},
		{"route without targets", func(c *Config) { c.Routes = []RouteConfig{{Source: "a/"}} }, "routes[0].targets"},
		{"resolver without match", func(c *Config) { c.Resolvers = []ResolverConfig{{}} }, "resolvers[0].match"},
		{"resolver bad regexp", func(c *Config) { c.Resolvers = []ResolverConfig{{Match: "("}} }, "resolvers[0].match"},
		{"resolver bad host", func(c *Config) { c.Resolvers = []ResolverConfig{{Match: "/", Host: "["}} }, "resolvers[0].host"},
		{"limit precision", func(c *Config) {
			c.Rate.Limits = []LimitConfig{{Precision: time.Microsecond, Amount: 1}}
		}, "rate.limits[0].precision"},
		{"limit amount", func(c *Config) {
			c.Resolvers = []ResolverConfig{{Match: "/", Limits: []LimitConfig{{Precision: time.Second}}}}
		}, "resolvers[0].limits[0].amount"},
		{"negative rps", func(c *Config) { c.Rate.LocalRPS = -1 }, "rate.local_rps"},
		{"rps without burst", func(c *Config) { c.Rate.LocalRPS = 1 }, "rate.local_burst"},
		{"stats without redis", func(c *Config) { c.Stats.Enabled = true }, "redis.addrs"},
		{"negative concurrency", func(c *Config) { c.Concurrency.Max = -1 }, "concurrency.max"},
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

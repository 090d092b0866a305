package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no addrs", func(c *Config) { c.Redis.Addrs = nil }, "addrs"},
		{"single with two addrs", func(c *Config) { c.Redis.Addrs = []string{"a:1", "b:2"} }, "exactly one"},
		{"sentinel without master", func(c *Config) { c.Redis.Mode = ModeSentinel }, "master_name"},
		{"unknown mode", func(c *Config) { c.Redis.Mode = "ring" }, "redis.mode"},
		{"idle over max", func(c *Config) { c.Redis.MinIdleConns = 9 }, "min_idle_conns"},
		{"zero poll", func(c *Config) { c.Lock.PollInterval = 0 }, "poll_interval"},
		{"zero null ttl", func(c *Config) { c.Cache.NullTTL = 0 }, "ttls"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}

	c := Default()
	c.Redis.Mode = ModeCluster
	c.Redis.Addrs = []string{"a:1", "b:2", "c:3"}
	if err := c.Validate(); err != nil {
		t.Fatalf("cluster config: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EZTEST_ENV", "production")
	t.Setenv("EZTEST_REDIS_MODE", "cluster")
	t.Setenv("EZTEST_REDIS_ADDRS", "10.0.0.1:7000,10.0.0.2:7000")
	t.Setenv("EZTEST_LOCK_POLL_INTERVAL", "25ms")
	t.Setenv("EZTEST_CACHE_NAMESPACE", "orders")
	t.Setenv("EZTEST_LOG_FORMAT", "console")

	cfg, err := Load("EZTEST")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.Redis.Mode != ModeCluster || len(cfg.Redis.Addrs) != 2 || cfg.Redis.Addrs[1] != "10.0.0.2:7000" {
		t.Fatalf("unexpected redis config: %+v", cfg.Redis)
	}
	if cfg.Lock.PollInterval != 25*time.Millisecond {
		t.Fatalf("poll interval: %v", cfg.Lock.PollInterval)
	}
	if cfg.Cache.Namespace != "orders" || cfg.Cache.DefaultTTL != 60*time.Second {
		t.Fatalf("cache: %+v", cfg.Cache)
	}
	if cfg.Log.Format != "console" || cfg.Log.Level != "info" {
		t.Fatalf("log: %+v", cfg.Log)
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("EZBAD_ENV", "production")
	t.Setenv("EZBAD_REDIS_MODE", "sentinel")
	if _, err := Load("EZBAD"); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "easycache.yaml")
	body := `
env: staging
redis:
  mode: sentinel
  master_name: mymaster
  addrs: ["s1:26379", "s2:26379"]
  read_timeout: 250ms
cache:
  namespace: users
  null_ttl: 2s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.IsProduction() {
		t.Fatalf("staging is not production")
	}
	if cfg.Redis.Mode != ModeSentinel || cfg.Redis.MasterName != "mymaster" {
		t.Fatalf("redis: %+v", cfg.Redis)
	}
	if cfg.Redis.ReadTimeout != 250*time.Millisecond || cfg.Redis.DialTimeout != 5*time.Second {
		t.Fatalf("timeouts: read=%v dial=%v", cfg.Redis.ReadTimeout, cfg.Redis.DialTimeout)
	}
	if cfg.Cache.NullTTL != 2*time.Second || cfg.Cache.DefaultTTL != 60*time.Second {
		t.Fatalf("cache: %+v", cfg.Cache)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("redis: [unterminated"), 0o600)
	if _, err := LoadFile(bad); err == nil {
		t.Fatalf("expected parse error")
	}
}

// Package config holds the runtime configuration for easycache deployments:
// store topology, lock polling, cache TTL defaults and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Topology modes.
const (
	ModeSingle   = "single"
	ModeSentinel = "sentinel"
	ModeCluster  = "cluster"
)

const DefaultEnvPrefix = "EASYCACHE"

// Config is the top-level configuration.
type Config struct {
	Env   string `yaml:"env" envconfig:"ENV"`
	Redis Redis  `yaml:"redis" envconfig:"REDIS"`
	Lock  Lock   `yaml:"lock" envconfig:"LOCK"`
	Cache Cache  `yaml:"cache" envconfig:"CACHE"`
	Log   Log    `yaml:"log" envconfig:"LOG"`
}

// Redis describes how to reach the store.
type Redis struct {
	Mode       string   `yaml:"mode" envconfig:"MODE"`
	Addrs      []string `yaml:"addrs" envconfig:"ADDRS"`
	MasterName string   `yaml:"master_name" envconfig:"MASTER_NAME"`
	Username   string   `yaml:"username" envconfig:"USERNAME"`
	Password   string   `yaml:"password" envconfig:"PASSWORD"`
	DB         int      `yaml:"db" envconfig:"DB"`

	DialTimeout  time.Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`

	PoolSize     int           `yaml:"pool_size" envconfig:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" envconfig:"MIN_IDLE_CONNS"`
	MaxIdleConns int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" envconfig:"POOL_TIMEOUT"`
}

type Lock struct {
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
}

type Cache struct {
	Namespace  string        `yaml:"namespace" envconfig:"NAMESPACE"`
	DefaultTTL time.Duration `yaml:"default_ttl" envconfig:"DEFAULT_TTL"`
	NullTTL    time.Duration `yaml:"null_ttl" envconfig:"NULL_TTL"`
}

type Log struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`
	Format string `yaml:"format" envconfig:"FORMAT"` // json | console
}

// Default returns a configuration suitable for a local single-node store.
func Default() Config {
	return Config{
		Env: "development",
		Redis: Redis{
			Mode:         ModeSingle,
			Addrs:        []string{"127.0.0.1:6379"},
			DialTimeout:  5 * time.Second,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			PoolSize:     200,
			MinIdleConns: 0,
			MaxIdleConns: 8,
			PoolTimeout:  5 * time.Second,
		},
		Lock: Lock{PollInterval: 10 * time.Millisecond},
		Cache: Cache{
			DefaultTTL: 60 * time.Second,
			NullTTL:    5 * time.Second,
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if c.Lock.PollInterval <= 0 {
		return fmt.Errorf("lock.poll_interval must be > 0")
	}
	if c.Cache.DefaultTTL <= 0 || c.Cache.NullTTL <= 0 {
		return fmt.Errorf("cache ttls must be > 0")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

func (r Redis) Validate() error {
	if len(r.Addrs) == 0 {
		return errors.New("redis.addrs is required")
	}
	switch r.Mode {
	case ModeSingle:
		if len(r.Addrs) != 1 {
			return fmt.Errorf("redis.mode single expects exactly one address, got %d", len(r.Addrs))
		}
	case ModeSentinel:
		if r.MasterName == "" {
			return errors.New("redis.master_name is required in sentinel mode")
		}
	case ModeCluster:
	default:
		return fmt.Errorf("redis.mode must be one of single, sentinel, cluster; got %q", r.Mode)
	}
	if r.PoolSize < 0 || r.MinIdleConns < 0 || r.MaxIdleConns < 0 {
		return errors.New("redis pool sizes must be >= 0")
	}
	if r.MaxIdleConns > 0 && r.MinIdleConns > r.MaxIdleConns {
		return fmt.Errorf("redis.min_idle_conns (%d) exceeds max_idle_conns (%d)", r.MinIdleConns, r.MaxIdleConns)
	}
	return nil
}

// IsProduction reports whether Env names a production deployment.
func (c Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "prod" || env == "production"
}

// Load reads configuration from the environment over Default. Outside
// production a .env file in the working directory is loaded first, if present.
func Load(prefix string) (Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	env := strings.ToLower(os.Getenv(prefix + "_ENV"))
	if env != "prod" && env != "production" {
		if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := Default()
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file over Default.
func LoadFile(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

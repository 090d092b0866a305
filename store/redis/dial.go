package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/easycache/config"
)

// NewUniversal builds a go-redis client for the configured topology.
func NewUniversal(cfg config.Redis) (goredis.UniversalClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case config.ModeSingle:
		return goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addrs[0],
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxIdleConns: cfg.MaxIdleConns,
			PoolTimeout:  cfg.PoolTimeout,
		}), nil
	case config.ModeSentinel:
		return goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxIdleConns:  cfg.MaxIdleConns,
			PoolTimeout:   cfg.PoolTimeout,
		}), nil
	case config.ModeCluster:
		return goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxIdleConns: cfg.MaxIdleConns,
			PoolTimeout:  cfg.PoolTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("redis store: unknown mode %q", cfg.Mode)
	}
}

// Dial connects to the configured store, pings it and returns a Client that
// owns the connection.
func Dial(ctx context.Context, cfg config.Redis) (*Client, error) {
	rdb, err := NewUniversal(cfg)
	if err != nil {
		return nil, err
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return New(Config{Client: rdb, CloseClient: true})
}

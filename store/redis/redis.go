// Package redis implements store.Client on top of go-redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/easycache/store"
)

var ErrNilClient = errors.New("redis store: nil client")

// INCR, and PEXPIRE only when this increment created the key.
var incrExpireScript = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

type Client struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ store.Client = (*Client)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client
}

func New(cfg Config) (*Client, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Client{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

// Redis exposes the underlying client for callers that need raw access.
func (c *Client) Redis() goredis.UniversalClient { return c.rdb }

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl < 0 {
		ttl = 0
	}
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return c.rdb.Del(ctx, keys...).Result()
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

func (c *Client) IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	return incrExpireScript.Run(ctx, c.rdb, []string{key}, ms).Int64()
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.PExpire(ctx, key, ttl).Result()
}

func (c *Client) GetBit(ctx context.Context, key string, offset int64) (bool, error) {
	n, err := c.rdb.GetBit(ctx, key, offset).Result()
	return n == 1, err
}

func (c *Client) SetBit(ctx context.Context, key string, offset int64, on bool) (bool, error) {
	n, err := c.rdb.SetBit(ctx, key, offset, bit(on)).Result()
	return n == 1, err
}

func (c *Client) BitCount(ctx context.Context, key string) (int64, error) {
	return c.rdb.BitCount(ctx, key, nil).Result()
}

func (c *Client) Exec(ctx context.Context, cmds []store.Cmd) ([]int64, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	out := make([]goredis.Cmder, 0, len(cmds))
	_, err := c.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for _, cmd := range cmds {
			switch cmd.Kind {
			case store.KindGetBit:
				out = append(out, p.GetBit(ctx, cmd.Key, cmd.Offset))
			case store.KindSetBit:
				out = append(out, p.SetBit(ctx, cmd.Key, cmd.Offset, bit(cmd.On)))
			case store.KindIncr:
				out = append(out, p.Incr(ctx, cmd.Key))
			case store.KindExpire:
				out = append(out, p.PExpire(ctx, cmd.Key, cmd.TTL))
			case store.KindDel:
				out = append(out, p.Del(ctx, cmd.Key))
			default:
				return fmt.Errorf("redis store: unsupported pipelined command %q", cmd.Kind)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make([]int64, len(out))
	for i, cmd := range out {
		switch v := cmd.(type) {
		case *goredis.IntCmd:
			res[i] = v.Val()
		case *goredis.BoolCmd:
			if v.Val() {
				res[i] = 1
			}
		}
	}
	return res, nil
}

func (c *Client) LPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return c.rdb.LPush(ctx, key, args...).Result()
}

func (c *Client) RPop(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.RPop(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member []byte) error {
	return c.rdb.ZAdd(ctx, key, goredis.Z{Score: score, Member: member}).Err()
}

func (c *Client) ZRangeByScore(ctx context.Context, key string, min, max float64) ([][]byte, error) {
	vals, err := c.rdb.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: strconv.FormatFloat(min, 'f', -1, 64),
		Max: strconv.FormatFloat(max, 'f', -1, 64),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (c *Client) ZRem(ctx context.Context, key string, members ...[]byte) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return c.rdb.ZRem(ctx, key, args...).Result()
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (c *Client) Close(context.Context) error {
	if c.closeClient {
		if err := c.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func bit(on bool) int {
	if on {
		return 1
	}
	return 0
}

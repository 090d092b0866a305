// Package store defines the remote key-value capability surface used by easycache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// bytes previously passed to Set for a key. Single-key operations must be atomic
// on the store side; SetNX and IncrExpire are the only correctness primitives the
// lock and idempotency guard rely on.
//
// Important: the keyspaces "LOCK:", "idpt:", "bf:ns:", "bf:cfg:" and "mq:topic:"
// are owned by easycache. External code MUST NOT write values under these prefixes.
package store

import (
	"context"
	"time"
)

// Client is a minimal Redis-shaped store. Must be safe for concurrent use.
type Client interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key is absent. Reports whether it was written.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	Incr(ctx context.Context, key string) (int64, error)

	// IncrExpire atomically increments key and, when the increment created
	// the key (result == 1), sets its TTL.
	IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)

	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	GetBit(ctx context.Context, key string, offset int64) (bool, error)
	SetBit(ctx context.Context, key string, offset int64, on bool) (bool, error)
	BitCount(ctx context.Context, key string) (int64, error)

	// Exec runs cmds in a single round trip. Not atomic across commands.
	// Results are positional: GETBIT/SETBIT yield 0 or 1, INCR the new value,
	// EXPIRE 0 or 1, DEL the removed count.
	Exec(ctx context.Context, cmds []Cmd) ([]int64, error)

	LPush(ctx context.Context, key string, values ...[]byte) (int64, error)
	// RPop returns (nil, false, nil) when the list is empty.
	RPop(ctx context.Context, key string) ([]byte, bool, error)
	ZAdd(ctx context.Context, key string, score float64, member []byte) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([][]byte, error)
	ZRem(ctx context.Context, key string, members ...[]byte) (int64, error)

	// Close releases resources.
	Close(ctx context.Context) error
}

// Kind selects the command carried by a Cmd.
type Kind uint8

const (
	KindGetBit Kind = iota + 1
	KindSetBit
	KindIncr
	KindExpire
	KindDel
)

func (k Kind) String() string {
	switch k {
	case KindGetBit:
		return "getbit"
	case KindSetBit:
		return "setbit"
	case KindIncr:
		return "incr"
	case KindExpire:
		return "expire"
	case KindDel:
		return "del"
	default:
		return "unknown"
	}
}

// Cmd is one pipelined command.
type Cmd struct {
	Kind   Kind
	Key    string
	Offset int64         // GETBIT/SETBIT
	On     bool          // SETBIT
	TTL    time.Duration // EXPIRE
}

func GetBit(key string, offset int64) Cmd      { return Cmd{Kind: KindGetBit, Key: key, Offset: offset} }
func SetBit(key string, offset int64) Cmd      { return Cmd{Kind: KindSetBit, Key: key, Offset: offset, On: true} }
func Incr(key string) Cmd                      { return Cmd{Kind: KindIncr, Key: key} }
func Expire(key string, ttl time.Duration) Cmd { return Cmd{Kind: KindExpire, Key: key, TTL: ttl} }
func Del(key string) Cmd                       { return Cmd{Kind: KindDel, Key: key} }

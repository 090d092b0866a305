// Package local is a process-local, time-bounded cache used as a speed layer in
// front of slower lookups. Nothing here is shared between processes.
//
// Fixed offers three tiers with fixed lifetimes (a minute, an hour, a day),
// backed by bigcache. Modules offers named caches whose lifetime is chosen
// when the module is first used, backed by ristretto. Blooms keeps namespaced
// Bloom filters in memory, addressed the same way as easycache.Filter.
package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/easycache/codec"
	"github.com/unkn0wn-root/easycache/internal/wire"
)

// Tier selects a fixed lifetime.
type Tier int

const (
	Minute Tier = iota
	Hour
	Day
)

var tierLife = [...]time.Duration{
	Minute: time.Minute,
	Hour:   time.Hour,
	Day:    24 * time.Hour,
}

func (t Tier) String() string {
	switch t {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Lifetime returns how long entries in t live.
func (t Tier) Lifetime() time.Duration { return tierLife[t] }

var ErrUnknownTier = errors.New("local: unknown tier")

type FixedConfig struct {
	Shards             int // power of two; 0 => 64
	MaxEntriesInWindow int // sizing hint per tier; 0 => 10000
	MaxEntrySize       int // bytes, sizing hint; 0 => 256
	HardMaxCacheSizeMB int // per tier; 0 = unlimited
	// CleanWindow is how often expired entries are purged; 0 => 1s.
	CleanWindow time.Duration
}

// Fixed holds one bigcache per tier. Values are framed so a cached "no value"
// is told apart from a miss.
type Fixed struct {
	tiers [len(tierLife)]*bc.BigCache
}

func NewFixed(cfg FixedConfig) (*Fixed, error) {
	f := &Fixed{}
	for t, life := range tierLife {
		conf := bc.DefaultConfig(life)
		conf.Shards = orDefault(cfg.Shards, 64)
		conf.MaxEntriesInWindow = orDefault(cfg.MaxEntriesInWindow, 10000)
		conf.MaxEntrySize = orDefault(cfg.MaxEntrySize, 256)
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
		if cfg.CleanWindow > 0 {
			conf.CleanWindow = cfg.CleanWindow
		}
		c, err := bc.New(context.Background(), conf)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("local: %s tier: %w", Tier(t), err)
		}
		f.tiers[t] = c
	}
	return f, nil
}

func (f *Fixed) tier(t Tier) (*bc.BigCache, error) {
	if t < 0 || int(t) >= len(f.tiers) {
		return nil, ErrUnknownTier
	}
	return f.tiers[t], nil
}

// Get returns the raw bytes stored under key. A cached "no value" reads as a
// miss; use Load to tell them apart.
func (f *Fixed) Get(t Tier, key string) ([]byte, bool, error) {
	b, kind, err := f.get(t, key)
	if err != nil || kind != wire.Value {
		return nil, false, err
	}
	return b, true, nil
}

// get returns (payload, kind) with kind == 0 on a miss.
func (f *Fixed) get(t Tier, key string) ([]byte, wire.Kind, error) {
	c, err := f.tier(t)
	if err != nil {
		return nil, 0, err
	}
	raw, err := c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	kind, err := wire.KindOf(raw)
	if err != nil {
		_ = c.Delete(key)
		return nil, 0, nil
	}
	if kind == wire.Null {
		return nil, wire.Null, nil
	}
	payload, err := wire.DecodeValue(raw)
	if err != nil {
		_ = c.Delete(key)
		return nil, 0, nil
	}
	return payload, wire.Value, nil
}

func (f *Fixed) Set(t Tier, key string, value []byte) error {
	c, err := f.tier(t)
	if err != nil {
		return err
	}
	return c.Set(key, wire.EncodeValue(value))
}

// SetNull records that key has no value.
func (f *Fixed) SetNull(t Tier, key string) error {
	c, err := f.tier(t)
	if err != nil {
		return err
	}
	return c.Set(key, wire.EncodeNull())
}

// Del removes key from t. Missing keys are not an error.
func (f *Fixed) Del(t Tier, key string) error {
	c, err := f.tier(t)
	if err != nil {
		return err
	}
	if err := c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (f *Fixed) Close() error {
	var errs []error
	for _, c := range f.tiers {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Load returns the value under key in tier t, calling load on a miss. A load
// reporting ok=false is cached as "no value" for the tier's lifetime; load
// errors are returned and not cached.
func Load[V any](f *Fixed, t Tier, key string, c codec.Codec[V], load func() (V, bool, error)) (V, bool, error) {
	var zero V
	payload, kind, err := f.get(t, key)
	if err != nil {
		return zero, false, err
	}
	switch kind {
	case wire.Null:
		return zero, false, nil
	case wire.Value:
		if v, err := c.Decode(payload); err == nil {
			return v, true, nil
		}
		_ = f.Del(t, key)
	}

	v, ok, err := load()
	if err != nil {
		return zero, false, err
	}
	if !ok {
		return zero, false, f.SetNull(t, key)
	}
	b, err := c.Encode(v)
	if err != nil {
		return v, true, err
	}
	return v, true, f.Set(t, key, b)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

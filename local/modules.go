package local

import (
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// nullValue marks a cached "no value".
type nullValue struct{}

type ModulesConfig struct {
	NumCounters int64 // per module; 0 => 100000
	MaxCost     int64 // per module, cost 1 per entry; 0 => 10000
	BufferItems int64 // 0 => 64
}

type module struct {
	c   *ristretto.Cache[string, any]
	ttl time.Duration
}

// Modules is a registry of named caches. A module is created on first use
// with the TTL passed to that call; later calls keep the module's TTL.
// Safe for concurrent use.
type Modules struct {
	cfg ModulesConfig
	mu  sync.RWMutex
	m   map[string]*module
}

func NewModules(cfg ModulesConfig) *Modules {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 100_000
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 10_000
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	return &Modules{cfg: cfg, m: make(map[string]*module)}
}

func (r *Modules) lookup(name string) *module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m[name]
}

func (r *Modules) load(name string, ttl time.Duration) (*module, error) {
	if mod := r.lookup(name); mod != nil {
		return mod, nil
	}
	if ttl <= 0 {
		return nil, errors.New("local: module ttl must be > 0")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if mod := r.m[name]; mod != nil {
		return mod, nil
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: r.cfg.NumCounters,
		MaxCost:     r.cfg.MaxCost,
		BufferItems: r.cfg.BufferItems,

		// cost is one per entry; MaxCost is an entry count
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	mod := &module{c: c, ttl: ttl}
	r.m[name] = mod
	return mod, nil
}

// TTL returns the lifetime of module name, or false if it does not exist yet.
func (r *Modules) TTL(name string) (time.Duration, bool) {
	if mod := r.lookup(name); mod != nil {
		return mod.ttl, true
	}
	return 0, false
}

// Get returns the value under key. Unknown modules and cached "no value"
// entries read as a miss.
func (r *Modules) Get(name, key string) (any, bool) {
	mod := r.lookup(name)
	if mod == nil {
		return nil, false
	}
	v, ok := mod.c.Get(key)
	if !ok {
		return nil, false
	}
	if _, null := v.(nullValue); null {
		return nil, false
	}
	return v, true
}

// Set stores v, creating the module with ttl if needed. The write is applied
// before Set returns. A nil v is stored as "no value".
func (r *Modules) Set(name, key string, ttl time.Duration, v any) error {
	mod, err := r.load(name, ttl)
	if err != nil {
		return err
	}
	if v == nil {
		v = nullValue{}
	}
	mod.c.SetWithTTL(key, v, 1, mod.ttl)
	mod.c.Wait()
	return nil
}

// GetOrLoad returns the cached value or calls load. ok=false from load is
// cached as "no value"; errors are not cached.
func (r *Modules) GetOrLoad(name, key string, ttl time.Duration, load func() (any, bool, error)) (any, bool, error) {
	mod, err := r.load(name, ttl)
	if err != nil {
		return nil, false, err
	}
	if v, ok := mod.c.Get(key); ok {
		if _, null := v.(nullValue); null {
			return nil, false, nil
		}
		return v, true, nil
	}
	v, ok, err := load()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		v = nil
	}
	if err := r.Set(name, key, ttl, v); err != nil {
		return v, ok, err
	}
	return v, ok, nil
}

func (r *Modules) Del(name, key string) {
	if mod := r.lookup(name); mod != nil {
		mod.c.Del(key)
		mod.c.Wait()
	}
}

// Drop discards a whole module; the next use recreates it.
func (r *Modules) Drop(name string) {
	r.mu.Lock()
	mod := r.m[name]
	delete(r.m, name)
	r.mu.Unlock()
	if mod != nil {
		mod.c.Close()
	}
}

func (r *Modules) Close() {
	r.mu.Lock()
	mods := r.m
	r.m = make(map[string]*module)
	r.mu.Unlock()
	for _, mod := range mods {
		mod.c.Close()
	}
}

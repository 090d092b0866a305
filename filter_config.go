package easycache

import (
	"math"
	"sync"
)

// maxBitSize is the largest bitmap a Redis string can hold (512MB).
const maxBitSize int64 = 1 << 32

// FilterConfig is the persisted shape of a Bloom filter namespace.
type FilterConfig struct {
	BitSize            int64   `json:"bitSize"`
	NumHashFunctions   int     `json:"numHashFunctions"`
	ExpectedInsertions int64   `json:"expectedInsertions"`
	FPP                float64 `json:"fpp"`
}

func (c FilterConfig) validate() error {
	if c.BitSize <= 0 || c.BitSize > maxBitSize {
		return invalidArg("bit size %d out of range (0, %d]", c.BitSize, maxBitSize)
	}
	if c.NumHashFunctions < 1 || c.NumHashFunctions > 255 {
		return invalidArg("hash function count %d out of range [1, 255]", c.NumHashFunctions)
	}
	return nil
}

// sameShape reports whether two configs address the same bits for every item.
func (c FilterConfig) sameShape(o FilterConfig) bool {
	return c.BitSize == o.BitSize && c.NumHashFunctions == o.NumHashFunctions
}

// NewFilterConfig sizes a filter for n expected insertions at false positive
// probability p. n == 0 is treated as 1.
func NewFilterConfig(n int64, p float64) (FilterConfig, error) {
	if n < 0 {
		return FilterConfig{}, invalidArg("expected insertions %d must be >= 0", n)
	}
	if !(p > 0 && p < 1) {
		return FilterConfig{}, invalidArg("false positive probability %v must be in (0, 1)", p)
	}
	if n == 0 {
		n = 1
	}
	m := OptimalBitSize(n, p)
	cfg := FilterConfig{
		BitSize:            m,
		NumHashFunctions:   OptimalHashFunctions(n, m),
		ExpectedInsertions: n,
		FPP:                p,
	}
	return cfg, cfg.validate()
}

// OptimalBitSize returns ceil(-n*ln(p) / (ln 2)^2).
func OptimalBitSize(n int64, p float64) int64 {
	bits := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	if bits > math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return int64(bits)
}

// OptimalHashFunctions returns max(1, round(m/n * ln 2)).
func OptimalHashFunctions(n, m int64) int {
	if n <= 0 {
		n = 1
	}
	k := math.Round(float64(m) / float64(n) * math.Ln2)
	if k < 1 {
		return 1
	}
	if k > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(k)
}

// ConfigRegistry caches filter configs per namespace. The store copy is
// authoritative; entries are filled on Create or on first use and are never
// evicted implicitly. Safe for concurrent use; concurrent fills for a namespace
// are last-write-wins.
//
// One registry may be shared by several Filters in a process.
type ConfigRegistry struct {
	mu   sync.RWMutex
	cfgs map[string]FilterConfig
	gens map[string]uint64 // bumped by Forget
}

func NewConfigRegistry() *ConfigRegistry {
	return &ConfigRegistry{cfgs: make(map[string]FilterConfig), gens: make(map[string]uint64)}
}

func (r *ConfigRegistry) Load(ns string) (FilterConfig, bool) {
	r.mu.RLock()
	cfg, ok := r.cfgs[ns]
	r.mu.RUnlock()
	return cfg, ok
}

func (r *ConfigRegistry) Store(ns string, cfg FilterConfig) {
	r.mu.Lock()
	r.cfgs[ns] = cfg
	r.mu.Unlock()
}

// Forget drops the cached config so the next use refetches it. Fills that
// started before Forget no longer populate the registry.
func (r *ConfigRegistry) Forget(ns string) {
	r.mu.Lock()
	delete(r.cfgs, ns)
	r.gens[ns]++
	r.mu.Unlock()
}

func (r *ConfigRegistry) gen(ns string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gens[ns]
}

// storeAt stores cfg unless ns was forgotten after gen was read.
func (r *ConfigRegistry) storeAt(ns string, cfg FilterConfig, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[ns] != gen {
		return false
	}
	r.cfgs[ns] = cfg
	return true
}

func (r *ConfigRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cfgs)
}

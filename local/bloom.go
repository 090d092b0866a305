package local

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/easycache"
	"github.com/unkn0wn-root/easycache/internal/bloom"
)

// DefaultBloomFPP is used when NewBlooms is given fpp <= 0.
const DefaultBloomFPP = 0.00001

// Blooms holds process-local Bloom filters by namespace. Sizing and bit
// addressing match easycache.Filter, so a namespace can be moved between the
// two without rehashing differently. Safe for concurrent use.
type Blooms struct {
	hash easycache.HashFunc
	fpp  float64

	mu sync.RWMutex
	m  map[string]*bitset
}

type bitset struct {
	cfg   easycache.FilterConfig
	words []atomic.Uint64
}

func (b *bitset) set(off int64) {
	b.words[off>>6].Or(1 << uint(off&63))
}

func (b *bitset) get(off int64) bool {
	return b.words[off>>6].Load()&(1<<uint(off&63)) != 0
}

// NewBlooms returns an empty set of filters. hash nil => easycache.Murmur3.
func NewBlooms(hash easycache.HashFunc, fpp float64) *Blooms {
	if hash == nil {
		hash = easycache.Murmur3
	}
	if fpp <= 0 {
		fpp = DefaultBloomFPP
	}
	return &Blooms{hash: hash, fpp: fpp, m: make(map[string]*bitset)}
}

// Create sizes a filter for ns. An existing namespace is kept as is and its
// config returned.
func (b *Blooms) Create(ns string, expectedInsertions int64) (easycache.FilterConfig, error) {
	if ns == "" {
		return easycache.FilterConfig{}, fmt.Errorf("%w: empty filter namespace", easycache.ErrInvalidArgument)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if bs, ok := b.m[ns]; ok {
		return bs.cfg, nil
	}
	cfg, err := easycache.NewFilterConfig(expectedInsertions, b.fpp)
	if err != nil {
		return easycache.FilterConfig{}, err
	}
	b.m[ns] = &bitset{cfg: cfg, words: make([]atomic.Uint64, (cfg.BitSize+63)/64)}
	return cfg, nil
}

func (b *Blooms) lookup(ns string) (*bitset, error) {
	b.mu.RLock()
	bs, ok := b.m[ns]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", easycache.ErrFilterNotFound, ns)
	}
	return bs, nil
}

func (b *Blooms) Put(ns string, items ...string) error {
	bs, err := b.lookup(ns)
	if err != nil {
		return err
	}
	var offs []int64
	for _, it := range items {
		offs = bloom.Offsets(b.hash([]byte(it)), bs.cfg.NumHashFunctions, bs.cfg.BitSize, offs)
		for _, o := range offs {
			bs.set(o)
		}
	}
	return nil
}

// MightContain reports false only if item was never put into ns.
func (b *Blooms) MightContain(ns, item string) (bool, error) {
	bs, err := b.lookup(ns)
	if err != nil {
		return false, err
	}
	for _, o := range bloom.Offsets(b.hash([]byte(item)), bs.cfg.NumHashFunctions, bs.cfg.BitSize, nil) {
		if !bs.get(o) {
			return false, nil
		}
	}
	return true, nil
}

// Drop forgets ns. Dropping an unknown namespace is a no-op.
func (b *Blooms) Drop(ns string) {
	b.mu.Lock()
	delete(b.m, ns)
	b.mu.Unlock()
}

package easycache

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/easycache/codec"
	"github.com/unkn0wn-root/easycache/internal/bloom"
	"github.com/unkn0wn-root/easycache/internal/util"
	"github.com/unkn0wn-root/easycache/store"
)

type FilterOptions struct {
	// Registry caches configs per namespace. nil => a registry private to
	// this Filter.
	Registry *ConfigRegistry
	// Hash defaults to Murmur3.
	Hash HashFunc
	// EnforceCapacity rejects Put once the approximate element count reaches
	// the configured expected insertions. Costs one BITCOUNT per Put.
	EnforceCapacity bool
	Logger          Logger
	Hooks           Hooks
}

// Filter is a Bloom filter whose bit array lives in the store under
// "bf:ns:<namespace>" and whose config lives under "bf:cfg:<namespace>".
// Bits are only ever set; Drop the namespace to reset it.
type Filter struct {
	c        store.Client
	reg      *ConfigRegistry
	hash     HashFunc
	capacity bool
	cfgCodec codec.JSON[FilterConfig]
	fills    singleflight.Group
	log      Logger
	hooks    Hooks
}

func NewFilter(c store.Client, opts FilterOptions) (*Filter, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewConfigRegistry()
	}
	f := &Filter{
		c:        c,
		reg:      reg,
		hash:     opts.Hash,
		capacity: opts.EnforceCapacity,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	if f.hash == nil {
		f.hash = Murmur3
	}
	return f, nil
}

// Create sizes and persists the filter for ns. Creating an existing namespace
// with the same shape is a no-op that returns the stored config; a different
// shape is rejected with ErrInvalidArgument rather than silently ignored.
func (f *Filter) Create(ctx context.Context, ns string, expectedInsertions int64, fpp float64) (FilterConfig, error) {
	if ns == "" {
		return FilterConfig{}, invalidArg("empty filter namespace")
	}
	cfg, err := NewFilterConfig(expectedInsertions, fpp)
	if err != nil {
		return FilterConfig{}, err
	}
	b, err := f.cfgCodec.Encode(cfg)
	if err != nil {
		return FilterConfig{}, err
	}

	key := util.FilterCfgKey(ns)
	created, err := f.c.SetNX(ctx, key, b, 0)
	if err != nil {
		return FilterConfig{}, storeErr("setnx", key, err)
	}
	if !created {
		existing, err := f.fetch(ctx, ns)
		if err != nil {
			return FilterConfig{}, err
		}
		if !existing.sameShape(cfg) {
			return FilterConfig{}, invalidArg("filter %q exists with bitSize=%d k=%d; requested bitSize=%d k=%d",
				ns, existing.BitSize, existing.NumHashFunctions, cfg.BitSize, cfg.NumHashFunctions)
		}
		f.reg.Store(ns, existing)
		return existing, nil
	}

	f.reg.Store(ns, cfg)
	f.log.Info("bloom filter created", Fields{
		"ns": ns, "bitSize": cfg.BitSize, "k": cfg.NumHashFunctions,
		"expected": cfg.ExpectedInsertions, "fpp": cfg.FPP,
	})
	return cfg, nil
}

// Config returns the config for ns, fetching it from the store on a registry
// miss. Unknown namespaces yield ErrFilterNotFound.
//
// Concurrent misses share one fetch. The fetch is detached from any single
// caller's context; each caller stops waiting when its own ctx is done.
func (f *Filter) Config(ctx context.Context, ns string) (FilterConfig, error) {
	if cfg, ok := f.reg.Load(ns); ok {
		return cfg, nil
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := f.fills.DoChan(ns, func() (any, error) {
		gen := f.reg.gen(ns)
		cfg, err := f.fetch(fetchCtx, ns)
		if err != nil {
			return FilterConfig{}, err
		}
		if f.reg.storeAt(ns, cfg, gen) {
			f.log.Debug("bloom filter config fetched", Fields{"ns": ns})
		}
		return cfg, nil
	})
	select {
	case <-ctx.Done():
		return FilterConfig{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return FilterConfig{}, res.Err
		}
		return res.Val.(FilterConfig), nil
	}
}

func (f *Filter) fetch(ctx context.Context, ns string) (FilterConfig, error) {
	key := util.FilterCfgKey(ns)
	b, ok, err := f.c.Get(ctx, key)
	if err != nil {
		return FilterConfig{}, storeErr("get", key, err)
	}
	if !ok {
		return FilterConfig{}, fmt.Errorf("%w: %q", ErrFilterNotFound, ns)
	}
	cfg, err := f.cfgCodec.Decode(b)
	if err != nil {
		return FilterConfig{}, fmt.Errorf("easycache: decode filter config %q: %w", ns, err)
	}
	if err := cfg.validate(); err != nil {
		return FilterConfig{}, fmt.Errorf("easycache: stored filter config %q: %w", ns, err)
	}
	return cfg, nil
}

// Put adds item to ns.
func (f *Filter) Put(ctx context.Context, ns, item string) error {
	return f.PutAll(ctx, ns, item)
}

// PutAll adds items to ns with one pipelined round trip.
func (f *Filter) PutAll(ctx context.Context, ns string, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	cfg, err := f.Config(ctx, ns)
	if err != nil {
		return err
	}
	if f.capacity {
		n, err := f.approximateCount(ctx, ns, cfg)
		if err != nil {
			return err
		}
		if n >= cfg.ExpectedInsertions {
			f.hooks.FilterCapacityExceeded(ns)
			f.log.Warn("bloom filter capacity exceeded", Fields{"ns": ns, "approx": n, "capacity": cfg.ExpectedInsertions})
			return fmt.Errorf("%w: %q holds ~%d of %d", ErrCapacityExceeded, ns, n, cfg.ExpectedInsertions)
		}
	}

	key := util.FilterBitsKey(ns)
	cmds := make([]store.Cmd, 0, len(items)*cfg.NumHashFunctions)
	var offs []int64
	for _, it := range items {
		offs = bloom.Offsets(f.hash([]byte(it)), cfg.NumHashFunctions, cfg.BitSize, offs)
		for _, o := range offs {
			cmds = append(cmds, store.SetBit(key, o))
		}
	}
	if _, err := f.c.Exec(ctx, cmds); err != nil {
		return storeErr("setbit", key, err)
	}
	return nil
}

// MightContain reports false only if item was never added to ns. True may be a
// false positive, at roughly the configured probability.
func (f *Filter) MightContain(ctx context.Context, ns, item string) (bool, error) {
	cfg, err := f.Config(ctx, ns)
	if err != nil {
		return false, err
	}
	key := util.FilterBitsKey(ns)
	offs := bloom.Offsets(f.hash([]byte(item)), cfg.NumHashFunctions, cfg.BitSize, nil)
	cmds := make([]store.Cmd, len(offs))
	for i, o := range offs {
		cmds[i] = store.GetBit(key, o)
	}
	res, err := f.c.Exec(ctx, cmds)
	if err != nil {
		return false, storeErr("getbit", key, err)
	}
	for _, r := range res {
		if r == 0 {
			return false, nil
		}
	}
	return len(res) == len(cmds), nil
}

// ApproximateCount estimates how many distinct items ns holds from the number
// of set bits: -m/k * ln(1 - X/m).
func (f *Filter) ApproximateCount(ctx context.Context, ns string) (int64, error) {
	cfg, err := f.Config(ctx, ns)
	if err != nil {
		return 0, err
	}
	return f.approximateCount(ctx, ns, cfg)
}

func (f *Filter) approximateCount(ctx context.Context, ns string, cfg FilterConfig) (int64, error) {
	key := util.FilterBitsKey(ns)
	x, err := f.c.BitCount(ctx, key)
	if err != nil {
		return 0, storeErr("bitcount", key, err)
	}
	return estimateCount(x, cfg.BitSize, cfg.NumHashFunctions), nil
}

func estimateCount(setBits, m int64, k int) int64 {
	if setBits <= 0 {
		return 0
	}
	if setBits >= m {
		return math.MaxInt64
	}
	est := -math.Log1p(-float64(setBits)/float64(m)) * float64(m) / float64(k)
	return int64(math.Round(est))
}

// Drop deletes the bit array and config of ns and forgets the cached config.
// Dropping an unknown namespace is a no-op.
func (f *Filter) Drop(ctx context.Context, ns string) error {
	var err error
	// separate calls; the two keys may live in different cluster slots
	for _, key := range []string{util.FilterCfgKey(ns), util.FilterBitsKey(ns)} {
		if _, derr := f.c.Del(ctx, key); derr != nil {
			err = storeErr("del", key, derr)
			break
		}
	}
	// forget after the deletes: a racing fill must not re-cache the config
	f.fills.Forget(ns)
	f.reg.Forget(ns)
	return err
}

// IsNotFound is a convenience for errors.Is(err, ErrFilterNotFound).
func IsNotFound(err error) bool { return errors.Is(err, ErrFilterNotFound) }

package easycache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/easycache/internal/util"
	"github.com/unkn0wn-root/easycache/internal/wire"
	"github.com/unkn0wn-root/easycache/store"
)

type lookup uint8

const (
	miss lookup = iota
	hit
	nullHit
)

// entries holds what Aside and AsideList share: key layout, TTL defaults and
// the read/self-heal path over framed entries.
type entries struct {
	c       store.Client
	ns      string
	ttl     time.Duration
	nullTTL time.Duration
	enabled bool
	log     Logger
	hooks   Hooks
}

func newEntries(c store.Client, ns string, ttl, nullTTL time.Duration, disabled bool, log Logger, hooks Hooks) (entries, error) {
	if c == nil {
		return entries{}, ErrNilClient
	}
	if ttl < 0 || nullTTL < 0 {
		return entries{}, invalidArg("cache ttls must be >= 0")
	}
	return entries{
		c:       c,
		ns:      ns,
		ttl:     coalesce(ttl, defaultTTL),
		nullTTL: coalesce(nullTTL, defaultNullTTL),
		enabled: !disabled,
		log:     coalesce[Logger](log, NopLogger{}),
		hooks:   coalesce[Hooks](hooks, NopHooks{}),
	}, nil
}

func (e *entries) storageKey(key string) string { return util.Join(e.ns, key) }

// read fetches the raw frame at k. Corrupt frames and frames of the wrong kind
// are deleted and reported as a miss.
func (e *entries) read(ctx context.Context, k string, want wire.Kind) ([]byte, lookup, error) {
	raw, ok, err := e.c.Get(ctx, k)
	if err != nil {
		return nil, miss, storeErr("get", k, err)
	}
	if !ok {
		e.hooks.CacheMiss(k)
		return nil, miss, nil
	}
	kind, err := wire.KindOf(raw)
	switch {
	case err != nil:
		e.selfHeal(ctx, k, "corrupt")
		return nil, miss, nil
	case kind == wire.Null:
		e.hooks.CacheNullHit(k)
		return nil, nullHit, nil
	case kind != want:
		e.selfHeal(ctx, k, "kind_mismatch")
		return nil, miss, nil
	}
	return raw, hit, nil
}

func (e *entries) selfHeal(ctx context.Context, k, reason string) {
	if _, err := e.c.Del(ctx, k); err != nil {
		e.log.Warn("self-heal delete failed", Fields{"key": k, "reason": reason, "err": err})
	} else {
		e.log.Debug("self-heal: dropped unreadable entry", Fields{"key": k, "reason": reason})
	}
	e.hooks.SelfHeal(k, reason)
	e.hooks.CacheMiss(k)
}

func (e *entries) write(ctx context.Context, k string, frame []byte, ttl time.Duration) error {
	if err := e.c.Set(ctx, k, frame, ttl); err != nil {
		serr := storeErr("set", k, err)
		e.log.Warn("cache write-back failed", Fields{"key": k, "err": err})
		e.hooks.CacheWriteFailed(k, serr)
		return serr
	}
	return nil
}

func (e *entries) writeNull(ctx context.Context, k string, nullTTL time.Duration) error {
	return e.write(ctx, k, wire.EncodeNull(), coalesceTTL(nullTTL, e.nullTTL))
}

func (e *entries) invalidate(ctx context.Context, key string) (bool, error) {
	k := e.storageKey(key)
	n, err := e.c.Del(ctx, k)
	if err != nil {
		return false, storeErr("del", k, err)
	}
	e.log.Debug("invalidated key", Fields{"key": key, "removed": n > 0})
	return n > 0, nil
}

func coalesceTTL(ttl, def time.Duration) time.Duration {
	if ttl <= 0 {
		return def
	}
	return ttl
}

// Aside is a cache-aside orchestrator for values of type V.
//
// Entries are framed: a value frame carries the encoded V, a null frame marks a
// key whose producer reported "no value". Null frames live for the shorter null
// TTL so a transient "not found" is not trusted for long.
//
// A GetOrCompute racing an Invalidate on the same key may write a stale value
// after the invalidation (last writer wins).
type Aside[V any] struct {
	entries
	codec   Codec[V]
	isEmpty func(V) bool
}

var _ Cache[string] = (*Aside[string])(nil)

func NewAside[V any](c store.Client, opts AsideOptions[V]) (*Aside[V], error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("easycache: codec is required")
	}
	e, err := newEntries(c, opts.Namespace, opts.DefaultTTL, opts.NullTTL, opts.Disabled, opts.Logger, opts.Hooks)
	if err != nil {
		return nil, err
	}
	return &Aside[V]{entries: e, codec: opts.Codec, isEmpty: opts.IsEmpty}, nil
}

// GetOrCompute returns the cached value for key or computes it with p.
//
// On a hit p is not called. On a null hit it returns (zero, false, nil)
// without calling p. On a miss it calls p and stores the outcome: values for
// ttl, "no value" for nullTTL. Non-positive TTLs fall back to the defaults.
//
// If storing the outcome fails, the computed result is still returned along
// with a *StoreError.
func (a *Aside[V]) GetOrCompute(ctx context.Context, key string, ttl, nullTTL time.Duration, p Producer[V]) (V, bool, error) {
	var zero V
	if p == nil {
		return zero, false, invalidArg("nil producer")
	}
	if !a.enabled {
		return p(ctx)
	}

	k := a.storageKey(key)
	v, state, err := a.get(ctx, k)
	if err != nil {
		return zero, false, err
	}
	switch state {
	case hit:
		return v, true, nil
	case nullHit:
		return zero, false, nil
	}

	v, ok, err := p(ctx)
	if err != nil {
		return zero, false, err
	}
	if ok && a.isEmpty != nil && a.isEmpty(v) {
		ok = false
	}
	if !ok {
		return zero, false, a.writeNull(ctx, k, nullTTL)
	}
	return v, true, a.put(ctx, k, v, ttl)
}

// Get probes the cache without computing. Null entries read as (zero, false).
func (a *Aside[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !a.enabled {
		return zero, false, nil
	}
	v, state, err := a.get(ctx, a.storageKey(key))
	if err != nil || state != hit {
		return zero, false, err
	}
	return v, true, nil
}

// Set stores v under key, replacing any value or null entry.
func (a *Aside[V]) Set(ctx context.Context, key string, v V, ttl time.Duration) error {
	if !a.enabled {
		return nil
	}
	return a.put(ctx, a.storageKey(key), v, ttl)
}

// Invalidate deletes the entry for key. Deleting an absent key reports false.
func (a *Aside[V]) Invalidate(ctx context.Context, key string) (bool, error) {
	if !a.enabled {
		return false, nil
	}
	return a.invalidate(ctx, key)
}

func (a *Aside[V]) get(ctx context.Context, k string) (V, lookup, error) {
	var zero V
	raw, state, err := a.read(ctx, k, wire.Value)
	if err != nil || state != hit {
		return zero, state, err
	}
	payload, err := wire.DecodeValue(raw)
	if err != nil {
		a.selfHeal(ctx, k, "corrupt")
		return zero, miss, nil
	}
	v, err := a.codec.Decode(payload)
	if err != nil {
		a.selfHeal(ctx, k, "value_decode")
		return zero, miss, nil
	}
	a.hooks.CacheHit(k)
	return v, hit, nil
}

func (a *Aside[V]) put(ctx context.Context, k string, v V, ttl time.Duration) error {
	payload, err := a.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("easycache: encode %q: %w", k, err)
	}
	return a.write(ctx, k, wire.EncodeValue(payload), coalesceTTL(ttl, a.ttl))
}

// AsideList is Aside for list-shaped results. Elements are encoded one by one
// with the element codec; an empty list is cached as a null entry.
type AsideList[V any] struct {
	entries
	codec Codec[V]
}

var _ ListCache[string] = (*AsideList[string])(nil)

func NewAsideList[V any](c store.Client, opts AsideOptions[V]) (*AsideList[V], error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("easycache: codec is required")
	}
	e, err := newEntries(c, opts.Namespace, opts.DefaultTTL, opts.NullTTL, opts.Disabled, opts.Logger, opts.Hooks)
	if err != nil {
		return nil, err
	}
	return &AsideList[V]{entries: e, codec: opts.Codec}, nil
}

// GetOrCompute follows Aside.GetOrCompute. A null hit returns (nil, nil).
func (a *AsideList[V]) GetOrCompute(ctx context.Context, key string, ttl, nullTTL time.Duration, p ListProducer[V]) ([]V, error) {
	if p == nil {
		return nil, invalidArg("nil producer")
	}
	if !a.enabled {
		return p(ctx)
	}

	k := a.storageKey(key)
	raw, state, err := a.read(ctx, k, wire.List)
	if err != nil {
		return nil, err
	}
	switch state {
	case hit:
		if vs, ok := a.decode(ctx, k, raw); ok {
			a.hooks.CacheHit(k)
			return vs, nil
		}
	case nullHit:
		return nil, nil
	}

	vs, err := p(ctx)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return vs, a.writeNull(ctx, k, nullTTL)
	}

	items := make([][]byte, len(vs))
	for i, v := range vs {
		b, err := a.codec.Encode(v)
		if err != nil {
			return vs, fmt.Errorf("easycache: encode %q[%d]: %w", k, i, err)
		}
		items[i] = b
	}
	return vs, a.write(ctx, k, wire.EncodeList(items), coalesceTTL(ttl, a.ttl))
}

func (a *AsideList[V]) Invalidate(ctx context.Context, key string) (bool, error) {
	if !a.enabled {
		return false, nil
	}
	return a.invalidate(ctx, key)
}

func (a *AsideList[V]) decode(ctx context.Context, k string, raw []byte) ([]V, bool) {
	items, err := wire.DecodeList(raw)
	if err != nil {
		a.selfHeal(ctx, k, "corrupt")
		return nil, false
	}
	out := make([]V, 0, len(items))
	for _, it := range items {
		v, err := a.codec.Decode(it)
		if err != nil {
			a.selfHeal(ctx, k, "value_decode")
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

package easycache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/easycache/codec"
)

type Codec[V any] = c.Codec[V]

// Producer computes the value behind a cache key. ok=false means the source has
// no value for the key; that outcome is cached as a null entry. A non-nil
// error is returned to the caller and never cached.
type Producer[V any] func(ctx context.Context) (v V, ok bool, err error)

// ListProducer computes a list. An empty list is cached as a null entry.
type ListProducer[V any] func(ctx context.Context) ([]V, error)

// Cache is the read-through API implemented by Aside.
type Cache[V any] interface {
	GetOrCompute(ctx context.Context, key string, ttl, nullTTL time.Duration, p Producer[V]) (V, bool, error)
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, v V, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) (bool, error)
}

// ListCache is the read-through API implemented by AsideList.
type ListCache[V any] interface {
	GetOrCompute(ctx context.Context, key string, ttl, nullTTL time.Duration, p ListProducer[V]) ([]V, error)
	Invalidate(ctx context.Context, key string) (bool, error)
}

// AsideOptions tune a cache-aside orchestrator. Only Codec is required.
type AsideOptions[V any] struct {
	Codec Codec[V]

	Namespace  string        // optional key prefix, joined with ":"
	DefaultTTL time.Duration // used when a call passes ttl <= 0; 0 => 60s
	NullTTL    time.Duration // used when a call passes nullTTL <= 0; 0 => 5s
	// IsEmpty classifies a produced value as "no value" even when the
	// producer reported ok. E.g. treat "" as absent for strings.
	IsEmpty  func(V) bool
	Logger   Logger // if nil, NopLogger is used
	Hooks    Hooks  // if nil, NopHooks is used
	Disabled bool   // calls go straight to the producer
}

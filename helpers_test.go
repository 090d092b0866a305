package easycache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/easycache/store"
	"github.com/unkn0wn-root/easycache/store/memory"
	rstore "github.com/unkn0wn-root/easycache/store/redis"
)

// backend is a store plus a way to move its clock.
type backend struct {
	name    string
	c       store.Client
	advance func(time.Duration)
}

func newMemoryBackend(t *testing.T) (backend, *memory.Store) {
	t.Helper()
	m := memory.New()
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return backend{name: "memory", c: m, advance: m.Advance}, m
}

func newRedisBackend(t *testing.T) (backend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := rstore.New(rstore.Config{
		Client:      goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		CloseClient: true,
	})
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return backend{name: "redis", c: c, advance: mr.FastForward}, mr
}

// eachBackend runs fn once against the memory store and once against miniredis.
func eachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	t.Run("memory", func(t *testing.T) {
		b, _ := newMemoryBackend(t)
		fn(t, b)
	})
	t.Run("redis", func(t *testing.T) {
		b, _ := newRedisBackend(t)
		fn(t, b)
	})
}

// recHooks records events. Safe for concurrent use.
type recHooks struct {
	NopHooks
	mu     sync.Mutex
	events map[string]int
	heals  []string
	errs   []error
}

func newRecHooks() *recHooks { return &recHooks{events: make(map[string]int)} }

func (h *recHooks) add(ev string, err error) {
	h.mu.Lock()
	h.events[ev]++
	if err != nil {
		h.errs = append(h.errs, err)
	}
	h.mu.Unlock()
}

func (h *recHooks) count(ev string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[ev]
}

func (h *recHooks) lastHeal() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.heals) == 0 {
		return ""
	}
	return h.heals[len(h.heals)-1]
}

func (h *recHooks) LockContended(string)                         { h.add("lock_contended", nil) }
func (h *recHooks) LockAcquired(string, time.Duration)           { h.add("lock_acquired", nil) }
func (h *recHooks) LockReleaseFailed(_ string, err error)        { h.add("lock_release_failed", err) }
func (h *recHooks) IdempotencyRejected(string)                   { h.add("idem_rejected", nil) }
func (h *recHooks) IdempotencyCleanupFailed(_ string, err error) { h.add("idem_cleanup_failed", err) }
func (h *recHooks) CacheHit(string)                              { h.add("hit", nil) }
func (h *recHooks) CacheNullHit(string)                          { h.add("null_hit", nil) }
func (h *recHooks) CacheMiss(string)                             { h.add("miss", nil) }
func (h *recHooks) CacheWriteFailed(_ string, err error)         { h.add("write_failed", err) }
func (h *recHooks) FilterCapacityExceeded(string)                { h.add("capacity", nil) }

func (h *recHooks) SelfHeal(_ string, reason string) {
	h.mu.Lock()
	h.heals = append(h.heals, reason)
	h.mu.Unlock()
	h.add("self_heal", nil)
}

// failingWrites passes reads through and fails every Set.
type failingWrites struct {
	store.Client
	err error
}

func (f failingWrites) Set(context.Context, string, []byte, time.Duration) error { return f.err }

// heldGets parks every Get until release is closed or the caller's ctx is
// done. With afterRead the underlying read happens before parking.
type heldGets struct {
	store.Client
	afterRead bool
	entered   chan struct{}
	release   chan struct{}
	once      sync.Once
}

func newHeldGets(c store.Client, afterRead bool) *heldGets {
	return &heldGets{Client: c, afterRead: afterRead, entered: make(chan struct{}), release: make(chan struct{})}
}

func (h *heldGets) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		b   []byte
		ok  bool
		err error
	)
	if h.afterRead {
		b, ok, err = h.Client.Get(ctx, key)
	}
	h.once.Do(func() { close(h.entered) })
	select {
	case <-h.release:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	if !h.afterRead {
		b, ok, err = h.Client.Get(ctx, key)
	}
	return b, ok, err
}

// Package asynchook moves hook delivery off the calling goroutine.
//
// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{CacheEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	locker, _ := easycache.NewLocker(client, easycache.LockerOptions{Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/easycache"
)

// Hooks queues every event for a worker pool. Events are dropped, never
// blocked on, when the queue is full.
type Hooks struct {
	inner   easycache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

var _ easycache.Hooks = (*Hooks)(nil)

func New(inner easycache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	if h.closed.Load() {
		h.dropped.Add(1)
		return
	}
	defer func() {
		// send on a channel closed by a racing Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) LockContended(n string) { h.try(func() { h.inner.LockContended(n) }) }
func (h *Hooks) LockAcquired(n string, w time.Duration) {
	h.try(func() { h.inner.LockAcquired(n, w) })
}
func (h *Hooks) LockReleaseFailed(n string, err error) {
	h.try(func() { h.inner.LockReleaseFailed(n, err) })
}
func (h *Hooks) IdempotencyRejected(n string) { h.try(func() { h.inner.IdempotencyRejected(n) }) }
func (h *Hooks) IdempotencyCleanupFailed(n string, err error) {
	h.try(func() { h.inner.IdempotencyCleanupFailed(n, err) })
}
func (h *Hooks) CacheHit(k string)         { h.try(func() { h.inner.CacheHit(k) }) }
func (h *Hooks) CacheNullHit(k string)     { h.try(func() { h.inner.CacheNullHit(k) }) }
func (h *Hooks) CacheMiss(k string)        { h.try(func() { h.inner.CacheMiss(k) }) }
func (h *Hooks) SelfHeal(k, reason string) { h.try(func() { h.inner.SelfHeal(k, reason) }) }
func (h *Hooks) CacheWriteFailed(k string, err error) {
	h.try(func() { h.inner.CacheWriteFailed(k, err) })
}
func (h *Hooks) FilterCapacityExceeded(ns string) {
	h.try(func() { h.inner.FilterCapacityExceeded(ns) })
}

// Package sloghook logs easycache hook events through log/slog.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/easycache"
)

type Options struct {
	// Sampling for the chatty events; 0/1 = log all.
	CacheEvery      uint64 // hits, null hits, misses
	ContentionEvery uint64 // lock contended, idempotency rejected
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	cacheCtr      atomic.Uint64
	contentionCtr atomic.Uint64
}

var _ easycache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LockContended(name string) {
	if h.l == nil || !sample(h.opts.ContentionEvery, &h.contentionCtr) {
		return
	}
	h.l.Debug("easycache.lock_contended", "lock", name)
}

func (h *Hooks) LockAcquired(name string, waited time.Duration) {
	if h.l == nil || waited == 0 {
		return
	}
	h.l.Debug("easycache.lock_acquired_after_spin", "lock", name, "waited", waited)
}

func (h *Hooks) LockReleaseFailed(name string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("easycache.lock_release_failed", "lock", name, "err", err)
}

func (h *Hooks) IdempotencyRejected(name string) {
	if h.l == nil || !sample(h.opts.ContentionEvery, &h.contentionCtr) {
		return
	}
	h.l.Info("easycache.idempotency_rejected", "name", name)
}

func (h *Hooks) IdempotencyCleanupFailed(name string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("easycache.idempotency_cleanup_failed", "name", name, "err", err)
}

func (h *Hooks) cacheEvent(msg, key string) {
	if h.l == nil || !sample(h.opts.CacheEvery, &h.cacheCtr) {
		return
	}
	h.l.Debug(msg, "key", h.redact(key))
}

func (h *Hooks) CacheHit(key string)     { h.cacheEvent("easycache.cache_hit", key) }
func (h *Hooks) CacheNullHit(key string) { h.cacheEvent("easycache.cache_null_hit", key) }
func (h *Hooks) CacheMiss(key string)    { h.cacheEvent("easycache.cache_miss", key) }

func (h *Hooks) SelfHeal(key, reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("easycache.self_heal", "key", h.redact(key), "reason", reason)
}

func (h *Hooks) CacheWriteFailed(key string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("easycache.cache_write_failed", "key", h.redact(key), "err", err)
}

func (h *Hooks) FilterCapacityExceeded(ns string) {
	if h.l == nil {
		return
	}
	h.l.Warn("easycache.filter_capacity_exceeded", "ns", ns)
}

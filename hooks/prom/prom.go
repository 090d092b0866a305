// Package promhook exports easycache hook events as Prometheus counters.
package promhook

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/easycache"
)

// Hooks implements easycache.Hooks with Prometheus metrics. Lock and cache key
// names are not used as labels to keep cardinality bounded.
type Hooks struct {
	lockAttempts       *prometheus.CounterVec
	lockReleaseFailed  prometheus.Counter
	lockSpinWait       prometheus.Histogram
	idempotencyTotal   *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec
	cacheSelfHeal      *prometheus.CounterVec
	cacheWriteFailed   prometheus.Counter
	filterCapacityFull *prometheus.CounterVec
}

var _ easycache.Hooks = (*Hooks)(nil)

// Config holds configuration for Hooks.
type Config struct {
	// Namespace is the prefix for all metrics (e.g., "easycache")
	Namespace string
	// Subsystem is an optional subsystem name
	Subsystem string
	// Registry is the Prometheus registry to use. If nil, the default registry is used.
	Registry prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		Namespace: "easycache",
		Registry:  prometheus.DefaultRegisterer,
	}
}

func New(cfg Config) *Hooks {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Hooks{
		lockAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_attempts_total",
			Help:      "Lock acquisitions by outcome (acquired, contended)",
		}, []string{"outcome"}),

		lockReleaseFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_release_failed_total",
			Help:      "Releases that failed after a guarded operation",
		}),

		lockSpinWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "lock_spin_wait_seconds",
			Help:      "Time spent spinning before a lock was acquired",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),

		idempotencyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "idempotency_events_total",
			Help:      "Idempotency guard events (rejected, cleanup_failed)",
		}, []string{"event"}),

		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_lookups_total",
			Help:      "Cache-aside lookups by result (hit, null_hit, miss)",
		}, []string{"result"}),

		cacheSelfHeal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_self_heal_total",
			Help:      "Unreadable entries deleted on read",
		}, []string{"reason"}),

		cacheWriteFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cache_write_failed_total",
			Help:      "Failed write-backs of computed values",
		}),

		filterCapacityFull: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "filter_capacity_exceeded_total",
			Help:      "Bloom filter puts rejected at capacity",
		}, []string{"namespace"}),
	}
}

func (h *Hooks) LockContended(string) { h.lockAttempts.WithLabelValues("contended").Inc() }

func (h *Hooks) LockAcquired(_ string, waited time.Duration) {
	h.lockAttempts.WithLabelValues("acquired").Inc()
	if waited > 0 {
		h.lockSpinWait.Observe(waited.Seconds())
	}
}

func (h *Hooks) LockReleaseFailed(string, error) { h.lockReleaseFailed.Inc() }

func (h *Hooks) IdempotencyRejected(string) { h.idempotencyTotal.WithLabelValues("rejected").Inc() }
func (h *Hooks) IdempotencyCleanupFailed(string, error) {
	h.idempotencyTotal.WithLabelValues("cleanup_failed").Inc()
}

func (h *Hooks) CacheHit(string)     { h.cacheLookups.WithLabelValues("hit").Inc() }
func (h *Hooks) CacheNullHit(string) { h.cacheLookups.WithLabelValues("null_hit").Inc() }
func (h *Hooks) CacheMiss(string)    { h.cacheLookups.WithLabelValues("miss").Inc() }

func (h *Hooks) SelfHeal(_, reason string)      { h.cacheSelfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) CacheWriteFailed(string, error) { h.cacheWriteFailed.Inc() }

func (h *Hooks) FilterCapacityExceeded(ns string) {
	h.filterCapacityFull.WithLabelValues(ns).Inc()
}

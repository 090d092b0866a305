package easycache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// Components call them on hot paths.
type Hooks interface {
	// Acquire found the lock held by someone else.
	LockContended(name string)
	// Lock acquired; waited is zero for single attempts.
	LockAcquired(name string, waited time.Duration)
	// Release after a guarded op failed. The lock will expire on its own.
	LockReleaseFailed(name string, err error)

	// A duplicate or concurrent call was turned away.
	IdempotencyRejected(name string)
	// The idempotency marker could not be deleted; it will expire at TTL.
	IdempotencyCleanupFailed(name string, err error)

	CacheHit(key string)
	CacheNullHit(key string)
	CacheMiss(key string)
	// An entry was deleted on read.
	// reason ∈ {"corrupt", "value_decode", "kind_mismatch"}
	SelfHeal(key, reason string)
	// Writing a computed value (or null marker) back failed.
	CacheWriteFailed(key string, err error)

	// Put rejected because the approximate count reached capacity.
	FilterCapacityExceeded(namespace string)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) LockContended(string)                   {}
func (NopHooks) LockAcquired(string, time.Duration)     {}
func (NopHooks) LockReleaseFailed(string, error)        {}
func (NopHooks) IdempotencyRejected(string)             {}
func (NopHooks) IdempotencyCleanupFailed(string, error) {}
func (NopHooks) CacheHit(string)                        {}
func (NopHooks) CacheNullHit(string)                    {}
func (NopHooks) CacheMiss(string)                       {}
func (NopHooks) SelfHeal(string, string)                {}
func (NopHooks) CacheWriteFailed(string, error)         {}
func (NopHooks) FilterCapacityExceeded(string)          {}

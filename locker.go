package easycache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/easycache/internal/util"
	"github.com/unkn0wn-root/easycache/store"
)

type LockerOptions struct {
	// PollInterval between attempts in AcquireSpin. Default 10ms.
	PollInterval time.Duration
	Logger       Logger
	Hooks        Hooks
}

// Locker is a distributed mutual-exclusion lock. A lock is the key "LOCK:<name>";
// its existence means "held" and its TTL bounds the hold time, so a crashed
// holder's lock becomes acquirable again once the TTL elapses.
//
// Release is unconditional: any caller may release any lock.
type Locker struct {
	c     store.Client
	poll  time.Duration
	log   Logger
	hooks Hooks
}

func NewLocker(c store.Client, opts LockerOptions) (*Locker, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	if opts.PollInterval < 0 {
		return nil, invalidArg("poll interval %s must be >= 0", opts.PollInterval)
	}
	return &Locker{
		c:     c,
		poll:  coalesce(opts.PollInterval, defaultPollInterval),
		log:   coalesce[Logger](opts.Logger, NopLogger{}),
		hooks: coalesce[Hooks](opts.Hooks, NopHooks{}),
	}, nil
}

// Acquire makes a single attempt. It returns false without error when the lock
// is held by someone else.
func (l *Locker) Acquire(ctx context.Context, name string, hold time.Duration) (bool, error) {
	if hold <= 0 {
		return false, invalidArg("lock hold time %s must be > 0", hold)
	}
	ok, err := l.tryAcquire(ctx, name, hold)
	if err != nil {
		return false, err
	}
	if ok {
		l.hooks.LockAcquired(name, 0)
	} else {
		l.hooks.LockContended(name)
	}
	return ok, nil
}

func (l *Locker) tryAcquire(ctx context.Context, name string, hold time.Duration) (bool, error) {
	if hold < time.Millisecond {
		hold = time.Millisecond
	}
	key := util.LockKey(name)
	owner := uuid.NewString()
	ok, err := l.c.SetNX(ctx, key, []byte(owner), hold)
	if err != nil {
		return false, storeErr("setnx", key, err)
	}
	if ok {
		l.log.Debug("lock acquired", Fields{"lock": name, "owner": owner, "hold": hold})
	}
	return ok, nil
}

// AcquireSpin retries Acquire every poll interval until it succeeds or wait
// has elapsed. A store error stops the spin and is returned as is; a cancelled
// ctx returns ctx.Err().
func (l *Locker) AcquireSpin(ctx context.Context, name string, hold, wait time.Duration) (bool, error) {
	if hold <= 0 {
		return false, invalidArg("lock hold time %s must be > 0", hold)
	}
	if wait < 0 {
		return false, invalidArg("lock wait time %s must be >= 0", wait)
	}

	start := time.Now()
	deadline := start.Add(wait)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		ok, err := l.tryAcquire(ctx, name, hold)
		if err != nil {
			return false, err
		}
		if ok {
			l.hooks.LockAcquired(name, time.Since(start))
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.hooks.LockContended(name)
			l.log.Debug("lock spin timed out", Fields{"lock": name, "attempts": attempt, "wait": wait})
			return false, nil
		}

		sleep := min(l.poll, remaining)
		if timer == nil {
			timer = time.NewTimer(sleep)
		} else {
			timer.Reset(sleep)
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release deletes the lock key. Releasing a lock that is not held (or has
// already expired) reports false and no error.
func (l *Locker) Release(ctx context.Context, name string) (bool, error) {
	key := util.LockKey(name)
	n, err := l.c.Del(ctx, key)
	if err != nil {
		return false, storeErr("del", key, err)
	}
	return n > 0, nil
}

// Do acquires name with a single attempt, runs op and releases the lock on every
// exit path. It returns ErrLockUnavailable if the lock is held.
func (l *Locker) Do(ctx context.Context, name string, hold time.Duration, op func(context.Context) error) error {
	_, err := WithLock(ctx, l, name, hold, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoSpin is Do with AcquireSpin.
func (l *Locker) DoSpin(ctx context.Context, name string, hold, wait time.Duration, op func(context.Context) error) error {
	_, err := WithSpinLock(ctx, l, name, hold, wait, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// WithLock runs op while holding name. The lock is released when op returns,
// fails or panics.
func WithLock[T any](ctx context.Context, l *Locker, name string, hold time.Duration, op func(context.Context) (T, error)) (T, error) {
	ok, err := l.Acquire(ctx, name, hold)
	return runLocked(ctx, l, name, ok, err, op)
}

// WithSpinLock is WithLock with AcquireSpin.
func WithSpinLock[T any](ctx context.Context, l *Locker, name string, hold, wait time.Duration, op func(context.Context) (T, error)) (T, error) {
	ok, err := l.AcquireSpin(ctx, name, hold, wait)
	return runLocked(ctx, l, name, ok, err, op)
}

func runLocked[T any](ctx context.Context, l *Locker, name string, ok bool, err error, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrLockUnavailable
	}
	defer l.releaseQuietly(ctx, name)
	return op(ctx)
}

// releaseQuietly never masks the guarded op's outcome.
func (l *Locker) releaseQuietly(ctx context.Context, name string) {
	// the op may have cancelled ctx; the release still has to go out
	if _, err := l.Release(context.WithoutCancel(ctx), name); err != nil {
		l.log.Warn("lock release failed", Fields{"lock": name, "err": err})
		l.hooks.LockReleaseFailed(name, err)
	}
}

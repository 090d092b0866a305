package easycache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"pgregory.net/rapid"

	"github.com/unkn0wn-root/easycache/internal/util"
)

func newTestLocker(t *testing.T, b backend, h Hooks) *Locker {
	t.Helper()
	l, err := NewLocker(b.c, LockerOptions{PollInterval: 2 * time.Millisecond, Hooks: h})
	if err != nil {
		t.Fatalf("NewLocker: %v", err)
	}
	return l
}

// ==============================
// Acquire / Release
// ==============================

func TestLockAcquireRelease(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		h := newRecHooks()
		l := newTestLocker(t, b, h)

		if ok, err := l.Acquire(ctx, "job", 10*time.Second); err != nil || !ok {
			t.Fatalf("first acquire: ok=%v err=%v", ok, err)
		}
		if ok, err := l.Acquire(ctx, "job", 10*time.Second); err != nil || ok {
			t.Fatalf("second acquire must fail without error: ok=%v err=%v", ok, err)
		}
		if ok, _ := l.Acquire(ctx, "other", 10*time.Second); !ok {
			t.Fatalf("locks with different names are independent")
		}
		if released, err := l.Release(ctx, "job"); err != nil || !released {
			t.Fatalf("release: released=%v err=%v", released, err)
		}
		if released, err := l.Release(ctx, "job"); err != nil || released {
			t.Fatalf("releasing a free lock: released=%v err=%v", released, err)
		}
		if ok, _ := l.Acquire(ctx, "job", 10*time.Second); !ok {
			t.Fatalf("acquire after release should succeed")
		}
		if h.count("lock_acquired") != 3 || h.count("lock_contended") != 1 {
			t.Fatalf("hooks: %v", h.events)
		}
	})
}

func TestLockKeyLayout(t *testing.T) {
	b, m := newMemoryBackend(t)
	l := newTestLocker(t, b, nil)
	if ok, _ := l.Acquire(context.Background(), "nightly", 3*time.Second); !ok {
		t.Fatalf("acquire failed")
	}
	ttl, ok := m.TTL(util.LockKey("nightly"))
	if !ok || ttl <= 2*time.Second || ttl > 3*time.Second {
		t.Fatalf("lock key TTL = %v (present=%v)", ttl, ok)
	}
}

func TestLockExpiresAfterHold(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		l := newTestLocker(t, b, nil)

		if ok, _ := l.Acquire(ctx, "crashy", 2*time.Second); !ok {
			t.Fatalf("acquire failed")
		}
		b.advance(time.Second)
		if ok, _ := l.Acquire(ctx, "crashy", 2*time.Second); ok {
			t.Fatalf("lock should still be held")
		}
		b.advance(time.Second + 10*time.Millisecond)
		if ok, _ := l.Acquire(ctx, "crashy", 2*time.Second); !ok {
			t.Fatalf("lock should be acquirable after the hold elapsed")
		}
	})
}

func TestLockInvalidArguments(t *testing.T) {
	b, _ := newMemoryBackend(t)
	l := newTestLocker(t, b, nil)
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "x", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero hold: %v", err)
	}
	if _, err := l.AcquireSpin(ctx, "x", -time.Second, time.Second); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("negative hold: %v", err)
	}
	if _, err := l.AcquireSpin(ctx, "x", time.Second, -time.Second); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("negative wait: %v", err)
	}
	if _, err := NewLocker(nil, LockerOptions{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("nil client: %v", err)
	}
}

func TestLockStoreErrorIsStoreError(t *testing.T) {
	b, m := newMemoryBackend(t)
	l := newTestLocker(t, b, nil)
	boom := errors.New("dial tcp: connection refused")
	m.InjectError(boom)

	_, err := l.Acquire(context.Background(), "x", time.Second)
	var se *StoreError
	if !errors.As(err, &se) || !errors.Is(err, ErrStore) || !errors.Is(err, boom) {
		t.Fatalf("expected StoreError wrapping boom, got %v", err)
	}
	if se.Op != "setnx" || se.Key != "LOCK:x" {
		t.Fatalf("unexpected StoreError fields: %+v", se)
	}
}

// ==============================
// Spin
// ==============================

func TestAcquireSpinTimesOut(t *testing.T) {
	b, _ := newMemoryBackend(t)
	h := newRecHooks()
	l := newTestLocker(t, b, h)
	ctx := context.Background()

	_, _ = l.Acquire(ctx, "busy", time.Minute)
	start := time.Now()
	ok, err := l.AcquireSpin(ctx, "busy", time.Minute, 30*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("spin on held lock: ok=%v err=%v", ok, err)
	}
	if el := time.Since(start); el < 30*time.Millisecond {
		t.Fatalf("spin returned after %v, before the wait elapsed", el)
	}
	if h.count("lock_contended") != 1 {
		t.Fatalf("expected a single contention event for the spin, got %d", h.count("lock_contended"))
	}
}

func TestAcquireSpinZeroWaitIsSingleAttempt(t *testing.T) {
	b, _ := newMemoryBackend(t)
	l := newTestLocker(t, b, nil)
	ctx := context.Background()

	if ok, _ := l.AcquireSpin(ctx, "z", time.Second, 0); !ok {
		t.Fatalf("free lock with zero wait should be acquired")
	}
	if ok, err := l.AcquireSpin(ctx, "z", time.Second, 0); ok || err != nil {
		t.Fatalf("held lock with zero wait: ok=%v err=%v", ok, err)
	}
}

func TestAcquireSpinSucceedsAfterRelease(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		l := newTestLocker(t, b, nil)
		_, _ = l.Acquire(ctx, "handoff", time.Minute)

		go func() {
			time.Sleep(20 * time.Millisecond)
			_, _ = l.Release(context.Background(), "handoff")
		}()

		ok, err := l.AcquireSpin(ctx, "handoff", time.Minute, 5*time.Second)
		if err != nil || !ok {
			t.Fatalf("spin should win after release: ok=%v err=%v", ok, err)
		}
	})
}

func TestAcquireSpinStopsOnStoreError(t *testing.T) {
	b, m := newMemoryBackend(t)
	l := newTestLocker(t, b, nil)
	ctx := context.Background()
	_, _ = l.Acquire(ctx, "x", time.Minute)

	boom := errors.New("i/o timeout")
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.InjectError(boom)
	}()

	start := time.Now()
	ok, err := l.AcquireSpin(ctx, "x", time.Minute, 5*time.Second)
	if ok || !errors.Is(err, boom) || !errors.Is(err, ErrStore) {
		t.Fatalf("expected store error, ok=%v err=%v", ok, err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("store error should stop the spin early")
	}
}

func TestAcquireSpinHonorsContext(t *testing.T) {
	b, _ := newMemoryBackend(t)
	l := newTestLocker(t, b, nil)
	_, _ = l.Acquire(context.Background(), "x", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()
	ok, err := l.AcquireSpin(ctx, "x", time.Minute, 10*time.Second)
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, ok=%v err=%v", ok, err)
	}
}

// ==============================
// Scoped helpers
// ==============================

func TestWithLockReleasesOnError(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		l := newTestLocker(t, b, nil)
		opErr := errors.New("op failed")

		_, err := WithLock(ctx, l, "w", time.Minute, func(context.Context) (int, error) {
			return 0, opErr
		})
		if !errors.Is(err, opErr) {
			t.Fatalf("op error not propagated: %v", err)
		}
		if ok, _ := l.Acquire(ctx, "w", time.Minute); !ok {
			t.Fatalf("lock not released after failed op")
		}
	})
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	b, _ := newMemoryBackend(t)
	l := newTestLocker(t, b, nil)
	ctx := context.Background()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = l.Do(ctx, "p", time.Minute, func(context.Context) error { panic("boom") })
	}()

	if ok, _ := l.Acquire(ctx, "p", time.Minute); !ok {
		t.Fatalf("lock not released after panic")
	}
}

func TestWithLockReleasesAfterCancel(t *testing.T) {
	b, _ := newRedisBackend(t)
	l := newTestLocker(t, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := l.Do(ctx, "c", time.Minute, func(context.Context) error {
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if ok, _ := l.Acquire(context.Background(), "c", time.Minute); !ok {
		t.Fatalf("release must go out even when ctx was cancelled by the op")
	}
}

func TestWithLockUnavailable(t *testing.T) {
	b, _ := newMemoryBackend(t)
	l := newTestLocker(t, b, nil)
	ctx := context.Background()
	_, _ = l.Acquire(ctx, "held", time.Minute)

	called := false
	v, err := WithLock(ctx, l, "held", time.Minute, func(context.Context) (string, error) {
		called = true
		return "x", nil
	})
	if !errors.Is(err, ErrLockUnavailable) || called || v != "" {
		t.Fatalf("expected ErrLockUnavailable without running op: v=%q err=%v called=%v", v, err, called)
	}

	err = l.DoSpin(ctx, "held", time.Minute, 10*time.Millisecond, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrLockUnavailable) || called {
		t.Fatalf("DoSpin: err=%v called=%v", err, called)
	}
}

func TestWithLockReleaseFailureIsReported(t *testing.T) {
	b, m := newMemoryBackend(t)
	h := newRecHooks()
	l := newTestLocker(t, b, h)

	v, err := WithLock(context.Background(), l, "r", time.Minute, func(context.Context) (int, error) {
		m.InjectError(errors.New("network down"))
		return 42, nil
	})
	m.InjectError(nil)
	if err != nil || v != 42 {
		t.Fatalf("release failure must not mask the result: v=%d err=%v", v, err)
	}
	if h.count("lock_release_failed") != 1 {
		t.Fatalf("release failure not reported")
	}
}

func TestDoSpinMutualExclusion(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		l := newTestLocker(t, b, nil)

		var active, maxActive, runs atomic.Int32
		var g errgroup.Group
		for i := 0; i < 8; i++ {
			g.Go(func() error {
				return l.DoSpin(context.Background(), "critical", time.Minute, 10*time.Second, func(context.Context) error {
					n := active.Add(1)
					for {
						m := maxActive.Load()
						if n <= m || maxActive.CompareAndSwap(m, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					active.Add(-1)
					runs.Add(1)
					return nil
				})
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("DoSpin: %v", err)
		}
		if runs.Load() != 8 || maxActive.Load() != 1 {
			t.Fatalf("runs=%d maxActive=%d", runs.Load(), maxActive.Load())
		}
	})
}

// TestLockModel drives random acquire/release/advance sequences against a
// simple expiry model.
func TestLockModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b, _ := newMemoryBackend(t)
		l, err := NewLocker(b.c, LockerOptions{})
		if err != nil {
			rt.Fatalf("NewLocker: %v", err)
		}
		ctx := context.Background()

		var clock time.Duration
		expiry := map[string]time.Duration{}
		held := func(name string) bool {
			exp, ok := expiry[name]
			return ok && clock < exp
		}

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			name := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(rt, "name")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				hold := time.Duration(rapid.IntRange(1, 5).Draw(rt, "hold")) * time.Second
				ok, err := l.Acquire(ctx, name, hold)
				if err != nil {
					rt.Fatalf("acquire: %v", err)
				}
				if ok == held(name) {
					rt.Fatalf("acquire(%s)=%v but model held=%v", name, ok, held(name))
				}
				if ok {
					expiry[name] = clock + hold
				}
			case 1:
				released, err := l.Release(ctx, name)
				if err != nil {
					rt.Fatalf("release: %v", err)
				}
				if released != held(name) {
					rt.Fatalf("release(%s)=%v but model held=%v", name, released, held(name))
				}
				delete(expiry, name)
			case 2:
				d := time.Duration(rapid.IntRange(1, 3).Draw(rt, "advance")) * time.Second
				b.advance(d)
				clock += d
			}
		}
	})
}

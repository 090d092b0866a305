package easycache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/easycache/internal/util"
	"github.com/unkn0wn-root/easycache/store"
)

type GuardOptions struct {
	Logger Logger
	Hooks  Hooks
}

// Guard rejects concurrent or duplicate executions of a named operation.
//
// The first caller inside a window increments "idpt:<name>" to 1 (the same
// atomic step sets the window TTL) and runs the operation. Everyone else sees a
// count above 1 and gets ErrIdempotencyViolation. The first caller deletes the
// marker when the operation finishes, so a retry is possible right away; if it
// never does (process crash), the marker expires at the window TTL.
type Guard struct {
	c     store.Client
	log   Logger
	hooks Hooks
}

func NewGuard(c store.Client, opts GuardOptions) (*Guard, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	return &Guard{
		c:     c,
		log:   coalesce[Logger](opts.Logger, NopLogger{}),
		hooks: coalesce[Hooks](opts.Hooks, NopHooks{}),
	}, nil
}

// Do runs op unless another call for name is in flight within window.
func (g *Guard) Do(ctx context.Context, name string, window time.Duration, op func(context.Context) error) error {
	_, err := Guarded(ctx, g, name, window, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Guarded is Do for operations that produce a value. op's error is returned
// unchanged after the marker is removed.
func Guarded[T any](ctx context.Context, g *Guard, name string, window time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if window <= 0 {
		return zero, invalidArg("idempotency window %s must be > 0", window)
	}

	key := util.IdempotencyKey(name)
	n, err := g.c.IncrExpire(ctx, key, window)
	if err != nil {
		return zero, storeErr("incr", key, err)
	}
	if n > 1 {
		// not ours to delete; the first caller still owns the marker
		g.log.Debug("idempotency rejected", Fields{"name": name, "count": n})
		g.hooks.IdempotencyRejected(name)
		return zero, ErrIdempotencyViolation
	}

	defer g.cleanup(ctx, name, key)
	return op(ctx)
}

func (g *Guard) cleanup(ctx context.Context, name, key string) {
	if _, err := g.c.Del(context.WithoutCancel(ctx), key); err != nil {
		g.log.Warn("idempotency marker cleanup failed", Fields{"name": name, "err": err})
		g.hooks.IdempotencyCleanupFailed(name, storeErr("del", key, err))
	}
}

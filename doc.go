// Package easycache is a set of coordination and caching primitives built on
// a shared Redis-compatible store.
//
// Components:
//   - Locker: named mutual exclusion with a bounded hold time. Single attempt
//     (Acquire) or spin-until-deadline (AcquireSpin); WithLock / Do release on
//     every exit path.
//   - Guard: rejects duplicate or concurrent executions of a named operation
//     inside a time window.
//   - Aside[V] / AsideList[V]: cache-aside reads with null caching for "no value"
//     results and self-healing of unreadable entries.
//   - Filter: Bloom filters whose bits and config live in the store, so every
//     process sharing the store sees the same membership.
//   - store.Client: the remote capability surface. store/redis wraps go-redis;
//     store/memory is an in-process store with a controllable clock.
//
// Keys:
//
//	LOCK:<name>      - lock held while present; TTL = hold time
//	idpt:<name>      - idempotency counter; TTL = window
//	<ns>:<key>       - cache-aside entries (framed value, null or list)
//	bf:ns:<ns>       - Bloom filter bit array
//	bf:cfg:<ns>      - Bloom filter config (JSON)
//
// Read-through pattern:
//
//	u, ok, err := users.GetOrCompute(ctx, id, 0, 0, func(ctx context.Context) (User, bool, error) {
//		return db.FindUser(ctx, id) // ok=false caches "no such user" for the null TTL
//	})
//
// Errors from the store are wrapped in *StoreError and match ErrStore. Lock and
// idempotency cleanup failures never replace the guarded operation's result;
// they are logged and reported through Hooks.
package easycache

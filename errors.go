package easycache

import (
	"errors"
	"fmt"
)

// Contention and duplicates. Expected under load; callers usually retry later.
var (
	// ErrLockUnavailable is returned when a lock could not be acquired at once
	// or within the spin wait.
	ErrLockUnavailable = errors.New("easycache: lock unavailable")
	// ErrIdempotencyViolation is returned to every caller except the first one
	// inside an idempotency window.
	ErrIdempotencyViolation = errors.New("easycache: duplicate or concurrent execution rejected")
)

// Misuse.
var (
	ErrInvalidArgument  = errors.New("easycache: invalid argument")
	ErrFilterNotFound   = errors.New("easycache: bloom filter not found")
	ErrCapacityExceeded = errors.New("easycache: bloom filter capacity exceeded")
	ErrNilClient        = errors.New("easycache: nil store client")
)

// ErrStore matches every *StoreError via errors.Is.
var ErrStore = errors.New("easycache: store failure")

// StoreError wraps a failed or timed-out call to the remote store.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("easycache: store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("easycache: store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

func storeErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

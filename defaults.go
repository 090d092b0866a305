package easycache

import "time"

const (
	defaultPollInterval = 10 * time.Millisecond
	defaultTTL          = 60 * time.Second
	defaultNullTTL      = 5 * time.Second
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

package sloghook

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestKeysAreRedacted(t *testing.T) {
	h, buf := newHooks(Options{})
	h.CacheWriteFailed("user:42:email", errors.New("timeout"))
	out := buf.String()
	if strings.Contains(out, "user:42:email") {
		t.Fatalf("raw key leaked: %s", out)
	}
	if !strings.Contains(out, "easycache.cache_write_failed") || !strings.Contains(out, "timeout") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCacheEventsAreSampled(t *testing.T) {
	h, buf := newHooks(Options{CacheEvery: 5, Redact: func(s string) string { return s }})
	for i := 0; i < 10; i++ {
		h.CacheHit("k")
	}
	if n := strings.Count(buf.String(), "easycache.cache_hit"); n != 2 {
		t.Fatalf("expected 2 sampled lines, got %d", n)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.LockReleaseFailed("x", errors.New("e"))
	h.CacheMiss("k")
	h.FilterCapacityExceeded("ns")
}

package local

import (
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/easycache/codec"
)

func newFixed(t *testing.T) *Fixed {
	t.Helper()
	f, err := NewFixed(FixedConfig{Shards: 8, MaxEntriesInWindow: 128, MaxEntrySize: 64})
	if err != nil {
		t.Fatalf("NewFixed: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// ===== Fixed =====

func TestFixedTiersAreIndependent(t *testing.T) {
	f := newFixed(t)
	if err := f.Set(Minute, "k", []byte("m")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.Set(Day, "k", []byte("d")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if b, ok, _ := f.Get(Minute, "k"); !ok || string(b) != "m" {
		t.Fatalf("minute tier: got %q ok=%v", b, ok)
	}
	if b, ok, _ := f.Get(Day, "k"); !ok || string(b) != "d" {
		t.Fatalf("day tier: got %q ok=%v", b, ok)
	}
	if _, ok, _ := f.Get(Hour, "k"); ok {
		t.Fatalf("hour tier should be empty")
	}

	if err := f.Del(Minute, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, ok, _ := f.Get(Minute, "k"); ok {
		t.Fatalf("expected miss after delete")
	}
	if err := f.Del(Minute, "k"); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestFixedUnknownTier(t *testing.T) {
	f := newFixed(t)
	if err := f.Set(Tier(9), "k", nil); !errors.Is(err, ErrUnknownTier) {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
	if Day.Lifetime() != 24*time.Hour || Minute.String() != "minute" {
		t.Fatalf("unexpected tier metadata")
	}
}

func TestFixedLoadCachesValuesAndNulls(t *testing.T) {
	f := newFixed(t)
	calls := 0
	load := func() (string, bool, error) {
		calls++
		return "v", true, nil
	}
	for i := 0; i < 3; i++ {
		v, ok, err := Load(f, Hour, "present", codec.String{}, load)
		if err != nil || !ok || v != "v" {
			t.Fatalf("Load: v=%q ok=%v err=%v", v, ok, err)
		}
	}
	if calls != 1 {
		t.Fatalf("loader calls: got %d want 1", calls)
	}

	nulls := 0
	for i := 0; i < 3; i++ {
		_, ok, err := Load(f, Hour, "absent", codec.String{}, func() (string, bool, error) {
			nulls++
			return "", false, nil
		})
		if err != nil || ok {
			t.Fatalf("expected cached no-value, ok=%v err=%v", ok, err)
		}
	}
	if nulls != 1 {
		t.Fatalf("null loader calls: got %d want 1", nulls)
	}
	if _, ok, _ := f.Get(Hour, "absent"); ok {
		t.Fatalf("null entry must read as a miss through Get")
	}
}

func TestFixedLoadErrorsAreNotCached(t *testing.T) {
	f := newFixed(t)
	boom := errors.New("boom")
	if _, _, err := Load(f, Minute, "k", codec.String{}, func() (string, bool, error) {
		return "", false, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	v, ok, err := Load(f, Minute, "k", codec.String{}, func() (string, bool, error) { return "ok", true, nil })
	if err != nil || !ok || v != "ok" {
		t.Fatalf("retry after error: v=%q ok=%v err=%v", v, ok, err)
	}
}

// ===== Modules =====

func TestModulesSetGetDel(t *testing.T) {
	m := NewModules(ModulesConfig{})
	defer m.Close()

	if err := m.Set("users", "1", time.Minute, "ada"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok := m.Get("users", "1"); !ok || v != "ada" {
		t.Fatalf("get: %v %v", v, ok)
	}
	if _, ok := m.Get("orders", "1"); ok {
		t.Fatalf("unknown module should miss")
	}
	m.Del("users", "1")
	if _, ok := m.Get("users", "1"); ok {
		t.Fatalf("expected miss after Del")
	}
}

func TestModulesKeepFirstTTL(t *testing.T) {
	m := NewModules(ModulesConfig{})
	defer m.Close()

	_ = m.Set("a", "k", time.Minute, 1)
	_ = m.Set("a", "k2", time.Hour, 2)
	if ttl, ok := m.TTL("a"); !ok || ttl != time.Minute {
		t.Fatalf("module ttl: got %v ok=%v", ttl, ok)
	}
	if err := m.Set("b", "k", 0, 1); err == nil {
		t.Fatalf("expected error creating module with zero ttl")
	}
}

func TestModulesExpire(t *testing.T) {
	m := NewModules(ModulesConfig{})
	defer m.Close()

	_ = m.Set("short", "k", 50*time.Millisecond, "v")
	time.Sleep(150 * time.Millisecond)
	if _, ok := m.Get("short", "k"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestModulesGetOrLoadAndDrop(t *testing.T) {
	m := NewModules(ModulesConfig{})
	defer m.Close()

	calls := 0
	load := func() (any, bool, error) {
		calls++
		return nil, false, nil
	}
	for i := 0; i < 3; i++ {
		if _, ok, err := m.GetOrLoad("users", "ghost", time.Minute, load); ok || err != nil {
			t.Fatalf("expected cached no-value, ok=%v err=%v", ok, err)
		}
	}
	if calls != 1 {
		t.Fatalf("loader calls: got %d want 1", calls)
	}

	m.Drop("users")
	if _, ok := m.TTL("users"); ok {
		t.Fatalf("module should be gone after Drop")
	}
	_, _, _ = m.GetOrLoad("users", "ghost", time.Minute, load)
	if calls != 2 {
		t.Fatalf("expected reload after Drop, calls=%d", calls)
	}
}

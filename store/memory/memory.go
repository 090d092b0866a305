// Package memory is an in-process store.Client with TTLs and a controllable
// clock. It is meant for tests and single-process setups; nothing is shared
// across processes.
package memory

import (
	"context"
	"errors"
	"math/bits"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/unkn0wn-root/easycache/store"
)

var (
	ErrWrongType  = errors.New("memory store: operation against a key holding the wrong kind of value")
	ErrNotInteger = errors.New("memory store: value is not an integer")
	ErrClosed     = errors.New("memory store: closed")
)

type kind uint8

const (
	kindBytes kind = iota
	kindList
	kindZSet
)

type entry struct {
	kind kind
	val  []byte
	list [][]byte // head at index 0
	zset map[string]float64
	exp  time.Time // zero = no expiry
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	skew    time.Duration
	data    map[string]*entry
	failErr error
	closed  bool
}

var _ store.Client = (*Store)(nil)

func New() *Store {
	return &Store{data: make(map[string]*entry)}
}

// Advance moves the internal clock forward so TTLs can be tested without sleeping.
func (s *Store) Advance(d time.Duration) {
	s.mu.Lock()
	s.skew += d
	s.mu.Unlock()
}

// InjectError makes every following call fail with err until cleared with nil.
func (s *Store) InjectError(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := s.now()
	for _, e := range s.data {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// TTL returns the remaining time to live of key, or (0, false) if the key is
// missing or has no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil || e.exp.IsZero() {
		return 0, false
	}
	return e.exp.Sub(s.now()), true
}

func (s *Store) now() time.Time { return time.Now().Add(s.skew) }

func (e *entry) expired(now time.Time) bool {
	return !e.exp.IsZero() && !now.Before(e.exp)
}

// lookup returns the live entry for key, evicting it if expired. Caller holds mu.
func (s *Store) lookup(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(s.now()) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *Store) begin() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.failErr != nil {
		err := s.failErr
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := s.begin(); err != nil {
		return nil, false, err
	}
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return nil, false, nil
	}
	if e.kind != kindBytes {
		return nil, false, ErrWrongType
	}
	return append([]byte(nil), e.val...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.data[key] = &entry{kind: kindBytes, val: append([]byte(nil), value...), exp: s.expiry(ttl)}
	return nil
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.begin(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	if s.lookup(key) != nil {
		return false, nil
	}
	s.data[key] = &entry{kind: kindBytes, val: append([]byte(nil), value...), exp: s.expiry(ttl)}
	return true, nil
}

func (s *Store) Del(_ context.Context, keys ...string) (int64, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return s.del(keys...), nil
}

func (s *Store) del(keys ...string) int64 {
	var n int64
	for _, k := range keys {
		if s.lookup(k) != nil {
			delete(s.data, k)
			n++
		}
	}
	return n
}

func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return s.incr(key)
}

func (s *Store) incr(key string) (int64, error) {
	e := s.lookup(key)
	if e == nil {
		s.data[key] = &entry{kind: kindBytes, val: []byte("1")}
		return 1, nil
	}
	if e.kind != kindBytes {
		return 0, ErrWrongType
	}
	n, err := strconv.ParseInt(string(e.val), 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	n++
	e.val = strconv.AppendInt(e.val[:0], n, 10)
	return n, nil
}

func (s *Store) IncrExpire(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	n, err := s.incr(key)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if ttl <= 0 {
			ttl = time.Millisecond
		}
		s.data[key].exp = s.expiry(ttl)
	}
	return n, nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := s.begin(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.expire(key, ttl), nil
}

func (s *Store) expire(key string, ttl time.Duration) bool {
	e := s.lookup(key)
	if e == nil {
		return false
	}
	if ttl <= 0 {
		delete(s.data, key)
		return true
	}
	e.exp = s.expiry(ttl)
	return true
}

func (s *Store) GetBit(_ context.Context, key string, offset int64) (bool, error) {
	if err := s.begin(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.getBit(key, offset)
}

func (s *Store) getBit(key string, offset int64) (bool, error) {
	if offset < 0 {
		return false, errors.New("memory store: bit offset is not an integer or out of range")
	}
	e := s.lookup(key)
	if e == nil {
		return false, nil
	}
	if e.kind != kindBytes {
		return false, ErrWrongType
	}
	idx := offset >> 3
	if idx >= int64(len(e.val)) {
		return false, nil
	}
	return e.val[idx]&(0x80>>uint(offset&7)) != 0, nil
}

func (s *Store) SetBit(_ context.Context, key string, offset int64, on bool) (bool, error) {
	if err := s.begin(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.setBit(key, offset, on)
}

// setBit uses the same bit order as Redis: offset 0 is the most significant
// bit of the first byte.
func (s *Store) setBit(key string, offset int64, on bool) (bool, error) {
	if offset < 0 {
		return false, errors.New("memory store: bit offset is not an integer or out of range")
	}
	e := s.lookup(key)
	if e == nil {
		e = &entry{kind: kindBytes}
		s.data[key] = e
	}
	if e.kind != kindBytes {
		return false, ErrWrongType
	}
	idx := offset >> 3
	if need := idx + 1; need > int64(len(e.val)) {
		grown := make([]byte, need)
		copy(grown, e.val)
		e.val = grown
	}
	mask := byte(0x80 >> uint(offset&7))
	prev := e.val[idx]&mask != 0
	if on {
		e.val[idx] |= mask
	} else {
		e.val[idx] &^= mask
	}
	return prev, nil
}

func (s *Store) BitCount(_ context.Context, key string) (int64, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindBytes {
		return 0, ErrWrongType
	}
	var n int64
	for _, b := range e.val {
		n += int64(bits.OnesCount8(b))
	}
	return n, nil
}

// Exec applies cmds under one lock acquisition. A failing command aborts the
// batch; commands before it stay applied, as with a pipeline.
func (s *Store) Exec(_ context.Context, cmds []store.Cmd) ([]int64, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	out := make([]int64, len(cmds))
	for i, cmd := range cmds {
		switch cmd.Kind {
		case store.KindGetBit:
			on, err := s.getBit(cmd.Key, cmd.Offset)
			if err != nil {
				return nil, err
			}
			out[i] = b2i(on)
		case store.KindSetBit:
			prev, err := s.setBit(cmd.Key, cmd.Offset, cmd.On)
			if err != nil {
				return nil, err
			}
			out[i] = b2i(prev)
		case store.KindIncr:
			n, err := s.incr(cmd.Key)
			if err != nil {
				return nil, err
			}
			out[i] = n
		case store.KindExpire:
			out[i] = b2i(s.expire(cmd.Key, cmd.TTL))
		case store.KindDel:
			out[i] = s.del(cmd.Key)
		default:
			return nil, errors.New("memory store: unsupported pipelined command " + cmd.Kind.String())
		}
	}
	return out, nil
}

func (s *Store) LPush(_ context.Context, key string, values ...[]byte) (int64, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		e = &entry{kind: kindList}
		s.data[key] = e
	}
	if e.kind != kindList {
		return 0, ErrWrongType
	}
	for _, v := range values {
		e.list = append([][]byte{append([]byte(nil), v...)}, e.list...)
	}
	return int64(len(e.list)), nil
}

func (s *Store) RPop(_ context.Context, key string) ([]byte, bool, error) {
	if err := s.begin(); err != nil {
		return nil, false, err
	}
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return nil, false, nil
	}
	if e.kind != kindList {
		return nil, false, ErrWrongType
	}
	last := len(e.list) - 1
	v := e.list[last]
	e.list = e.list[:last]
	if len(e.list) == 0 {
		delete(s.data, key)
	}
	return v, true, nil
}

func (s *Store) ZAdd(_ context.Context, key string, score float64, member []byte) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		e = &entry{kind: kindZSet, zset: make(map[string]float64)}
		s.data[key] = e
	}
	if e.kind != kindZSet {
		return ErrWrongType
	}
	e.zset[string(member)] = score
	return nil
}

func (s *Store) ZRangeByScore(_ context.Context, key string, min, max float64) ([][]byte, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != kindZSet {
		return nil, ErrWrongType
	}
	type member struct {
		m     string
		score float64
	}
	var hits []member
	for m, sc := range e.zset {
		if sc >= min && sc <= max {
			hits = append(hits, member{m, sc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return hits[i].m < hits[j].m
	})
	out := make([][]byte, len(hits))
	for i, h := range hits {
		out[i] = []byte(h.m)
	}
	return out, nil
}

func (s *Store) ZRem(_ context.Context, key string, members ...[]byte) (int64, error) {
	if err := s.begin(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	e := s.lookup(key)
	if e == nil {
		return 0, nil
	}
	if e.kind != kindZSet {
		return 0, ErrWrongType
	}
	var n int64
	for _, m := range members {
		if _, ok := e.zset[string(m)]; ok {
			delete(e.zset, string(m))
			n++
		}
	}
	if len(e.zset) == 0 {
		delete(s.data, key)
	}
	return n, nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Package fragfake provides a call-counting fragment cache for tests of
// code that resolves fields through fragcache.
package fragfake

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goforj/fragcache"
)

// Op identifies a store operation for assertions.
type Op string

const (
	OpGet        Op = "get"
	OpSet        Op = "set"
	OpExists     Op = "exists"
	OpDelete     Op = "delete"
	OpDeleteMany Op = "delete_many"
	OpFlush      Op = "flush"
	OpKeys       Op = "keys"
)

// Fake exposes a deterministic in-memory store plus assertion helpers for tests.
// It wraps the memory store so no external services are needed.
type Fake struct {
	cache  *fragcache.Cache
	store  *countingStore
	counts map[Op]map[string]int
	mu     sync.Mutex
}

// New creates a Fake using an in-memory store. Cache options are passed
// through to fragcache.New.
func New(opts ...fragcache.CacheOption) *Fake {
	store := &countingStore{inner: fragcache.NewMemoryStore(context.Background())}
	f := &Fake{
		store:  store,
		counts: make(map[Op]map[string]int),
	}
	store.onCount = f.record
	c, err := fragcache.New(store, opts...)
	if err != nil {
		panic("fragfake: " + err.Error())
	}
	f.cache = c
	return f
}

// Cache returns the cache facade to inject into code under test.
func (f *Fake) Cache() *fragcache.Cache { return f.cache }

// Store returns the counting store behind the cache.
func (f *Fake) Store() fragcache.Store { return f.store }

// Reset clears recorded counts.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
}

// AssertCalled verifies key was touched by op the expected number of times.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for an op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op][key]
}

// Total returns total calls for an op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, v := range f.counts[op] {
		sum += v
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

// countingStore wraps a Store to record calls.
type countingStore struct {
	inner   fragcache.Store
	onCount func(Op, string)
}

func (s *countingStore) Driver() fragcache.Driver { return s.inner.Driver() }

func (s *countingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.bump(OpGet, key)
	return s.inner.Get(ctx, key)
}

func (s *countingStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	s.bump(OpSet, key)
	return s.inner.Set(ctx, key, val, ttl)
}

func (s *countingStore) Exists(ctx context.Context, key string) (bool, error) {
	s.bump(OpExists, key)
	return s.inner.Exists(ctx, key)
}

func (s *countingStore) Delete(ctx context.Context, key string) error {
	s.bump(OpDelete, key)
	return s.inner.Delete(ctx, key)
}

func (s *countingStore) DeleteMany(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		s.bump(OpDeleteMany, k)
	}
	return s.inner.DeleteMany(ctx, keys...)
}

func (s *countingStore) Flush(ctx context.Context) error {
	s.bump(OpFlush, "")
	return s.inner.Flush(ctx)
}

func (s *countingStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	s.bump(OpKeys, prefix)
	lister, ok := s.inner.(fragcache.KeyLister)
	if !ok {
		return nil, fragcache.ErrPatternUnsupported
	}
	return lister.KeysWithPrefix(ctx, prefix)
}

func (s *countingStore) bump(op Op, key string) {
	if s.onCount != nil {
		s.onCount(op, key)
	}
}

package fragcachetest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

// Options configures shared store contract checks.
type Options struct {
	// CaseName is used to namespace keys. Defaults to t.Name().
	CaseName string
	// NullSemantics enables relaxed expectations for the null store.
	NullSemantics bool
	// SkipCloneCheck disables the "get returns a cloned value" assertion.
	SkipCloneCheck bool
	// TTL controls the expiry duration used in TTL tests.
	TTL time.Duration
	// TTLWait is how long the harness waits for expiry to occur.
	TTLWait time.Duration
	// SkipFlush disables the flush assertion for drivers where it is expensive or unavailable.
	SkipFlush bool
}

// Store is the contract exercised by RunStoreContract. fragcache.Store
// satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys ...string) error
	Flush(ctx context.Context) error
}

// KeyLister mirrors fragcache.KeyLister. When the store implements it the
// prefix enumeration checks run too.
type KeyLister interface {
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// RunStoreContract runs a backend-agnostic store contract suite.
func RunStoreContract(t *testing.T, store Store, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 120 * time.Millisecond
	}

	ctx := context.Background()
	base := sanitize(caseName)
	key := func(s string) string {
		return base + "/" + s
	}

	// Set/Get round-trip.
	if err := store.Set(ctx, key("alpha"), []byte("value"), time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, key("alpha"))
	if err != nil {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if opts.NullSemantics {
		if ok {
			t.Fatalf("expected miss for null semantics")
		}
	} else {
		if !ok || string(body) != "value" {
			t.Fatalf("unexpected get result: ok=%v body=%q err=%v", ok, string(body), err)
		}
		if !opts.SkipCloneCheck {
			body[0] = 'X'
			body2, ok2, err2 := store.Get(ctx, key("alpha"))
			if err2 != nil || !ok2 || string(body2) != "value" {
				t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok2, string(body2), err2)
			}
		}
	}

	// Entries holding an encoded nil or nothing at all still exist.
	for _, v := range [][]byte{[]byte("null"), {}} {
		k := key(fmt.Sprintf("nil-%d", len(v)))
		if err := store.Set(ctx, k, v, time.Second); err != nil {
			t.Fatalf("set %q failed: %v", k, err)
		}
		exists, err := store.Exists(ctx, k)
		if err != nil {
			t.Fatalf("exists %q failed: %v", k, err)
		}
		if exists == opts.NullSemantics {
			t.Fatalf("unexpected exists=%v for %q", exists, k)
		}
		got, ok, err := store.Get(ctx, k)
		if err != nil {
			t.Fatalf("get %q failed: %v", k, err)
		}
		if !opts.NullSemantics && (!ok || string(got) != string(v)) {
			t.Fatalf("expected %q round-trip, got ok=%v body=%q", v, ok, got)
		}
	}
	if exists, err := store.Exists(ctx, key("absent")); err != nil || exists {
		t.Fatalf("expected absent key to not exist; exists=%v err=%v", exists, err)
	}

	// TTL expiry.
	if err := store.Set(ctx, key("ttl"), []byte("v"), ttl); err != nil {
		t.Fatalf("set ttl failed: %v", err)
	}
	if err := waitForMiss(ctx, store, key("ttl"), wait); err != nil {
		t.Fatalf("expected ttl expiry: %v", err)
	}

	// Prefix enumeration keeps sibling families apart.
	if lister, ok := store.(KeyLister); ok {
		for _, k := range []string{"user/5/abc", "user/5/def", "user/50/ghi", "user/6/xyz"} {
			if err := store.Set(ctx, key(k), []byte("1"), time.Second); err != nil {
				t.Fatalf("set %q failed: %v", k, err)
			}
		}
		got, err := lister.KeysWithPrefix(ctx, key("user/5/"))
		if err != nil {
			t.Fatalf("keys with prefix failed: %v", err)
		}
		want := []string{key("user/5/abc"), key("user/5/def")}
		if opts.NullSemantics {
			want = nil
		}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("unexpected keys: got %v want %v", got, want)
		}
		if err := store.DeleteMany(ctx, key("user/5/abc"), key("user/5/def"), key("user/50/ghi"), key("user/6/xyz")); err != nil {
			t.Fatalf("cleanup failed: %v", err)
		}
	}

	// Delete and DeleteMany.
	if err := store.Set(ctx, key("a"), []byte("1"), time.Second); err != nil {
		t.Fatalf("set a failed: %v", err)
	}
	if err := store.Set(ctx, key("b"), []byte("2"), time.Second); err != nil {
		t.Fatalf("set b failed: %v", err)
	}
	if err := store.Delete(ctx, key("a")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.DeleteMany(ctx, key("b"), key("missing")); err != nil {
		t.Fatalf("delete many failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, key("a")); err != nil || ok {
		t.Fatalf("expected key a deleted; ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Get(ctx, key("b")); err != nil || ok {
		t.Fatalf("expected key b deleted; ok=%v err=%v", ok, err)
	}

	// Flush.
	if !opts.SkipFlush {
		if err := store.Set(ctx, key("flush"), []byte("x"), time.Second); err != nil {
			t.Fatalf("set flush failed: %v", err)
		}
		if err := store.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := store.Get(ctx, key("flush")); err != nil || ok {
			t.Fatalf("expected flush to clear key; ok=%v err=%v", ok, err)
		}
	}
}

func waitForMiss(ctx context.Context, store Store, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		_, ok, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	_, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("key %q still present after %s", key, wait)
	}
	return nil
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

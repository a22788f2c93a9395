package fragcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goforj/fragcache/fragcachetest"
)

var testEncryptionKey = []byte("01234567890123456789012345678901")

func TestEncodeValueRespectsLimitEqualsLen(t *testing.T) {
	out, err := encodeValue(CompressionNone, 3, []byte("abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != "abc" {
		t.Fatalf("unexpected output: %s", string(out))
	}
}

func TestDecodeValuePassThrough(t *testing.T) {
	for _, in := range []string{"plain", "tiny", "null", ""} {
		out, err := decodeValue([]byte(in))
		if err != nil {
			t.Fatalf("decode %q err: %v", in, err)
		}
		if string(out) != in {
			t.Fatalf("expected passthrough for %q, got %q", in, out)
		}
	}
}

func TestEncodeValueGzipSizeChecks(t *testing.T) {
	if _, err := encodeValue(CompressionGzip, 1, []byte("toolong")); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected size error, got %v", err)
	}
	// limit small enough to fail after the gzip header is added.
	if _, err := encodeValue(CompressionGzip, 2, []byte("x")); !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestDecodeValueCorrupt(t *testing.T) {
	_, err := decodeValue([]byte("CMP1gnotgzip"))
	if !errors.Is(err, ErrCorruptCompression) {
		t.Fatalf("expected corrupt error, got %v", err)
	}
	if _, err := decodeValue([]byte("CMP1z???")); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("expected unsupported codec, got %v", err)
	}
	if _, err := encodeValue("weird", 0, []byte("x")); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("expected unsupported codec error")
	}
}

func TestShapingStoreGzipRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newShapingStore(newMemoryStore(defaultCacheTTL, defaultMemoryCleanupInterval), CompressionGzip, 0)

	val := []byte(`{"viewer":{"name":"Alice"}}`)
	if err := store.Set(ctx, "k", val, time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(got) != string(val) {
		t.Fatalf("get failed: ok=%v err=%v val=%s", ok, err, string(got))
	}
}

func TestShapingStoreDecompressesOnlyWhenPrefixed(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryStore(defaultCacheTTL, defaultMemoryCleanupInterval).(*memoryStore)
	mem.cache.Set("k", []byte("raw"), time.Minute)
	store := newShapingStore(mem, CompressionGzip, 0)

	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(got) != "raw" {
		t.Fatalf("unexpected get: ok=%v err=%v val=%s", ok, err, string(got))
	}
}

func TestShapingStoreSizeLimit(t *testing.T) {
	store := newShapingStore(newMemoryStore(defaultCacheTTL, defaultMemoryCleanupInterval), CompressionNone, 5)
	err := store.Set(context.Background(), "k", []byte("toolong"), time.Minute)
	if !errors.Is(err, ErrValueTooLarge) {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestEncryptingStoreDecryptError(t *testing.T) {
	base := newMemoryStore(defaultCacheTTL, defaultMemoryCleanupInterval)
	store, err := newEncryptingStore(base, testEncryptionKey)
	if err != nil {
		t.Fatalf("encrypting store: %v", err)
	}
	ctx := context.Background()
	if err := store.Set(ctx, "k", []byte("secret"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	raw, _, _ := base.Get(ctx, "k")
	if string(raw) == "secret" {
		t.Fatalf("expected ciphertext at rest")
	}
	base.(*memoryStore).cache.Set("k", []byte("ENC1bad"), time.Minute)
	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected decrypt error, got %v", err)
	}
}

func TestEncryptingStoreKeyHandling(t *testing.T) {
	base := newMemoryStore(defaultCacheTTL, defaultMemoryCleanupInterval)
	if _, err := newEncryptingStore(base, []byte("short")); !errors.Is(err, ErrEncryptionKey) {
		t.Fatalf("expected key error, got %v", err)
	}
	store, err := newEncryptingStore(base, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if store != base {
		t.Fatalf("expected identity when no key")
	}
}

func TestDecoratedStoresKeepContract(t *testing.T) {
	ctx := context.Background()
	store := NewStoreWith(ctx, DriverMemory,
		WithCompression(CompressionGzip),
		WithMaxValueBytes(1<<20),
		WithEncryptionKey(testEncryptionKey),
	)
	if _, ok := store.(*shapingStore); !ok {
		t.Fatalf("expected shaping wrapper, got %T", store)
	}
	if _, ok := store.(KeyLister); !ok {
		t.Fatalf("expected decorated store to list keys")
	}
	fragcachetest.RunStoreContract(t, store, fragcachetest.Options{SkipCloneCheck: true})
}

func TestDecoratorReportsUnsupportedListing(t *testing.T) {
	store := newShapingStore(listlessStore{newNullStore()}, CompressionGzip, 0)
	_, err := store.(KeyLister).KeysWithPrefix(context.Background(), "graphql/")
	if !errors.Is(err, ErrPatternUnsupported) {
		t.Fatalf("expected ErrPatternUnsupported, got %v", err)
	}
}

// listlessStore hides the KeyLister implementation of the wrapped store.
type listlessStore struct {
	inner Store
}

func (s listlessStore) Driver() Driver { return s.inner.Driver() }
func (s listlessStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, key)
}
func (s listlessStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, key, value, ttl)
}
func (s listlessStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.inner.Exists(ctx, key)
}
func (s listlessStore) Delete(ctx context.Context, key string) error { return s.inner.Delete(ctx, key) }
func (s listlessStore) DeleteMany(ctx context.Context, keys ...string) error {
	return s.inner.DeleteMany(ctx, keys...)
}
func (s listlessStore) Flush(ctx context.Context) error { return s.inner.Flush(ctx) }

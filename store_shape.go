package fragcache

import (
	"context"
	"io"
	"time"
)

// wrappedStore forwards the optional store capabilities of a decorated store.
type wrappedStore struct {
	inner Store
}

func (w wrappedStore) Driver() Driver { return w.inner.Driver() }

func (w wrappedStore) Exists(ctx context.Context, key string) (bool, error) {
	return w.inner.Exists(ctx, key)
}

func (w wrappedStore) Delete(ctx context.Context, key string) error {
	return w.inner.Delete(ctx, key)
}

func (w wrappedStore) DeleteMany(ctx context.Context, keys ...string) error {
	return w.inner.DeleteMany(ctx, keys...)
}

func (w wrappedStore) Flush(ctx context.Context) error {
	return w.inner.Flush(ctx)
}

func (w wrappedStore) Ready(ctx context.Context) error {
	if r, ok := w.inner.(Readier); ok {
		return r.Ready(ctx)
	}
	return nil
}

func (w wrappedStore) Close() error {
	if c, ok := w.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (w wrappedStore) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	lister, ok := w.inner.(KeyLister)
	if !ok {
		return nil, ErrPatternUnsupported
	}
	return lister.KeysWithPrefix(ctx, prefix)
}

// shapingStore enforces compression and size limits on top of any Store.
type shapingStore struct {
	wrappedStore
	codec CompressionCodec
	max   int
}

func newShapingStore(inner Store, codec CompressionCodec, max int) Store {
	if (codec == CompressionNone || codec == "") && max <= 0 {
		return inner
	}
	return &shapingStore{wrappedStore: wrappedStore{inner: inner}, codec: codec, max: max}
}

func (s *shapingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return body, ok, err
	}
	decoded, err := decodeValue(body)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

func (s *shapingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	encoded, err := encodeValue(s.codec, s.max, value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, encoded, ttl)
}

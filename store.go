package fragcache

import (
	"context"
	"time"
)

// Store is the key-value contract fragments are persisted through.
//
// Exists must report true for a key whose stored value encodes nil; that is
// what lets a cached nil be told apart from a missing entry.
type Store interface {
	Driver() Driver
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys ...string) error
	Flush(ctx context.Context) error
}

// KeyLister is implemented by stores that can enumerate keys by prefix.
// Pattern invalidation is only available on stores that implement it.
type KeyLister interface {
	KeysWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Readier is implemented by stores that can report a failed construction.
type Readier interface {
	Ready(ctx context.Context) error
}

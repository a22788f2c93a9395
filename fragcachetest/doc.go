// Package fragcachetest provides reusable store contract tests for
// fragcache.Store implementations.
//
// The package declares its own structural Store interface so store tests
// inside package fragcache can use it without an import cycle.
//
// Example pattern:
//
//	func TestRedisStoreContract(t *testing.T) {
//		client := newTestRedisClient(t)
//		store := fragcache.NewRedisStore(ctx, client, fragcache.WithPrefix("test"))
//
//		// Namespace keys per test and tune TTL waits for backend semantics as needed.
//		fragcachetest.RunStoreContract(t, store, fragcachetest.Options{
//			CaseName: t.Name(),
//			TTL:      time.Second,
//			TTLWait:  1500 * time.Millisecond,
//		})
//	}
package fragcachetest

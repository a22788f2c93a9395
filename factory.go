package fragcache

import (
	"context"
	"fmt"
)

// NewStore returns a concrete store for the requested driver, wrapped with
// compression and encryption when configured. Construction failures are
// reported through an error-carrying store whose Ready method returns the
// failure; New rejects such stores.
//
// Example: select driver explicitly
//
//	ctx := context.Background()
//	store := fragcache.NewStore(ctx, fragcache.StoreConfig{
//		Driver: fragcache.DriverMemory,
//	})
//	fmt.Println(store.Driver()) // memory
func NewStore(ctx context.Context, cfg StoreConfig) Store {
	cfg = cfg.withDefaults()
	store, err := newBackend(ctx, cfg)
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: err}
	}
	store, err = newEncryptingStore(store, cfg.EncryptionKey)
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: err}
	}
	return newShapingStore(store, cfg.Compression, cfg.MaxValueBytes)
}

func newBackend(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Driver {
	case DriverNull:
		return newNullStore(), nil
	case DriverMemory:
		return newMemoryStore(cfg.DefaultTTL, cfg.MemoryCleanupInterval), nil
	case DriverRedis:
		if cfg.RedisClient == nil {
			return nil, fmt.Errorf("redis driver requires a client")
		}
		return newRedisStore(cfg.RedisClient, cfg.DefaultTTL, cfg.Prefix), nil
	case DriverFile:
		return newFileStore(cfg.FileDir, cfg.DefaultTTL)
	case DriverSQL:
		return newSQLStore(cfg)
	case DriverNATS:
		if cfg.NATSKeyValue == nil {
			return nil, fmt.Errorf("nats driver requires a key-value bucket")
		}
		return newNATSStore(cfg.NATSKeyValue, cfg.DefaultTTL, cfg.Prefix, cfg.NATSBucketTTL), nil
	case DriverDynamo:
		return newDynamoStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NewStoreWith builds a store using a driver and a set of functional options.
// Required data (e.g., Redis client) must be provided via options when needed.
//
// Example: redis store (options)
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
//	store := fragcache.NewStoreWith(ctx, fragcache.DriverRedis,
//		fragcache.WithRedisClient(redisClient),
//		fragcache.WithPrefix("api"),
//	)
func NewStoreWith(ctx context.Context, driver Driver, opts ...StoreOption) Store {
	cfg := StoreConfig{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewStore(ctx, cfg)
}

// NewMemoryStore is a convenience for an in-process store.
func NewMemoryStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverMemory, opts...)
}

// NewRedisStore is a convenience for a redis-backed store. Redis client is required.
func NewRedisStore(ctx context.Context, client RedisClient, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverRedis, append([]StoreOption{WithRedisClient(client)}, opts...)...)
}

// NewFileStore is a convenience for a filesystem-backed store.
func NewFileStore(ctx context.Context, dir string, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverFile, append([]StoreOption{WithFileDir(dir)}, opts...)...)
}

// NewSQLStore is a convenience for a database/sql backed store.
func NewSQLStore(ctx context.Context, driverName, dsn string, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverSQL, append([]StoreOption{WithSQL(driverName, dsn, "")}, opts...)...)
}

// NewNATSStore is a convenience for a JetStream key-value backed store.
func NewNATSStore(ctx context.Context, kv NATSKeyValue, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverNATS, append([]StoreOption{WithNATSKeyValue(kv)}, opts...)...)
}

// NewDynamoStore is a convenience for a DynamoDB backed store.
func NewDynamoStore(ctx context.Context, opts ...StoreOption) Store {
	return NewStoreWith(ctx, DriverDynamo, opts...)
}

// NewNullStore returns a store that never holds anything.
func NewNullStore() Store {
	return newNullStore()
}

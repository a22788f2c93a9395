package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/goforj/fragcache"
)

const defaultBucketTTL = 5 * time.Minute

// StoreConfig converts the store section into fragcache.StoreConfig.
// Connection-backed clients (redis, nats) are not created here.
func (c *Config) StoreConfig() fragcache.StoreConfig {
	s := c.Store
	cfg := fragcache.StoreConfig{
		Driver:                fragcache.Driver(s.Driver),
		DefaultTTL:            c.DefaultTTL.std(),
		MemoryCleanupInterval: s.Memory.CleanupInterval.std(),
		Prefix:                s.Prefix,
		FileDir:               s.File.Dir,
		SQLDriverName:         s.SQL.Driver,
		SQLDSN:                s.SQL.DSN,
		SQLTable:              s.SQL.Table,
		NATSBucketTTL:         s.NATS.BucketTTL,
		DynamoRegion:          s.Dynamo.Region,
		DynamoEndpoint:        s.Dynamo.Endpoint,
		DynamoTable:           s.Dynamo.Table,
		Compression:           fragcache.CompressionCodec(s.Compression),
		MaxValueBytes:         s.MaxValueBytes,
	}
	if s.EncryptionKey != "" {
		cfg.EncryptionKey = []byte(s.EncryptionKey)
	}
	return cfg
}

// Open builds the store and the cache. The returned close function releases
// any connection Open created and must be called once the cache is done.
func (c *Config) Open(ctx context.Context, log *zap.Logger) (*fragcache.Cache, func() error, error) {
	if log == nil {
		log = zap.NewNop()
	}
	storeCfg := c.StoreConfig()
	var closers []func() error

	closeAll := func() error {
		var errs error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i]())
		}
		return errs
	}

	switch storeCfg.Driver {
	case fragcache.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.Store.Redis.Addr,
			Username: c.Store.Redis.Username,
			Password: c.Store.Redis.Password,
			DB:       c.Store.Redis.DB,
		})
		closers = append(closers, client.Close)
		storeCfg.RedisClient = client
	case fragcache.DriverNATS:
		kv, closeNATS, err := openNATS(c.Store.NATS, c.DefaultTTL.std())
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, closeNATS)
		storeCfg.NATSKeyValue = kv
	}

	store := fragcache.NewStore(ctx, storeCfg)
	if closer, ok := store.(io.Closer); ok {
		closers = append(closers, closer.Close)
	}
	cache, err := fragcache.New(store,
		fragcache.WithNamespace(c.Namespace),
		fragcache.WithSchemaKey(c.SchemaKey),
		fragcache.WithDefaultTTL(c.DefaultTTL.std()),
		fragcache.WithDefaultOptions(c.FragmentDefaults()),
		fragcache.WithLogger(log),
	)
	if err != nil {
		return nil, nil, multierr.Append(err, closeAll())
	}
	log.Debug("fragment cache opened",
		zap.String("driver", string(store.Driver())),
		zap.String("namespace", cache.Keys().Namespace()),
	)
	return cache, closeAll, nil
}

func openNATS(cfg NATSConfig, ttl time.Duration) (nats.KeyValue, func() error, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "fragments"
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	closeNATS := func() error { return nc.Drain() }
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kvCfg := &nats.KeyValueConfig{Bucket: bucket}
		if cfg.BucketTTL {
			if ttl <= 0 {
				ttl = defaultBucketTTL
			}
			kvCfg.TTL = ttl
		}
		kv, err = js.CreateKeyValue(kvCfg)
	}
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("nats bucket %s: %w", bucket, err)
	}
	return kv, closeNATS, nil
}

func (d Duration) std() time.Duration { return time.Duration(d) }

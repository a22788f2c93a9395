package fragcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultWriteConcurrency = 8

// CacheConfig controls how a Cache is constructed.
type CacheConfig struct {
	// Namespace prefixes every key. Defaults to "graphql".
	Namespace string
	// SchemaKey versions the whole key space; changing it orphans old entries.
	SchemaKey string
	// Defaults are merged into the options of every fragment.
	Defaults Options
	// DefaultTTL applies when neither the fragment nor Defaults set a TTL.
	DefaultTTL time.Duration
	Codec      Codec
	Logger     *zap.Logger
	Observer   Observer
	// WriteConcurrency bounds the parallel writes issued by Finish.
	WriteConcurrency int
}

// CacheOption mutates a CacheConfig.
type CacheOption func(CacheConfig) CacheConfig

// WithNamespace sets the prefix of every key. Defaults to "graphql".
func WithNamespace(ns string) CacheOption {
	return func(c CacheConfig) CacheConfig {
		c.Namespace = ns
		return c
	}
}

// WithSchemaKey versions the key space; entries built under another schema
// key are never read.
func WithSchemaKey(key string) CacheOption {
	return func(c CacheConfig) CacheConfig {
		c.SchemaKey = key
		return c
	}
}

// WithDefaultOptions sets options merged into every fragment.
func WithDefaultOptions(opts Options) CacheOption {
	return func(c CacheConfig) CacheConfig {
		c.Defaults = opts
		return c
	}
}

// WithDefaultTTL sets the expiry used when neither the fragment nor the
// default options set one.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c CacheConfig) CacheConfig {
		c.DefaultTTL = ttl
		return c
	}
}

// WithCodec replaces the JSON codec used to store fragment values.
func WithCodec(codec Codec) CacheOption {
	return func(c CacheConfig) CacheConfig {
		c.Codec = codec
		return c
	}
}

// WithLogger sets the zap logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) CacheOption {
	return func(c CacheConfig) CacheConfig {
		c.Logger = log
		return c
	}
}

// WithObserver attaches an observer to receive operation events.
func WithObserver(o Observer) CacheOption {
	return func(c CacheConfig) CacheConfig {
		c.Observer = o
		return c
	}
}

// WithWriteConcurrency bounds the parallel writes issued by Finish.
func WithWriteConcurrency(n int) CacheOption {
	return func(c CacheConfig) CacheConfig {
		c.WriteConcurrency = n
		return c
	}
}

func (c CacheConfig) withDefaults() CacheConfig {
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultCacheTTL
	}
	if c.Codec == nil {
		c.Codec = JSONCodec{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.WriteConcurrency <= 0 {
		c.WriteConcurrency = defaultWriteConcurrency
	}
	return c
}

// Cache is the process-wide fragment cache. It is read-only after New and
// safe for concurrent use by any number of requests.
type Cache struct {
	store      Store
	keys       KeyBuilder
	defaults   Options
	defaultTTL time.Duration
	codec      Codec
	log        *zap.Logger
	observer   Observer
	writeLimit int
}

// New binds a cache to store. A nil store or one whose construction failed
// is rejected here rather than on first use.
//
// Example: memory-backed fragment cache
//
//	ctx := context.Background()
//	c, err := fragcache.New(fragcache.NewMemoryStore(ctx),
//		fragcache.WithDefaultTTL(10*time.Minute),
//	)
func New(store Store, opts ...CacheOption) (*Cache, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if r, ok := store.(Readier); ok {
		if err := r.Ready(context.Background()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, store.Driver(), err)
		}
	}
	var cfg CacheConfig
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	cfg = cfg.withDefaults()
	if err := validateLogicalKey(cfg.Namespace); err != nil {
		return nil, fmt.Errorf("namespace: %w", err)
	}
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default options: %w", err)
	}
	return &Cache{
		store:      store,
		keys:       NewKeyBuilder(cfg.Namespace, cfg.SchemaKey),
		defaults:   cfg.Defaults.merge(Options{}),
		defaultTTL: cfg.DefaultTTL,
		codec:      cfg.Codec,
		log:        cfg.Logger.With(zap.String("driver", string(store.Driver()))),
		observer:   cfg.Observer,
		writeLimit: cfg.WriteConcurrency,
	}, nil
}

// Store returns the underlying store implementation.
func (c *Cache) Store() Store { return c.store }

// Driver reports the underlying store driver.
func (c *Cache) Driver() Driver { return c.store.Driver() }

// Keys returns the key builder used by the cache.
func (c *Cache) Keys() KeyBuilder { return c.keys }

// Fragment binds a fragment to the field exec is currently resolving.
func (c *Cache) Fragment(exec ExecutionContext, opts Options) (*Fragment, error) {
	if exec == nil {
		return nil, ErrNoContext
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Fragment{
		cache: c,
		exec:  exec,
		opts:  opts.merge(c.defaults),
		path:  append(Path(nil), exec.Path()...),
	}, nil
}

// Exists reports whether the store holds an entry for key, nil values
// included.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := c.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("fragcache: exists %s: %w", key, err)
	}
	return ok, nil
}

// DeleteCaches removes every entry derived from any of the logical keys and
// returns how many store keys were deleted. Invalid keys are reported in the
// aggregated error; the valid ones are still processed.
func (c *Cache) DeleteCaches(ctx context.Context, keys ...string) (int, error) {
	start := time.Now()
	var (
		valid []string
		errs  error
	)
	for _, k := range keys {
		if err := validateLogicalKey(k); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		valid = append(valid, k)
	}
	n := 0
	if len(valid) > 0 {
		f := &Fragment{cache: c, opts: Options{Keys: valid}}
		deleted, err := f.DeletePattern(ctx)
		n = deleted
		errs = multierr.Append(errs, err)
	}
	label := strings.Join(keys, ",")
	c.observe(ctx, OpInvalidate, label, n > 0, errs, start)
	if errs != nil {
		c.log.Warn("fragment invalidation failed", zap.Strings("keys", keys), zap.Int("deleted", n), zap.Error(errs))
		return n, errs
	}
	c.log.Info("fragments invalidated", zap.Strings("keys", keys), zap.Int("deleted", n))
	return n, nil
}

// Flush clears the whole store.
func (c *Cache) Flush(ctx context.Context) error {
	if err := c.store.Flush(ctx); err != nil {
		return fmt.Errorf("fragcache: flush: %w", err)
	}
	c.log.Info("store flushed")
	return nil
}

// Resolve wraps the resolution of one cacheable field. A cached value, nil
// included, is returned without calling fn. On a miss fn runs and the
// fragment is queued for Finish to persist.
func (c *Cache) Resolve(ctx context.Context, exec ExecutionContext, opts Options, fn func(context.Context) (any, error)) (any, error) {
	f, err := c.Fragment(exec, opts)
	if err != nil {
		return nil, err
	}
	res, err := f.Read(ctx, true)
	if err != nil {
		c.log.Warn("fragment read failed",
			zap.String("path", f.path.String()),
			zap.String("request_id", requestID(exec)),
			zap.Error(err),
		)
		return nil, err
	}
	switch res.Status {
	case Hit:
		return res.Value, nil
	case HitNil:
		return nil, nil
	}
	value, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if state := exec.State(); state != nil {
		state.addPending(f)
	}
	return value, nil
}

// Finish persists every fragment queued by Resolve once the request's
// final result is available. Duplicate keys are written once. It does
// nothing when the request produced no result.
func (c *Cache) Finish(ctx context.Context, exec ExecutionContext) error {
	if exec == nil {
		return ErrNoContext
	}
	state := exec.State()
	if state == nil {
		return nil
	}
	pending := state.takePending()
	if len(pending) == 0 {
		return nil
	}
	if exec.Result() == nil {
		c.log.Debug("skipping fragment writes without a result",
			zap.String("request_id", requestID(exec)),
			zap.Int("pending", len(pending)),
		)
		return nil
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
		seen = make(map[string]struct{}, len(pending))
	)
	g.SetLimit(c.writeLimit)
	for _, f := range pending {
		key, err := f.CacheKey()
		if err != nil {
			mu.Lock()
			errs = multierr.Append(errs, err)
			mu.Unlock()
			continue
		}
		// The key digests the sorted secondary keys, so equal keys carry
		// equal alias sets and one write covers both.
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		g.Go(func() error {
			if err := f.Write(ctx); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if errs != nil {
		c.log.Warn("fragment writes failed", zap.String("request_id", requestID(exec)), zap.Error(errs))
	}
	return errs
}

func (c *Cache) observe(ctx context.Context, op, key string, hit bool, err error, start time.Time) {
	if c.observer == nil {
		return
	}
	c.observer.OnCacheOp(ctx, op, key, hit, err, time.Since(start), c.store.Driver())
}

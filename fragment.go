package fragcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Fragment is one cacheable node of a request's result tree. Its path is
// captured at construction and its cache key is computed at most once.
type Fragment struct {
	cache *Cache
	exec  ExecutionContext
	opts  Options
	path  Path

	keyOnce sync.Once
	key     string
	keyErr  error
}

// Options returns the merged options of the fragment.
func (f *Fragment) Options() Options { return f.opts }

// Path returns the tree position captured when the fragment was built.
func (f *Fragment) Path() Path { return f.path }

// CacheKey returns the store key of the fragment.
func (f *Fragment) CacheKey() (string, error) {
	f.keyOnce.Do(func() {
		if f.exec == nil {
			f.keyErr = ErrNoContext
			return
		}
		f.key, f.keyErr = f.cache.keys.Build(f.path, f.exec.Query(), f.opts)
	})
	return f.key, f.keyErr
}

// Read looks the fragment up in the store. A renewing request always
// misses without touching the store. With keepInContext the request memo
// table is consulted first and every successful lookup is memoized, Miss
// included, so each key is read from the store at most once per request.
func (f *Fragment) Read(ctx context.Context, keepInContext bool) (Result, error) {
	if f.exec == nil {
		return Result{}, ErrNoContext
	}
	if f.exec.Renew() {
		return missResult(), nil
	}
	key, err := f.CacheKey()
	if err != nil {
		return Result{}, err
	}
	state := f.exec.State()
	if !keepInContext || state == nil {
		return f.lookup(ctx, key)
	}
	return state.load(key, func() (Result, error) {
		return f.lookup(ctx, key)
	})
}

func (f *Fragment) lookup(ctx context.Context, key string) (Result, error) {
	start := time.Now()
	body, ok, err := f.cache.store.Get(ctx, key)
	if err != nil {
		err = fmt.Errorf("fragcache: read %s: %w", key, err)
		f.cache.observe(ctx, OpRead, key, false, err, start)
		return Result{}, err
	}
	if !ok {
		f.cache.observe(ctx, OpRead, key, false, nil, start)
		return missResult(), nil
	}
	value, err := f.cache.codec.Decode(body)
	if err != nil {
		err = fmt.Errorf("fragcache: read %s: %w", key, err)
		f.cache.observe(ctx, OpRead, key, false, err, start)
		return Result{}, err
	}
	f.cache.observe(ctx, OpRead, key, true, nil, start)
	return hitResult(value), nil
}

// Value returns the final result tree navigated at the fragment's path, or
// nil when execution has not completed or the path is absent.
func (f *Fragment) Value() any {
	if f.exec == nil {
		return nil
	}
	result := f.exec.Result()
	if result == nil {
		return nil
	}
	return f.path.Lookup(result)
}

// WithFinalValue reports whether the final result holds a non-nil value at
// the fragment's path.
func (f *Fragment) WithFinalValue() bool {
	return f.Value() != nil
}

// Write stores the final value under the cache key, nil included, and links
// every secondary logical key to it with an alias entry.
func (f *Fragment) Write(ctx context.Context) error {
	if f.exec == nil {
		return ErrNoContext
	}
	if f.exec.Result() == nil {
		return ErrNoResult
	}
	key, err := f.CacheKey()
	if err != nil {
		return err
	}
	start := time.Now()
	err = f.write(ctx, key)
	f.cache.observe(ctx, OpWrite, key, false, err, start)
	return err
}

func (f *Fragment) write(ctx context.Context, key string) error {
	body, err := f.cache.codec.Encode(f.Value())
	if err != nil {
		return fmt.Errorf("fragcache: write %s: %w", key, err)
	}
	ttl := f.ttl()
	if err := f.cache.store.Set(ctx, key, body, ttl); err != nil {
		return fmt.Errorf("fragcache: write %s: %w", key, err)
	}
	for _, logical := range secondaryKeys(f.opts.Keys) {
		alias := f.cache.keys.AliasKey(logical, key)
		if err := f.cache.store.Set(ctx, alias, []byte{}, ttl); err != nil {
			return fmt.Errorf("fragcache: write alias %s: %w", alias, err)
		}
	}
	return nil
}

func (f *Fragment) ttl() time.Duration {
	if f.opts.TTL > 0 {
		return f.opts.TTL
	}
	return f.cache.defaultTTL
}

// DeletePattern removes every entry stored under any of the fragment's
// logical keys, following alias entries to the primary keys they name. It
// returns the number of live store keys deleted; aliases whose primary has
// already expired or been removed count only once.
func (f *Fragment) DeletePattern(ctx context.Context) (int, error) {
	lister, ok := f.cache.store.(KeyLister)
	if !ok {
		return 0, ErrPatternUnsupported
	}
	targets := make(map[string]struct{})
	var (
		primaries []string
		errs      error
	)
	for _, logical := range f.opts.Keys {
		keys, err := lister.KeysWithPrefix(ctx, f.cache.keys.BuildPattern(logical))
		if err != nil {
			if errors.Is(err, ErrPatternUnsupported) {
				return 0, err
			}
			errs = multierr.Append(errs, fmt.Errorf("fragcache: list %s: %w", logical, err))
			continue
		}
		for _, key := range keys {
			targets[key] = struct{}{}
			if primary, ok := f.cache.keys.primaryFromAlias(key); ok {
				primaries = append(primaries, primary)
			}
		}
	}
	for _, primary := range primaries {
		if _, listed := targets[primary]; listed {
			continue
		}
		live, err := f.cache.store.Exists(ctx, primary)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fragcache: exists %s: %w", primary, err))
		}
		if live || err != nil {
			targets[primary] = struct{}{}
		}
	}
	if len(targets) == 0 {
		return 0, errs
	}
	sorted := make([]string, 0, len(targets))
	for key := range targets {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)
	if err := f.cache.store.DeleteMany(ctx, sorted...); err != nil {
		return 0, multierr.Append(errs, fmt.Errorf("fragcache: delete: %w", err))
	}
	return len(sorted), errs
}

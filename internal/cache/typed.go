package cache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/marketsync/internal/monitoring"
)

// Fetcher loads a value on a cache miss. Any returned error is treated as a failed fetch.
type Fetcher[T any] func(ctx context.Context) (T, error)

// KeyFetcher loads the value for one key of a batch.
type KeyFetcher[T any] func(ctx context.Context, key string) (T, error)

// EntryOption customises a single write.
type EntryOption func(*entryOptions)

type entryOptions struct {
	ttl  time.Duration
	etag string
}

// WithTTL overrides the default TTL for one entry.
func WithTTL(ttl time.Duration) EntryOption {
	return func(o *entryOptions) {
		o.ttl = ttl
	}
}

// WithETag stores an etag alongside the entry.
func WithETag(etag string) EntryOption {
	return func(o *entryOptions) {
		o.etag = etag
	}
}

func applyEntryOptions(opts []EntryOption) entryOptions {
	var o entryOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Get returns the cached value for key while it is fresh. On a miss it calls fetch, stores the
// result, and returns it. When fetch fails and an expired entry is still held, the expired value
// is returned instead of the error. found is false only when there is no value to return.
func Get[T any](ctx context.Context, c *Cache, key string, fetch Fetcher[T], opts ...EntryOption) (T, bool, error) {
	var zero T

	payload, fresh, present := c.lookup(key)
	if present && fresh {
		var value T
		err := c.codec.Unmarshal(payload, &value)
		if err == nil {
			return value, true, nil
		}
		c.log.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.Delete(key)
		present = false
	}

	if fetch == nil {
		return zero, false, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		if present {
			var stale T
			if derr := c.codec.Unmarshal(payload, &stale); derr == nil {
				monitoring.RecordCacheOperation("fallback", "stale")
				c.log.Debug("serving stale entry after fetch failure", zap.String("key", key), zap.Error(err))
				return stale, true, nil
			}
		}
		return zero, false, fmt.Errorf("cache: fetch %q: %w", key, err)
	}

	if err := Set(c, key, value, opts...); err != nil {
		c.log.Warn("fetched value not cached", zap.String("key", key), zap.Error(err))
	}
	return value, true, nil
}

// Set serializes value and stores it under key, replacing any prior entry.
func Set[T any](c *Cache, key string, value T, opts ...EntryOption) error {
	o := applyEntryOptions(opts)
	payload, err := c.codec.Marshal(value)
	if err != nil {
		return err
	}
	return c.put(key, payload, o.ttl, o.etag)
}

// Refresh deletes key, fetches unconditionally, and stores the result.
func Refresh[T any](ctx context.Context, c *Cache, key string, fetch Fetcher[T], opts ...EntryOption) (T, error) {
	var zero T
	if fetch == nil {
		return zero, ErrNilFetch
	}

	c.Delete(key)
	monitoring.RecordCacheOperation("refresh", "ok")

	value, err := fetch(ctx)
	if err != nil {
		return zero, fmt.Errorf("cache: refresh %q: %w", key, err)
	}
	if err := Set(c, key, value, opts...); err != nil {
		return value, err
	}
	return value, nil
}

// GetBatch applies Get to every key. Values that could be produced are returned even when
// other keys fail; failures are combined into the returned error.
func GetBatch[T any](ctx context.Context, c *Cache, keys []string, fetch KeyFetcher[T], opts ...EntryOption) (map[string]T, error) {
	values := make(map[string]T, len(keys))
	var errs error
	for _, key := range keys {
		var keyFetch Fetcher[T]
		if fetch != nil {
			k := key
			keyFetch = func(ctx context.Context) (T, error) {
				return fetch(ctx, k)
			}
		}

		value, found, err := Get(ctx, c, key, keyFetch, opts...)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if found {
			values[key] = value
		}
	}
	return values, errs
}

// SetBatch applies Set to every item. There is no atomicity across the batch.
func SetBatch[T any](c *Cache, items map[string]T, opts ...EntryOption) error {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs error
	for _, key := range keys {
		errs = multierr.Append(errs, Set(c, key, items[key], opts...))
	}
	return errs
}

// Preload warms the cache. Fetch failures are logged and never returned. It reports how many
// keys were loaded.
func Preload(ctx context.Context, c *Cache, fetchers map[string]Fetcher[any], opts ...EntryOption) int {
	keys := make([]string, 0, len(fetchers))
	for key := range fetchers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	loaded := 0
	for _, key := range keys {
		if fetchers[key] == nil || c.Has(key) {
			continue
		}
		if _, _, err := Get(ctx, c, key, fetchers[key], opts...); err != nil {
			c.log.Warn("preload failed", zap.String("key", key), zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded
}

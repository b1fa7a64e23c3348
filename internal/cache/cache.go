package cache

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/marketsync/internal/monitoring"
	"github.com/charlesng35/marketsync/pkg/logger"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultMaxSizeBytes = 50 << 20
	DefaultMaxEntries   = 1000
)

// Config is fixed for the lifetime of a Cache.
type Config struct {
	DefaultTTL    time.Duration
	MaxSizeBytes  int64
	MaxEntries    int
	Compression   bool
	EncryptionKey []byte
	SchemaVersion int
}

func (c Config) withDefaults() Config {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultTTL
	}
	if c.MaxSizeBytes <= 0 {
		c.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
	return c
}

// Option customises a Cache.
type Option func(*Cache)

// WithNow overrides the clock used for freshness checks.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStore attaches the durable key space used by Persist and Restore.
func WithStore(store Store) Option {
	return func(c *Cache) {
		c.store = store
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

type entry struct {
	payload       []byte
	writtenAt     time.Time
	ttl           time.Duration
	sizeBytes     int64
	etag          string
	schemaVersion int
}

func (e *entry) fresh(now time.Time) bool {
	return now.Sub(e.writtenAt) < e.ttl
}

// Cache is a byte and entry bounded in-memory cache with TTL expiry and write-time LRU eviction.
// A single mutex guards the entry map, the running size, and the counters; fetch functions
// always run outside it.
type Cache struct {
	cfg   Config
	codec *Codec
	now   func() time.Time
	store Store
	log   *zap.Logger

	mu        sync.Mutex
	entries   map[string]*entry
	size      int64
	hits      uint64
	misses    uint64
	evictions uint64
	stats     Stats
}

// New constructs a Cache.
func New(cfg Config, opts ...Option) (*Cache, error) {
	cfg = cfg.withDefaults()
	codec, err := NewCodec(cfg.Compression, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		cfg:     cfg,
		codec:   codec,
		now:     time.Now,
		log:     logger.WithModule("cache"),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.recomputeLocked()
	return c, nil
}

// Config returns the effective configuration.
func (c *Cache) Config() Config {
	return c.cfg
}

// Codec exposes the payload codec.
func (c *Cache) Codec() *Codec {
	return c.codec
}

// lookup returns the stored payload and whether it is still fresh, counting a hit or a miss.
// Expired entries are kept so callers can fall back to them.
func (c *Cache) lookup(key string) ([]byte, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && e.fresh(c.now()) {
		c.hits++
		c.recomputeLocked()
		monitoring.RecordCacheOperation("get", "hit")
		return e.payload, true, true
	}

	c.misses++
	c.recomputeLocked()
	monitoring.RecordCacheOperation("get", "miss")
	if !ok {
		return nil, false, false
	}
	return e.payload, false, true
}

// put stores an encoded payload, evicting the coldest entries first when budgets would be exceeded.
func (c *Cache) put(key string, payload []byte, ttl time.Duration, etag string) error {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.insertLocked(key, &entry{
		payload:       payload,
		writtenAt:     c.now(),
		ttl:           ttl,
		sizeBytes:     int64(len(payload)),
		etag:          etag,
		schemaVersion: c.cfg.SchemaVersion,
	})
	c.recomputeLocked()
	if err != nil {
		monitoring.RecordCacheOperation("set", "rejected")
		return err
	}
	monitoring.RecordCacheOperation("set", "ok")
	return nil
}

func (c *Cache) insertLocked(key string, e *entry) error {
	// The prior value is dropped even when the replacement is rejected.
	c.removeLocked(key)
	if e.sizeBytes > c.cfg.MaxSizeBytes {
		return fmt.Errorf("%w: %q is %d bytes, budget %d", ErrEntryTooLarge, key, e.sizeBytes, c.cfg.MaxSizeBytes)
	}

	if evicted := c.evictLocked(e.sizeBytes); evicted > 0 {
		c.log.Debug("evicted cache entries", zap.Int("count", evicted), zap.String("incoming", key))
	}

	c.entries[key] = e
	c.size += e.sizeBytes
	return nil
}

func (c *Cache) removeLocked(key string) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	c.size -= e.sizeBytes
	return true
}

// Has reports whether a fresh entry exists. An expired entry is removed as a side effect.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if !e.fresh(c.now()) {
		c.removeLocked(key)
		c.recomputeLocked()
		return false
	}
	return true
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.removeLocked(key)
	if removed {
		c.recomputeLocked()
	}
	return removed
}

// Clear removes every entry. Counters of hits, misses, and evictions are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.size = 0
	c.recomputeLocked()
}

// InvalidatePattern removes every key matching the regular expression and returns the count removed.
func (c *Cache) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if re.MatchString(key) {
			c.removeLocked(key)
			removed++
		}
	}
	if removed > 0 {
		c.recomputeLocked()
	}
	monitoring.RecordCacheOperation("invalidate", "ok")
	return removed, nil
}

// InvalidatePrefix removes every key starting with prefix.
func (c *Cache) InvalidatePrefix(prefix string) int {
	removed, _ := c.InvalidatePattern("^" + regexp.QuoteMeta(prefix))
	return removed
}

// Sweep removes every expired entry and returns the count removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !e.fresh(now) {
			c.removeLocked(key)
			removed++
		}
	}
	if removed > 0 {
		c.recomputeLocked()
	}
	return removed
}

// Stats returns the derived statistics block.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Keys returns every stored key, fresh or not, in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// ETag returns the etag stored with key, for conditional fetches.
func (c *Cache) ETag(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.etag == "" {
		return "", false
	}
	return e.etag, true
}

func (c *Cache) recomputeLocked() {
	c.stats = computeStats(c.hits, c.misses, c.evictions, c.size, len(c.entries), c.cfg.MaxSizeBytes)
	monitoring.SetCacheStats(c.stats.CurrentSize, c.stats.CurrentEntries, c.stats.HitRate, c.stats.StorageUsage)
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	// SnapshotKey is the durable key holding the persisted entry map.
	SnapshotKey     = "marketsync:cache:snapshot"
	snapshotVersion = 1
)

type snapshot struct {
	Version int                      `json:"version"`
	Codec   string                   `json:"codec"`
	SavedAt time.Time                `json:"saved_at"`
	Entries map[string]snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	Payload       []byte        `json:"payload"`
	WrittenAt     time.Time     `json:"written_at"`
	TTL           time.Duration `json:"ttl"`
	SizeBytes     int64         `json:"size_bytes"`
	ETag          string        `json:"etag,omitempty"`
	SchemaVersion int           `json:"schema_version"`
}

// Persist writes every live entry to the durable store. When the store rejects the write for
// lack of space the persisted snapshot is removed so no partial blob survives.
func (c *Cache) Persist(ctx context.Context) error {
	if c.store == nil {
		return ErrNoStore
	}

	c.mu.Lock()
	now := c.now()
	snap := snapshot{
		Version: snapshotVersion,
		Codec:   c.codec.Name(),
		SavedAt: now.UTC(),
		Entries: make(map[string]snapshotEntry, len(c.entries)),
	}
	for key, e := range c.entries {
		if !e.fresh(now) {
			continue
		}
		snap.Entries[key] = snapshotEntry{
			Payload:       e.payload,
			WrittenAt:     e.writtenAt,
			TTL:           e.ttl,
			SizeBytes:     e.sizeBytes,
			ETag:          e.etag,
			SchemaVersion: e.schemaVersion,
		}
	}
	c.mu.Unlock()

	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("cache: encode snapshot: %w", err)
	}

	if err := c.store.Set(ctx, SnapshotKey, blob, 0); err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			if derr := c.store.Delete(ctx, SnapshotKey); derr != nil {
				c.log.Warn("failed to clear snapshot after quota failure", zap.Error(derr))
			}
			c.log.Warn("cache snapshot discarded: storage quota exceeded",
				zap.Int("entries", len(snap.Entries)),
				zap.Int("bytes", len(blob)),
			)
		}
		return fmt.Errorf("cache: persist: %w", err)
	}

	c.log.Debug("cache persisted", zap.Int("entries", len(snap.Entries)), zap.Int("bytes", len(blob)))
	return nil
}

// Restore loads the persisted snapshot into memory, keeping the original write times. Entries
// that have already expired or carry a different schema version are skipped, and a snapshot
// written by a different codec pipeline is discarded. It returns the number of entries loaded.
func (c *Cache) Restore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, ErrNoStore
	}

	blob, found, err := c.store.Get(ctx, SnapshotKey)
	if err != nil {
		return 0, fmt.Errorf("cache: restore: %w", err)
	}
	if !found {
		return 0, nil
	}

	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		_ = c.store.Delete(ctx, SnapshotKey)
		return 0, fmt.Errorf("cache: decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion || snap.Codec != c.codec.Name() {
		c.log.Info("discarding incompatible cache snapshot",
			zap.Int("version", snap.Version),
			zap.String("codec", snap.Codec),
			zap.String("expected_codec", c.codec.Name()),
		)
		_ = c.store.Delete(ctx, SnapshotKey)
		return 0, nil
	}

	keys := make([]string, 0, len(snap.Entries))
	for key := range snap.Entries {
		keys = append(keys, key)
	}
	// Oldest first so eviction, if the budget shrank, drops the coldest entries.
	sort.Slice(keys, func(i, j int) bool {
		a, b := snap.Entries[keys[i]], snap.Entries[keys[j]]
		if !a.WrittenAt.Equal(b.WrittenAt) {
			return a.WrittenAt.Before(b.WrittenAt)
		}
		return keys[i] < keys[j]
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	restored, skipped := 0, 0
	for _, key := range keys {
		se := snap.Entries[key]
		e := &entry{
			payload:       se.Payload,
			writtenAt:     se.WrittenAt,
			ttl:           se.TTL,
			sizeBytes:     int64(len(se.Payload)),
			etag:          se.ETag,
			schemaVersion: se.SchemaVersion,
		}
		if e.schemaVersion != c.cfg.SchemaVersion || e.ttl <= 0 || !e.fresh(now) {
			skipped++
			continue
		}
		if err := c.insertLocked(key, e); err != nil {
			skipped++
			continue
		}
		restored++
	}
	c.recomputeLocked()

	c.log.Info("cache restored", zap.Int("entries", restored), zap.Int("skipped", skipped))
	return restored, nil
}

package cache

import (
	"sort"

	"github.com/charlesng35/marketsync/internal/monitoring"
)

// evictLocked removes entries in ascending writtenAt order until an entry of incoming bytes
// fits both the byte budget and the entry budget. The caller removes any prior entry for the
// incoming key beforehand, so it is never a candidate.
func (c *Cache) evictLocked(incoming int64) int {
	if c.fitsLocked(incoming) {
		return 0
	}

	type candidate struct {
		key       string
		writtenAt int64
	}
	candidates := make([]candidate, 0, len(c.entries))
	for key, e := range c.entries {
		candidates = append(candidates, candidate{key: key, writtenAt: e.writtenAt.UnixNano()})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].writtenAt != candidates[j].writtenAt {
			return candidates[i].writtenAt < candidates[j].writtenAt
		}
		return candidates[i].key < candidates[j].key
	})

	evicted := 0
	for _, cand := range candidates {
		if c.fitsLocked(incoming) {
			break
		}
		c.removeLocked(cand.key)
		evicted++
	}

	c.evictions += uint64(evicted)
	monitoring.RecordCacheEvictions(evicted)
	return evicted
}

func (c *Cache) fitsLocked(incoming int64) bool {
	return c.size+incoming <= c.cfg.MaxSizeBytes && len(c.entries) < c.cfg.MaxEntries
}

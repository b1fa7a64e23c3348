package cache

// Stats is a derived snapshot of cache counters. It is recomputed after every mutation
// and never persisted.
type Stats struct {
	Hits           uint64  `json:"hits"`
	Misses         uint64  `json:"misses"`
	Evictions      uint64  `json:"evictions"`
	CurrentSize    int64   `json:"current_size"`
	CurrentEntries int     `json:"current_entries"`
	HitRate        float64 `json:"hit_rate"`
	StorageUsage   float64 `json:"storage_usage"`
}

func computeStats(hits, misses, evictions uint64, size int64, entries int, maxSize int64) Stats {
	stats := Stats{
		Hits:           hits,
		Misses:         misses,
		Evictions:      evictions,
		CurrentSize:    size,
		CurrentEntries: entries,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	if maxSize > 0 {
		stats.StorageUsage = float64(size) / float64(maxSize)
	}
	return stats
}

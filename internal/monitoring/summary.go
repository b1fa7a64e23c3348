package monitoring

import (
	"math"
	"time"
)

// Summary surfaces aggregated monitoring data for dashboards and the status endpoint.
type Summary struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Cache       CacheSummary       `json:"cache"`
	Sync        SyncSummary        `json:"sync"`
	Realtime    RealtimeSummary    `json:"realtime"`
	Maintenance MaintenanceSummary `json:"maintenance"`
}

type CacheSummary struct {
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	StaleServed  uint64  `json:"stale_served"`
	HitRate      float64 `json:"hit_rate"`
	SizeBytes    int64   `json:"size_bytes"`
	Entries      int64   `json:"entries"`
	StorageUsage float64 `json:"storage_usage"`
}

type SyncSummary struct {
	Synced          uint64    `json:"synced"`
	Failed          uint64    `json:"failed"`
	Dropped         uint64    `json:"dropped"`
	DeadLettered    uint64    `json:"dead_lettered"`
	Backlog         int64     `json:"backlog"`
	DrainsCompleted uint64    `json:"drains_completed"`
	DrainsSkipped   uint64    `json:"drains_skipped"`
	DrainsHalted    uint64    `json:"drains_halted"`
	LastDrainAt     time.Time `json:"last_drain_at"`
	Online          bool      `json:"online"`
	OfflineMode     bool      `json:"offline_mode"`
}

type FailureRecord struct {
	Stream   string    `json:"stream"`
	Type     string    `json:"type"`
	Message  string    `json:"message"`
	Occurred time.Time `json:"occurred_at"`
}

type RealtimeSummary struct {
	ActiveConnections int64          `json:"active_connections"`
	Broadcasts        uint64         `json:"broadcasts"`
	Failures          uint64         `json:"failures"`
	LastFailure       *FailureRecord `json:"last_failure,omitempty"`
}

type MaintenanceSummary struct {
	Jobs []MaintenanceJobSummary `json:"jobs"`
}

type MaintenanceJobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	ConsecutiveSuccess  uint64        `json:"consecutive_success"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	TotalRuns           uint64        `json:"total_runs"`
}

// Snapshot returns a point-in-time summary from the current module when configured.
func Snapshot() Summary {
	if module := ensureModule(); module != nil && module.stats != nil {
		return module.stats.summary()
	}
	return Summary{GeneratedAt: time.Now()}
}

func float64Bits(v float64) uint64 {
	return math.Float64bits(v)
}

func float64FromBits(b uint64) float64 {
	return math.Float64frombits(b)
}

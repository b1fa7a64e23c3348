package monitoring

import (
	"sync"
	"sync/atomic"
	"time"
)

type statStore struct {
	cacheHits      atomic.Uint64
	cacheMisses    atomic.Uint64
	cacheStale     atomic.Uint64
	cacheSizeBytes atomic.Int64
	cacheEntries   atomic.Int64
	cacheUsage     atomic.Uint64 // math.Float64bits

	syncSynced       atomic.Uint64
	syncFailed       atomic.Uint64
	syncDropped      atomic.Uint64
	syncDeadLettered atomic.Uint64
	syncBacklog      atomic.Int64
	drainsCompleted  atomic.Uint64
	drainsSkipped    atomic.Uint64
	drainsHalted     atomic.Uint64
	lastDrainAt      atomic.Int64 // unix nano

	online      atomic.Bool
	offlineMode atomic.Bool

	realtimeConnections atomic.Int64
	realtimeBroadcasts  atomic.Uint64
	realtimeFailures    atomic.Uint64
	realtimeLastFailure atomic.Value // *FailureRecord

	maintenance sync.Map // string -> *maintenanceStats
}

func newStatStore() *statStore {
	store := &statStore{}
	store.realtimeLastFailure.Store((*FailureRecord)(nil))
	return store
}

func (s *statStore) cloneMaintenance() []MaintenanceJobSummary {
	summaries := []MaintenanceJobSummary{}
	s.maintenance.Range(func(key, value any) bool {
		job := key.(string)
		stats := value.(*maintenanceStats)
		summaries = append(summaries, stats.snapshot(job))
		return true
	})
	return summaries
}

func (s *statStore) summary() Summary {
	lastFailure, _ := s.realtimeLastFailure.Load().(*FailureRecord)
	hits := s.cacheHits.Load()
	misses := s.cacheMisses.Load()
	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	var lastDrain time.Time
	if ns := s.lastDrainAt.Load(); ns > 0 {
		lastDrain = time.Unix(0, ns)
	}

	return Summary{
		GeneratedAt: time.Now(),
		Cache: CacheSummary{
			Hits:         hits,
			Misses:       misses,
			StaleServed:  s.cacheStale.Load(),
			HitRate:      hitRate,
			SizeBytes:    s.cacheSizeBytes.Load(),
			Entries:      s.cacheEntries.Load(),
			StorageUsage: float64FromBits(s.cacheUsage.Load()),
		},
		Sync: SyncSummary{
			Synced:          s.syncSynced.Load(),
			Failed:          s.syncFailed.Load(),
			Dropped:         s.syncDropped.Load(),
			DeadLettered:    s.syncDeadLettered.Load(),
			Backlog:         s.syncBacklog.Load(),
			DrainsCompleted: s.drainsCompleted.Load(),
			DrainsSkipped:   s.drainsSkipped.Load(),
			DrainsHalted:    s.drainsHalted.Load(),
			LastDrainAt:     lastDrain,
			Online:          s.online.Load(),
			OfflineMode:     s.offlineMode.Load(),
		},
		Realtime: RealtimeSummary{
			ActiveConnections: s.realtimeConnections.Load(),
			Broadcasts:        s.realtimeBroadcasts.Load(),
			Failures:          s.realtimeFailures.Load(),
			LastFailure:       lastFailure,
		},
		Maintenance: MaintenanceSummary{
			Jobs: s.cloneMaintenance(),
		},
	}
}

func (s *statStore) recordCache(operation, result string) {
	switch operation {
	case "get":
		if result == "hit" {
			s.cacheHits.Add(1)
		} else {
			s.cacheMisses.Add(1)
		}
	case "fallback":
		s.cacheStale.Add(1)
	}
}

func (s *statStore) setCacheGauges(sizeBytes, entries int64, usage float64) {
	s.cacheSizeBytes.Store(sizeBytes)
	s.cacheEntries.Store(entries)
	s.cacheUsage.Store(float64Bits(usage))
}

func (s *statStore) recordSync(result string) {
	switch result {
	case "synced":
		s.syncSynced.Add(1)
	case "dropped":
		s.syncDropped.Add(1)
	case "dead_lettered":
		s.syncDeadLettered.Add(1)
	default:
		s.syncFailed.Add(1)
	}
}

func (s *statStore) recordDrain(result string) {
	switch result {
	case "skipped":
		s.drainsSkipped.Add(1)
		return
	case "halted":
		s.drainsHalted.Add(1)
	default:
		s.drainsCompleted.Add(1)
	}
	s.lastDrainAt.Store(time.Now().UnixNano())
}

func (s *statStore) recordRealtimeConnection(delta int64) {
	newValue := s.realtimeConnections.Add(delta)
	if newValue < 0 {
		s.realtimeConnections.Store(0)
	}
}

func (s *statStore) recordRealtimeBroadcast(stream string) {
	s.realtimeBroadcasts.Add(1)
}

func (s *statStore) recordRealtimeFailure(record FailureRecord) {
	s.realtimeFailures.Add(1)
	cloned := record
	s.realtimeLastFailure.Store(&cloned)
}

func (s *statStore) maintenanceEntry(job string) *maintenanceStats {
	value, ok := s.maintenance.Load(job)
	if ok {
		return value.(*maintenanceStats)
	}
	stats := &maintenanceStats{}
	actual, _ := s.maintenance.LoadOrStore(job, stats)
	return actual.(*maintenanceStats)
}

type maintenanceStats struct {
	lastStatus           atomic.Value // string
	lastError            atomic.Value // string
	lastRun              atomic.Int64 // unix nano
	lastDuration         atomic.Int64 // nanoseconds
	consecutiveFailures  atomic.Uint64
	totalRuns            atomic.Uint64
	lastSuccessfulRun    atomic.Int64
	consecutiveSuccesses atomic.Uint64
}

func (m *maintenanceStats) snapshot(job string) MaintenanceJobSummary {
	status, _ := m.lastStatus.Load().(string)
	errMsg, _ := m.lastError.Load().(string)
	lastRun := time.Unix(0, m.lastRun.Load())
	lastSuccess := time.Unix(0, m.lastSuccessfulRun.Load())

	return MaintenanceJobSummary{
		Job:                 job,
		LastStatus:          status,
		LastRunAt:           lastRun,
		LastDuration:        time.Duration(m.lastDuration.Load()),
		LastError:           errMsg,
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		ConsecutiveSuccess:  m.consecutiveSuccesses.Load(),
		LastSuccessAt:       lastSuccess,
		TotalRuns:           m.totalRuns.Load(),
	}
}

func (m *maintenanceStats) record(result, message string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	now := time.Now()
	m.lastStatus.Store(result)
	m.lastError.Store(message)
	m.lastRun.Store(now.UnixNano())
	m.lastDuration.Store(int64(duration))
	m.totalRuns.Add(1)

	switch result {
	case "success":
		m.consecutiveFailures.Store(0)
		m.consecutiveSuccesses.Add(1)
		m.lastSuccessfulRun.Store(now.UnixNano())
	default:
		m.consecutiveFailures.Add(1)
		m.consecutiveSuccesses.Store(0)
	}
}

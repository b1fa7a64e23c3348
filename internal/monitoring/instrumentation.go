package monitoring

import (
	"strings"
	"time"
)

// RecordCacheOperation increments the cache operation counter.
func RecordCacheOperation(operation, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	op := normalizeLabel(operation)
	res := normalizeLabel(result)
	module.metrics.cacheOperations.WithLabelValues(op, res).Inc()
	module.stats.recordCache(op, res)
}

// RecordCacheEvictions adds n to the eviction counter.
func RecordCacheEvictions(n int) {
	module := ensureModule()
	if module == nil || n <= 0 {
		return
	}
	module.metrics.cacheEvictions.Add(float64(n))
}

// SetCacheStats publishes the derived cache statistics block.
func SetCacheStats(sizeBytes int64, entries int, hitRate, storageUsage float64) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.cacheSizeBytes.Set(float64(sizeBytes))
	module.metrics.cacheEntries.Set(float64(entries))
	module.metrics.cacheHitRatio.Set(hitRate)
	module.stats.setCacheGauges(sizeBytes, int64(entries), storageUsage)
}

// RecordSyncOperation records the outcome of applying one pending operation.
func RecordSyncOperation(table, result string) {
	module := ensureModule()
	if module == nil {
		return
	}
	table = normalizeLabel(table)
	result = normalizeLabel(result)
	module.metrics.syncOperations.WithLabelValues(table, result).Inc()
	module.stats.recordSync(result)
}

// RecordDrain records a completed, skipped, or halted drain pass.
func RecordDrain(result string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	result = normalizeLabel(result)
	module.metrics.syncDrains.WithLabelValues(result).Inc()
	if result != "skipped" {
		observeDuration(module.metrics.syncDrainDuration, duration)
	}
	module.stats.recordDrain(result)
}

// SetSyncBacklog publishes the number of queued operations.
func SetSyncBacklog(n int64) {
	module := ensureModule()
	if module == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	module.metrics.syncBacklog.Set(float64(n))
	module.stats.syncBacklog.Store(n)
}

// ObserveRemoteCall captures the latency of a remote apply request.
func ObserveRemoteCall(action, status string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	action = normalizeLabel(action)
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	observeDuration(module.metrics.remoteLatency.WithLabelValues(action, status), duration)
}

// RecordBreakerTransition counts circuit breaker state changes.
func RecordBreakerTransition(name, state string) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.breakerTransitions.WithLabelValues(normalizeLabel(name), normalizeLabel(state)).Inc()
}

// SetConnectivity publishes the connectivity state and offline mode toggle.
func SetConnectivity(online, offlineMode bool) {
	module := ensureModule()
	if module == nil {
		return
	}
	module.metrics.connectivityOnline.Set(boolGauge(online))
	module.metrics.offlineMode.Set(boolGauge(offlineMode))
	module.stats.online.Store(online)
	module.stats.offlineMode.Store(offlineMode)
}

// ObserveAPILatency captures the HTTP request latency for the supplied route.
func ObserveAPILatency(method, path, status string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = "UNKNOWN"
	}
	path = sanitizePath(path)
	if path == "" {
		path = "unknown"
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = "unknown"
	}
	module.metrics.apiLatency.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordRealtimeConnection adjusts the websocket connection gauge.
func RecordRealtimeConnection(delta int64) {
	module := ensureModule()
	if module == nil {
		return
	}
	if delta == 0 {
		return
	}
	module.metrics.realtimeConnections.Add(float64(delta))
	module.stats.recordRealtimeConnection(delta)
	if module.stats.realtimeConnections.Load() < 0 {
		module.stats.realtimeConnections.Store(0)
		module.metrics.realtimeConnections.Set(0)
	}
}

// RecordRealtimeSubscription tracks subscribe/unsubscribe events.
func RecordRealtimeSubscription(stream, action string) {
	module := ensureModule()
	if module == nil {
		return
	}
	stream = normalizePath(stream)
	if stream == "" {
		stream = "unknown"
	}
	action = normalizeLabel(action)
	module.metrics.realtimeSubscriptions.WithLabelValues(stream, action).Inc()
}

// RecordRealtimeBroadcast increments broadcast counters per stream.
func RecordRealtimeBroadcast(stream string) {
	module := ensureModule()
	if module == nil {
		return
	}
	stream = normalizePath(stream)
	if stream == "" {
		stream = "unknown"
	}
	module.metrics.realtimeBroadcasts.WithLabelValues(stream).Inc()
	module.stats.recordRealtimeBroadcast(stream)
}

// RecordRealtimeFailure snapshots a realtime failure occurrence.
func RecordRealtimeFailure(stream, failureType, message string) {
	module := ensureModule()
	if module == nil {
		return
	}
	stream = normalizePath(stream)
	if stream == "" {
		stream = "unknown"
	}
	failureType = normalizeLabel(failureType)
	if failureType == "" {
		failureType = "unknown"
	}
	module.metrics.realtimeFailures.WithLabelValues(stream, failureType).Inc()
	module.stats.recordRealtimeFailure(FailureRecord{
		Stream:   stream,
		Type:     failureType,
		Message:  strings.TrimSpace(message),
		Occurred: time.Now(),
	})
}

// RecordMaintenanceRun records the completion of a maintenance job.
func RecordMaintenanceRun(job, result, message string, duration time.Duration) {
	module := ensureModule()
	if module == nil {
		return
	}
	jobID := normalizeLabel(job)
	if jobID == "" {
		jobID = "unknown"
	}
	result = normalizeLabel(result)
	if result == "" {
		result = "unknown"
	}
	module.metrics.maintenanceRuns.WithLabelValues(jobID, result).Inc()
	observeDuration(module.metrics.maintenanceDuration.WithLabelValues(jobID), duration)
	if result == "success" {
		module.metrics.maintenanceLastRun.WithLabelValues(jobID).Set(float64(time.Now().Unix()))
	}
	stats := module.stats.maintenanceEntry(jobID)
	stats.record(result, strings.TrimSpace(message), duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}

func sanitizePath(path string) string {
	if path == "" {
		return ""
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if path == "/" {
		return "root"
	}
	return normalizePath(path)
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	path = strings.ReplaceAll(path, " ", "_")
	if path == "" {
		return "root"
	}
	return path
}

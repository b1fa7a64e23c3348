package monitoring_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/marketsync/internal/monitoring"
	"github.com/charlesng35/marketsync/internal/monitoring/checks"
)

func setupModule(t *testing.T) *monitoring.Module {
	t.Helper()

	mod, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)
	monitoring.SetModule(mod)
	return mod
}

func TestSummaryAggregatesMetrics(t *testing.T) {
	setupModule(t)

	monitoring.RecordCacheOperation("get", "hit")
	monitoring.RecordCacheOperation("get", "miss")
	monitoring.RecordCacheOperation("fallback", "stale")
	monitoring.RecordCacheOperation("set", "ok")
	monitoring.RecordCacheEvictions(2)
	monitoring.SetCacheStats(512, 3, 0.5, 0.25)
	monitoring.RecordSyncOperation("achievements", "synced")
	monitoring.RecordSyncOperation("achievements", "failed")
	monitoring.RecordSyncOperation("users", "dropped")
	monitoring.RecordDrain("completed", time.Second)
	monitoring.RecordDrain("skipped", 0)
	monitoring.SetSyncBacklog(4)
	monitoring.SetConnectivity(true, false)
	monitoring.RecordRealtimeConnection(1)
	monitoring.RecordRealtimeBroadcast("sync.status")
	monitoring.RecordRealtimeFailure("sync.status", "backpressure", "drop")
	monitoring.RecordMaintenanceRun("cache_sweep", "success", "", time.Second)

	summary := monitoring.Snapshot()
	require.Equal(t, uint64(1), summary.Cache.Hits)
	require.Equal(t, uint64(1), summary.Cache.Misses)
	require.Equal(t, uint64(1), summary.Cache.StaleServed)
	require.InDelta(t, 0.5, summary.Cache.HitRate, 0.0001)
	require.Equal(t, int64(512), summary.Cache.SizeBytes)
	require.InDelta(t, 0.25, summary.Cache.StorageUsage, 0.0001)
	require.Equal(t, uint64(1), summary.Sync.Synced)
	require.Equal(t, uint64(1), summary.Sync.Failed)
	require.Equal(t, uint64(1), summary.Sync.Dropped)
	require.Equal(t, uint64(1), summary.Sync.DrainsCompleted)
	require.Equal(t, uint64(1), summary.Sync.DrainsSkipped)
	require.Equal(t, int64(4), summary.Sync.Backlog)
	require.True(t, summary.Sync.Online)
	require.False(t, summary.Sync.LastDrainAt.IsZero())
	require.Equal(t, int64(1), summary.Realtime.ActiveConnections)
	require.GreaterOrEqual(t, summary.Realtime.Failures, uint64(1))
	require.NotEmpty(t, summary.Maintenance.Jobs)
}

func TestHandlerServesRegistry(t *testing.T) {
	mod := setupModule(t)
	monitoring.RecordSyncOperation("users", "synced")

	rec := httptest.NewRecorder()
	mod.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "marketsync_sync_operations_total")
}

func TestHealthManagerEvaluate(t *testing.T) {
	t.Parallel()

	manager := monitoring.NewHealthManager()
	manager.RegisterReadiness(monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	}))
	manager.RegisterReadiness(monitoring.NewCheck("remote", func(ctx context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, monitoring.StatusDown, report.Status)
	require.Len(t, report.Checks, 2)
}

func TestMaintenanceCheck(t *testing.T) {
	setupModule(t)

	monitoring.RecordMaintenanceRun("cache_sweep", "success", "", time.Second)
	monitoring.RecordMaintenanceRun("kv_expiry", "failure", "timeout", time.Second)

	check := checks.Maintenance(0)
	result := check.Run(context.Background())
	require.Equal(t, monitoring.StatusDown, result.Status)
	require.NotEmpty(t, result.Details)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRemoteCheck(t *testing.T) {
	t.Parallel()

	up := checks.Remote(pingerFunc(func(context.Context) error { return nil }), time.Second)
	require.Equal(t, monitoring.StatusUp, up.Run(context.Background()).Status)

	down := checks.Remote(pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }), time.Second)
	result := down.Run(context.Background())
	require.Equal(t, monitoring.StatusDegraded, result.Status)
	require.Contains(t, result.Details, "refused")

	unset := checks.Remote(nil, 0)
	require.Equal(t, monitoring.StatusUp, unset.Run(context.Background()).Status)
}

func TestSyncBacklogCheck(t *testing.T) {
	setupModule(t)

	monitoring.SetSyncBacklog(10)
	require.Equal(t, monitoring.StatusDegraded, checks.SyncBacklog(5).Run(context.Background()).Status)
	require.Equal(t, monitoring.StatusUp, checks.SyncBacklog(50).Run(context.Background()).Status)
}

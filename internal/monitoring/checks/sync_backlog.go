package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/marketsync/internal/monitoring"
)

// SyncBacklog degrades readiness when more than threshold operations are waiting for the remote.
func SyncBacklog(threshold int64) monitoring.Check {
	return monitoring.NewCheck("sync_backlog", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		backlog := monitoring.Snapshot().Sync.Backlog
		if threshold > 0 && backlog > threshold {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  fmt.Sprintf("%d operations pending", backlog),
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}

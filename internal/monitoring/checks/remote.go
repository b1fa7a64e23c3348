package checks

import (
	"context"
	"time"

	"github.com/charlesng35/marketsync/internal/monitoring"
)

const defaultRemoteTimeout = 3 * time.Second

// RemotePinger is the minimal interface required to probe the sync remote.
type RemotePinger interface {
	Ping(ctx context.Context) error
}

// Remote returns a readiness probe for the sync remote. An unreachable remote degrades readiness
// rather than failing it, since local reads and writes continue offline.
func Remote(pinger RemotePinger, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("remote", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if pinger == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "remote not configured",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultRemoteTimeout))
		defer cancel()

		if err := pinger.Ping(probeCtx); err != nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  err.Error(),
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}

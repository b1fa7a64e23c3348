package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/marketsync/internal/database"
	"github.com/charlesng35/marketsync/internal/database/testutil"
	"github.com/charlesng35/marketsync/internal/realtime"
	"github.com/charlesng35/marketsync/internal/syncqueue"
)

type fakeDrainer struct {
	calls   atomic.Int32
	backlog int64
}

func (d *fakeDrainer) Drain(context.Context) (syncqueue.Result, error) {
	d.calls.Add(1)
	return syncqueue.Result{Synced: 1}, nil
}

func (d *fakeDrainer) Backlog(context.Context) (int64, error) {
	return d.backlog, nil
}

type fakePersister struct {
	restored  atomic.Bool
	persisted atomic.Bool
}

func (p *fakePersister) Persist(context.Context) error {
	p.persisted.Store(true)
	return nil
}

func (p *fakePersister) Restore(context.Context) (int, error) {
	p.restored.Store(true)
	return 3, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) BroadcastStream(_ string, msg realtime.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, msg.Event)
}

func TestReconnectTriggersDrain(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	drainer := &fakeDrainer{}
	events := &eventLog{}
	co := New(db, drainer, WithInitialOnline(false), WithPublisher(events))

	co.SetOnline(false)
	co.Wait()
	require.Zero(t, drainer.calls.Load())

	co.SetOnline(true)
	co.Wait()
	require.Equal(t, int32(1), drainer.calls.Load())

	// Repeating the same signal is not a transition.
	co.SetOnline(true)
	co.Wait()
	require.Equal(t, int32(1), drainer.calls.Load())

	require.Equal(t, []string{"connectivity.changed"}, events.events)

	status, err := co.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status.LastDrain)
	require.Equal(t, "reconnect", status.LastDrain.Reason)
}

func TestOfflineModeSuppressesSync(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	drainer := &fakeDrainer{}
	co := New(db, drainer, WithInitialOnline(false))
	ctx := context.Background()

	require.NoError(t, co.SetOfflineMode(ctx, true))
	co.SetOnline(true)
	co.Wait()
	require.Zero(t, drainer.calls.Load())

	_, err := co.SyncNow(ctx)
	require.ErrorIs(t, err, ErrSyncSuppressed)

	settings, err := database.GetAppSettings(ctx, db)
	require.NoError(t, err)
	require.True(t, settings.OfflineMode)

	// Turning the toggle off while online drains immediately.
	require.NoError(t, co.SetOfflineMode(ctx, false))
	co.Wait()
	require.Equal(t, int32(1), drainer.calls.Load())

	result, err := co.SyncNow(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Synced)
	require.Equal(t, int32(2), drainer.calls.Load())
}

func TestOfflineModeOffWhileOfflineDoesNotDrain(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	drainer := &fakeDrainer{}
	co := New(db, drainer, WithInitialOnline(false))
	ctx := context.Background()

	require.NoError(t, co.SetOfflineMode(ctx, true))
	require.NoError(t, co.SetOfflineMode(ctx, false))
	co.Wait()
	require.Zero(t, drainer.calls.Load())
}

func TestStartLoadsStateAndShutdownPersists(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	ctx := context.Background()
	require.NoError(t, database.SetOfflineMode(ctx, db, true))

	drainer := &fakeDrainer{backlog: 4}
	persister := &fakePersister{}
	co := New(db, drainer, WithCache(persister))

	require.NoError(t, co.Start(ctx))
	require.True(t, co.OfflineMode())
	require.True(t, persister.restored.Load())

	status, err := co.Status(ctx)
	require.NoError(t, err)
	require.True(t, status.Online)
	require.True(t, status.OfflineMode)
	require.False(t, status.SyncEnabled)
	require.Equal(t, int64(4), status.Backlog)

	require.NoError(t, co.Shutdown(ctx))
	require.True(t, persister.persisted.Load())
}

func TestReconnectAfterShutdownDoesNotDrain(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	ctx := context.Background()
	drainer := &fakeDrainer{}
	co := New(db, drainer, WithInitialOnline(false))

	require.NoError(t, co.Start(ctx))
	require.NoError(t, co.Shutdown(ctx))

	co.SetOnline(true)
	co.Wait()
	require.True(t, co.Online())
	require.Zero(t, drainer.calls.Load())
}

func TestPeriodicDrainAndProbe(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	drainer := &fakeDrainer{}
	var reachable atomic.Bool
	reachable.Store(true)

	co := New(db, drainer,
		WithDrainSchedule("@every 1s"),
		WithProber(ProberFunc(func(context.Context) error {
			if reachable.Load() {
				return nil
			}
			return errors.New("unreachable")
		}), "@every 1s"),
	)
	ctx := context.Background()
	require.NoError(t, co.Start(ctx))
	t.Cleanup(func() { _ = co.Shutdown(context.Background()) })

	require.Eventually(t, func() bool {
		return drainer.calls.Load() >= 1
	}, 3*time.Second, 50*time.Millisecond)

	reachable.Store(false)
	require.Eventually(t, func() bool {
		return !co.Online()
	}, 3*time.Second, 50*time.Millisecond)
}

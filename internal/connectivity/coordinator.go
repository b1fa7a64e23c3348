// Package connectivity tracks Online/Offline state and the user OfflineMode toggle, and
// decides when the sync queue drains.
package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/marketsync/internal/database"
	"github.com/charlesng35/marketsync/internal/monitoring"
	"github.com/charlesng35/marketsync/internal/realtime"
	"github.com/charlesng35/marketsync/internal/syncqueue"
	"github.com/charlesng35/marketsync/pkg/logger"
)

const (
	// DefaultDrainSchedule is the self-healing drain interval.
	DefaultDrainSchedule = "@every 5m"
	// DefaultProbeSchedule is how often the prober checks the remote.
	DefaultProbeSchedule = "@every 30s"
)

// ErrSyncSuppressed is returned by SyncNow while offline or in OfflineMode.
var ErrSyncSuppressed = errors.New("connectivity: sync suppressed while offline")

// Drainer is the part of the sync queue the coordinator drives.
type Drainer interface {
	Drain(ctx context.Context) (syncqueue.Result, error)
	Backlog(ctx context.Context) (int64, error)
}

// Persister saves and reloads the in-memory cache across restarts.
type Persister interface {
	Persist(ctx context.Context) error
	Restore(ctx context.Context) (int, error)
}

// Prober reports whether the remote is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// DrainReport describes the most recent drain attempt.
type DrainReport struct {
	Reason   string           `json:"reason"`
	At       time.Time        `json:"at"`
	Result   syncqueue.Result `json:"result"`
	Error    string           `json:"error,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Online       bool         `json:"online"`
	OfflineMode  bool         `json:"offline_mode"`
	SyncEnabled  bool         `json:"sync_enabled"`
	Backlog      int64        `json:"backlog"`
	LastFullSync *time.Time   `json:"last_full_sync,omitempty"`
	LastDrain    *DrainReport `json:"last_drain,omitempty"`
}

// Coordinator owns the connectivity state machine.
type Coordinator struct {
	db        *gorm.DB
	drainer   Drainer
	cache     Persister
	prober    Prober
	publisher syncqueue.Publisher
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger

	drainSchedule string
	probeSchedule string

	mu          sync.RWMutex
	online      bool
	offlineMode bool
	lastDrain   *DrainReport
	started     bool
	stopped     bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Option customises the Coordinator.
type Option func(*Coordinator)

// WithCron injects a preconfigured cron instance.
func WithCron(c *cron.Cron) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.cron = c
		}
	}
}

// WithDrainSchedule overrides DefaultDrainSchedule.
func WithDrainSchedule(spec string) Option {
	return func(co *Coordinator) {
		if spec != "" {
			co.drainSchedule = spec
		}
	}
}

// WithProber enables periodic reachability checks on spec (DefaultProbeSchedule when empty).
func WithProber(p Prober, spec string) Option {
	return func(co *Coordinator) {
		co.prober = p
		if spec != "" {
			co.probeSchedule = spec
		}
	}
}

// WithCache restores the cache on Start and persists it on Shutdown.
func WithCache(p Persister) Option {
	return func(co *Coordinator) {
		co.cache = p
	}
}

// WithPublisher sends state changes to a realtime publisher.
func WithPublisher(p syncqueue.Publisher) Option {
	return func(co *Coordinator) {
		co.publisher = p
	}
}

// WithInitialOnline sets the state assumed before the first platform signal.
func WithInitialOnline(online bool) Option {
	return func(co *Coordinator) {
		co.online = online
	}
}

// WithNow overrides the clock used for drain reports.
func WithNow(now func() time.Time) Option {
	return func(co *Coordinator) {
		if now != nil {
			co.now = now
		}
	}
}

// New constructs a coordinator. It starts Online with OfflineMode off until Start loads
// the persisted toggle.
func New(db *gorm.DB, drainer Drainer, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	co := &Coordinator{
		db:            db,
		drainer:       drainer,
		now:           time.Now,
		online:        true,
		drainSchedule: DefaultDrainSchedule,
		probeSchedule: DefaultProbeSchedule,
		log:           logger.WithModule("connectivity"),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(co)
	}
	if co.cron == nil {
		co.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return co
}

// Start loads the persisted OfflineMode, restores the cache and schedules the periodic jobs.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.db != nil {
		settings, err := database.GetAppSettings(ctx, c.db)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.offlineMode = settings.OfflineMode
		c.mu.Unlock()
	}

	if c.cache != nil {
		restored, err := c.cache.Restore(ctx)
		if err != nil {
			c.log.Warn("cache restore failed", zap.Error(err))
		} else {
			c.log.Info("cache restored", zap.Int("entries", restored))
		}
	}

	if c.drainer != nil {
		if _, err := c.cron.AddFunc(c.drainSchedule, func() {
			c.drainIfEnabled(c.ctx, "periodic")
		}); err != nil {
			return err
		}
	}

	if c.prober != nil {
		if _, err := c.cron.AddFunc(c.probeSchedule, func() {
			c.probe(c.ctx)
		}); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.started = true
	online, offline := c.online, c.offlineMode
	c.mu.Unlock()

	monitoring.SetConnectivity(online, offline)
	c.cron.Start()
	c.log.Info("connectivity coordinator started",
		zap.Bool("online", online),
		zap.Bool("offline_mode", offline),
		zap.String("drain_schedule", c.drainSchedule),
	)
	return nil
}

// Shutdown stops scheduling, waits for in-flight drains and persists the cache.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.started = false
	c.stopped = true
	c.mu.Unlock()

	if started {
		select {
		case <-c.cron.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.cancel()

	if c.cache != nil {
		if err := c.cache.Persist(ctx); err != nil {
			c.log.Warn("cache persist failed", zap.Error(err))
		}
	}
	return nil
}

// Wait blocks until every drain triggered by a state transition has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// SetOnline applies a platform connectivity signal. Offline to Online triggers a drain
// unless OfflineMode is on.
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()
	previous := c.online
	c.online = online
	offline := c.offlineMode
	c.mu.Unlock()

	if previous == online {
		return
	}

	monitoring.SetConnectivity(online, offline)
	c.log.Info("connectivity changed", zap.Bool("online", online))
	c.publish("connectivity.changed", map[string]any{"online": online, "offline_mode": offline})

	if online && !offline {
		c.triggerDrain("reconnect")
	}
}

// SetOfflineMode persists the toggle. Turning it off while Online triggers a drain.
func (c *Coordinator) SetOfflineMode(ctx context.Context, enabled bool) error {
	if c.db != nil {
		if err := database.SetOfflineMode(ctx, c.db, enabled); err != nil {
			return err
		}
	}

	c.mu.Lock()
	previous := c.offlineMode
	c.offlineMode = enabled
	online := c.online
	c.mu.Unlock()

	if previous == enabled {
		return nil
	}

	monitoring.SetConnectivity(online, enabled)
	c.log.Info("offline mode changed", zap.Bool("offline_mode", enabled))
	c.publish("offline_mode.changed", map[string]any{"online": online, "offline_mode": enabled})

	if !enabled && online {
		c.triggerDrain("offline_mode_off")
	}
	return nil
}

// SyncNow drains synchronously. It returns ErrSyncSuppressed while sync is disabled and
// syncqueue.ErrDrainInProgress when a pass is already running.
func (c *Coordinator) SyncNow(ctx context.Context) (syncqueue.Result, error) {
	if !c.SyncEnabled() {
		return syncqueue.Result{}, ErrSyncSuppressed
	}
	return c.drain(ctx, "manual")
}

// SyncEnabled reports Online && !OfflineMode.
func (c *Coordinator) SyncEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online && !c.offlineMode
}

// Online reports the last platform signal.
func (c *Coordinator) Online() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// OfflineMode reports the user toggle.
func (c *Coordinator) OfflineMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offlineMode
}

// Status returns the current state together with backlog and last full sync.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	c.mu.RLock()
	status := Status{
		Online:      c.online,
		OfflineMode: c.offlineMode,
		SyncEnabled: c.online && !c.offlineMode,
	}
	if c.lastDrain != nil {
		report := *c.lastDrain
		status.LastDrain = &report
	}
	c.mu.RUnlock()

	if c.drainer != nil {
		backlog, err := c.drainer.Backlog(ctx)
		if err != nil {
			return status, err
		}
		status.Backlog = backlog
	}

	if c.db != nil {
		settings, err := database.GetAppSettings(ctx, c.db)
		if err != nil {
			return status, err
		}
		status.LastFullSync = settings.LastFullSync
	}
	return status, nil
}

func (c *Coordinator) triggerDrain(reason string) {
	if c.drainer == nil {
		return
	}

	// Add happens under mu so it cannot race the Wait in Shutdown.
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.log.Debug("drain skipped, coordinator stopped", zap.String("reason", reason))
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.drainIfEnabled(c.ctx, reason)
	}()
}

func (c *Coordinator) drainIfEnabled(ctx context.Context, reason string) {
	if !c.SyncEnabled() {
		c.log.Debug("drain skipped, sync disabled", zap.String("reason", reason))
		return
	}
	if _, err := c.drain(ctx, reason); err != nil && !errors.Is(err, syncqueue.ErrDrainInProgress) {
		c.log.Warn("drain failed", zap.String("reason", reason), zap.Error(err))
	}
}

func (c *Coordinator) drain(ctx context.Context, reason string) (syncqueue.Result, error) {
	start := time.Now()
	result, err := c.drainer.Drain(ctx)
	if errors.Is(err, syncqueue.ErrDrainInProgress) {
		c.log.Debug("drain already in progress", zap.String("reason", reason))
		return result, err
	}

	report := &DrainReport{
		Reason:   reason,
		At:       c.now().UTC(),
		Result:   result,
		Duration: time.Since(start),
	}
	if err != nil {
		report.Error = err.Error()
	}

	c.mu.Lock()
	c.lastDrain = report
	c.mu.Unlock()
	return result, err
}

func (c *Coordinator) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := c.prober.Probe(probeCtx)
	if err != nil {
		c.log.Debug("remote probe failed", zap.Error(err))
	}
	c.SetOnline(err == nil)
}

func (c *Coordinator) publish(event string, data any) {
	if c.publisher == nil {
		return
	}
	c.publisher.BroadcastStream(realtime.StreamSyncStatus, realtime.Message{Event: event, Data: data})
}

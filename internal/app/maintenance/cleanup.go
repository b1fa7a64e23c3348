package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/marketsync/internal/monitoring"
	"github.com/charlesng35/marketsync/pkg/logger"
)

const (
	defaultDeadLetterRetentionDays = 30
	defaultSweepSpec               = "@every 1m"
	defaultKVSpec                  = "@hourly"
	defaultDeadLetterSpec          = "@daily"

	jobCacheSweep  = "cache_sweep"
	jobKVExpiry    = "kv_expiry"
	jobDeadLetters = "dead_letter_retention"
)

// Sweeper drops expired entries from the in-memory cache.
type Sweeper interface {
	Sweep() int
}

// Expirer deletes expired rows from the durable key-value space.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// DeadLetterPurger removes dead letters older than a cutoff.
type DeadLetterPurger interface {
	PurgeDeadLetters(ctx context.Context, olderThan time.Time) (int64, error)
}

// Cleaner coordinates background maintenance tasks such as sweeping expired cache entries,
// expiring durable key-value rows, and enforcing dead-letter retention.
type Cleaner struct {
	cache       Sweeper
	kv          Expirer
	deadLetters DeadLetterPurger
	cron        *cron.Cron
	now         func() time.Time
	log         *zap.Logger
	enabled     bool
	retention   int

	sweepSchedule      string
	kvSchedule         string
	deadLetterSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithDeadLetterRetentionDays adjusts how long dead letters are retained before cleanup.
func WithDeadLetterRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSweepSchedule overrides the cron specification for the cache sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithKVSchedule overrides the cron specification for durable key-value expiry.
func WithKVSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.kvSchedule = spec
		}
	}
}

// WithDeadLetterSchedule overrides the cron specification for dead-letter retention.
func WithDeadLetterSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.deadLetterSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(cache Sweeper, kv Expirer, deadLetters DeadLetterPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		cache:              cache,
		kv:                 kv,
		deadLetters:        deadLetters,
		now:                time.Now,
		retention:          defaultDeadLetterRetentionDays,
		sweepSchedule:      defaultSweepSpec,
		kvSchedule:         defaultKVSpec,
		deadLetterSchedule: defaultDeadLetterSpec,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	cleaner.enabled = cleaner.cache != nil || cleaner.kv != nil || cleaner.deadLetters != nil

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled {
		return nil
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.sweepSchedule, func() {
			c.sweepCache()
		}); err != nil {
			return err
		}
	}

	if c.kv != nil {
		if _, err := c.cron.AddFunc(c.kvSchedule, func() {
			if err := c.expireKV(context.Background()); err != nil {
				c.log.Warn("kv expiry failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.deadLetters != nil {
		if _, err := c.cron.AddFunc(c.deadLetterSchedule, func() {
			if err := c.purgeDeadLetters(context.Background()); err != nil {
				c.log.Warn("dead letter cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.cache != nil {
		c.sweepCache()
	}

	if c.kv != nil {
		errs = multierr.Append(errs, c.expireKV(ctx))
	}

	if c.deadLetters != nil {
		errs = multierr.Append(errs, c.purgeDeadLetters(ctx))
	}

	return errs
}

func (c *Cleaner) sweepCache() {
	start := time.Now()
	removed := c.cache.Sweep()
	monitoring.RecordMaintenanceRun(jobCacheSweep, "success", "", time.Since(start))
	if removed > 0 {
		c.log.Debug("swept expired cache entries", zap.Int("removed", removed))
	}
}

func (c *Cleaner) expireKV(ctx context.Context) error {
	start := time.Now()
	removed, err := c.kv.DeleteExpired(ctx)
	if err != nil {
		monitoring.RecordMaintenanceRun(jobKVExpiry, "error", err.Error(), time.Since(start))
		return fmt.Errorf("kv expiry: %w", err)
	}
	monitoring.RecordMaintenanceRun(jobKVExpiry, "success", "", time.Since(start))
	if removed > 0 {
		c.log.Debug("expired durable cache rows", zap.Int64("removed", removed))
	}
	return nil
}

func (c *Cleaner) purgeDeadLetters(ctx context.Context) error {
	if c.retention <= 0 {
		return nil
	}

	start := time.Now()
	cutoff := c.now().AddDate(0, 0, -c.retention)
	removed, err := c.deadLetters.PurgeDeadLetters(ctx, cutoff)
	if err != nil {
		monitoring.RecordMaintenanceRun(jobDeadLetters, "error", err.Error(), time.Since(start))
		return fmt.Errorf("dead letter retention: %w", err)
	}
	monitoring.RecordMaintenanceRun(jobDeadLetters, "success", "", time.Since(start))
	if removed > 0 {
		c.log.Info("purged dead letters", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/marketsync/internal/api"
	"github.com/charlesng35/marketsync/internal/app"
	"github.com/charlesng35/marketsync/internal/app/maintenance"
	"github.com/charlesng35/marketsync/internal/connectivity"
	"github.com/charlesng35/marketsync/internal/database"
	"github.com/charlesng35/marketsync/internal/engine"
	"github.com/charlesng35/marketsync/internal/models"
	"github.com/charlesng35/marketsync/internal/monitoring"
	"github.com/charlesng35/marketsync/internal/monitoring/checks"
	"github.com/charlesng35/marketsync/internal/realtime"
	"github.com/charlesng35/marketsync/internal/syncqueue"
	"github.com/charlesng35/marketsync/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Monitoring *monitoring.Module
	Hub        *realtime.Hub
	Remote     *syncqueue.HTTPApplier
	Engine     *engine.Engine
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine

	engineStarted bool
}

// bootstrapRuntime initialises the database, engine, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Monitoring, err = monitoring.NewModule(monitoring.Options{})
	if err != nil {
		return nil, fmt.Errorf("initialise monitoring: %w", err)
	}
	monitoring.SetModule(stack.Monitoring)

	stack.Hub = realtime.NewHub(realtime.KnownStreams())

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, fmt.Errorf("resolve engine config: %w", err)
	}

	applier, opts, err := remoteApplier(cfg, stack, log)
	if err != nil {
		return nil, err
	}
	opts = append(opts, engine.WithPublisher(stack.Hub))

	stack.Engine, err = engine.New(engineCfg, stack.DB, applier, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise engine: %w", err)
	}
	if err := stack.Engine.Start(ctx); err != nil {
		return nil, fmt.Errorf("start engine: %w", err)
	}
	stack.engineStarted = true

	registerHealthChecks(cfg, stack)

	stack.Cleaner = maintenance.NewCleaner(stack.Engine.Cache, stack.Engine.KV, stack.Engine.Queue,
		maintenance.WithDeadLetterRetentionDays(cfg.Sync.DeadLetterRetentionDays),
		maintenance.WithSweepSchedule(cfg.Cache.SweepSchedule),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(cfg, stack.Engine, stack.Hub, stack.Monitoring)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// remoteApplier selects the HTTP applier when a remote is configured. Without one every drain
// halts immediately and the engine starts offline.
func remoteApplier(cfg *app.Config, stack *runtimeStack, log *zap.Logger) (syncqueue.Applier, []engine.Option, error) {
	if !cfg.Remote.Enabled() {
		log.Warn("no remote configured; mutations stay queued locally")
		offline := syncqueue.ApplierFunc(func(context.Context, models.PendingOperation) error {
			return syncqueue.ErrRemoteUnavailable
		})
		return offline, []engine.Option{engine.WithInitialOnline(false)}, nil
	}

	remote, err := syncqueue.NewHTTPApplier(cfg.Remote.ApplierConfig(), &http.Client{})
	if err != nil {
		return nil, nil, fmt.Errorf("initialise remote applier: %w", err)
	}
	stack.Remote = remote
	log.Info("remote configured", zap.String("base_url", cfg.Remote.BaseURL))

	return remote, []engine.Option{
		engine.WithProber(connectivity.ProberFunc(remote.Ping), cfg.Remote.ProbeInterval),
	}, nil
}

func registerHealthChecks(cfg *app.Config, stack *runtimeStack) {
	if !cfg.Monitoring.Health.Enabled {
		return
	}
	manager := stack.Monitoring.Health()

	manager.RegisterLiveness(checks.Maintenance(0))
	manager.RegisterReadiness(checks.Database(stack.DB, 0))
	manager.RegisterReadiness(checks.Realtime(stack.Hub))
	manager.RegisterReadiness(checks.SyncBacklog(cfg.Monitoring.Health.BacklogWarnSize))

	var pinger checks.RemotePinger
	if stack.Remote != nil {
		pinger = stack.Remote
	}
	manager.RegisterReadiness(checks.Remote(pinger, cfg.Remote.Timeout))
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		if done := s.Cleaner.Stop().Done(); done != nil {
			select {
			case <-done:
			case <-ctx.Done():
			}
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Engine != nil && s.engineStarted {
		if err := s.Engine.Shutdown(ctx); err != nil {
			log.Warn("engine shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}

package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/marketsync/internal/app"
	"github.com/charlesng35/marketsync/internal/engine"
	"github.com/charlesng35/marketsync/internal/handlers"
	"github.com/charlesng35/marketsync/internal/middleware"
	"github.com/charlesng35/marketsync/internal/monitoring"
	"github.com/charlesng35/marketsync/internal/realtime"
)

// NewRouter builds the Gin engine, wires middleware and registers the local control API.
func NewRouter(cfg *app.Config, eng *engine.Engine, hub *realtime.Hub, mon *monitoring.Module) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthRoutes(r, cfg, mon)

	api := r.Group("/api")

	if err := registerSyncRoutes(api, eng); err != nil {
		return nil, err
	}
	if err := registerCacheRoutes(api, eng); err != nil {
		return nil, err
	}
	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(mon, cfg))
	registerRealtimeRoutes(r, hub)

	if cfg.Monitoring.Prometheus.Enabled && mon != nil {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(mon.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerSyncRoutes(api *gin.RouterGroup, eng *engine.Engine) error {
	syncHandler, err := handlers.NewSyncHandler(eng)
	if err != nil {
		return err
	}
	settingsHandler, err := handlers.NewSettingsHandler(eng.Coordinator)
	if err != nil {
		return err
	}

	sync := api.Group("/sync")
	{
		sync.GET("/status", syncHandler.Status)
		// Manual drains are expensive against the remote; 10 per minute per client.
		sync.POST("/drain", middleware.RateLimit(10, time.Minute), syncHandler.Drain)
		sync.GET("/pending", syncHandler.Pending)
		sync.GET("/dead-letters", syncHandler.DeadLetters)
		sync.POST("/dead-letters/:id/requeue", syncHandler.Requeue)
	}

	api.POST("/mutations", syncHandler.Mutate)
	api.PUT("/settings/offline-mode", settingsHandler.SetOfflineMode)
	api.PUT("/connectivity", settingsHandler.SetConnectivity)
	return nil
}

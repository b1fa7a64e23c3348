package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/marketsync/internal/engine"
	"github.com/charlesng35/marketsync/internal/handlers"
)

func registerCacheRoutes(api *gin.RouterGroup, eng *engine.Engine) error {
	cacheHandler, err := handlers.NewCacheHandler(eng.Cache)
	if err != nil {
		return err
	}

	cache := api.Group("/cache")
	{
		cache.GET("/stats", cacheHandler.Stats)
		cache.DELETE("", cacheHandler.Invalidate)
	}
	return nil
}

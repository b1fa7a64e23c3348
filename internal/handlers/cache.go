package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/marketsync/internal/cache"
	"github.com/charlesng35/marketsync/pkg/errors"
	"github.com/charlesng35/marketsync/pkg/response"
)

// CacheHandler exposes cache statistics and invalidation.
type CacheHandler struct {
	cache *cache.Cache
}

// NewCacheHandler constructs a cache handler.
func NewCacheHandler(c *cache.Cache) (*CacheHandler, error) {
	if c == nil {
		return nil, errors.New("CACHE_UNAVAILABLE", "cache is required", http.StatusInternalServerError)
	}
	return &CacheHandler{cache: c}, nil
}

// Stats returns the derived statistics snapshot.
func (h *CacheHandler) Stats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.cache.Stats())
}

// Invalidate removes keys matching the pattern query parameter, or with the prefix query
// parameter. all=true clears the cache.
func (h *CacheHandler) Invalidate(c *gin.Context) {
	pattern := strings.TrimSpace(c.Query("pattern"))
	prefix := strings.TrimSpace(c.Query("prefix"))

	switch {
	case c.Query("all") == "true":
		entries := h.cache.Stats().CurrentEntries
		h.cache.Clear()
		response.Success(c, http.StatusOK, gin.H{"removed": entries})
	case pattern != "":
		removed, err := h.cache.InvalidatePattern(pattern)
		if err != nil {
			response.Error(c, translateError(err))
			return
		}
		response.Success(c, http.StatusOK, gin.H{"removed": removed})
	case prefix != "":
		response.Success(c, http.StatusOK, gin.H{"removed": h.cache.InvalidatePrefix(prefix)})
	default:
		response.Error(c, errors.NewBadRequest("pattern, prefix or all=true is required"))
	}
}

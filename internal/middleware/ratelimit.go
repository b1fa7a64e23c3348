package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/marketsync/pkg/errors"
	"github.com/charlesng35/marketsync/pkg/response"
)

var errTooManyRequests = appErrors.New("TOO_MANY_REQUESTS", "Too many requests", http.StatusTooManyRequests)

type rateCounter struct {
	count     int
	windowEnd time.Time
}

// rateLimiter keeps fixed-window counters per key.
type rateLimiter struct {
	mu    sync.Mutex
	data  map[string]*rateCounter
	clock func() time.Time
}

func (l *rateLimiter) increment(key string, window time.Duration) (int, time.Duration) {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop finished windows lazily so the map stays bounded by active clients.
	for k, v := range l.data {
		if now.After(v.windowEnd) {
			delete(l.data, k)
		}
	}

	ct, ok := l.data[key]
	if !ok {
		ct = &rateCounter{windowEnd: now.Add(window)}
		l.data[key] = ct
	}
	ct.count++
	return ct.count, ct.windowEnd.Sub(now)
}

// RateLimit returns a middleware that limits requests per (clientIP,path) within a fixed window.
// Control endpoints such as manual drains use it so a UI loop cannot hammer the remote.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{data: make(map[string]*rateCounter), clock: time.Now}

	return func(c *gin.Context) {
		if maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		count, resetIn := limiter.increment(c.ClientIP()+"|"+c.FullPath(), window)

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, maxRequests-count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > maxRequests {
			response.Error(c, errTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}

// internal/api/ratelimit.go
package api

import (
	"net/http"
	"sync"
	"time"

	"ican-workers/internal/common/logger"
	"ican-workers/internal/common/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller. Callers are keyed by
// X-User-ID and fall back to the client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*callerLimiter
	rate     rate.Limit
	burst    int
	logger   logger.Logger
	now      func() time.Time
}

func NewRateLimiter(requestsPerSecond float64, burst int, log logger.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*callerLimiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		logger:   logger.Component(log, "ratelimit"),
		now:      time.Now,
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[key]
	if !ok {
		cl = &callerLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = rl.now()
	return cl.limiter.Allow()
}

// Middleware rejects callers that exceed their bucket with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(UserHeader)
		if key == "" {
			key = c.ClientIP()
		}
		if !rl.allow(key) {
			metrics.APIRateLimited.Inc()
			rl.logger.Warn("rate limit exceeded", map[string]interface{}{
				"caller": key,
				"path":   c.FullPath(),
			})
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": gin.H{
				"code":    "RATE_LIMITED",
				"message": "too many requests",
			}})
			return
		}
		c.Next()
	}
}

// Sweep drops limiters idle for longer than idle and returns how many were removed.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for key, cl := range rl.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

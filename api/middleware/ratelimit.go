package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/use-agent/readtrack/clock"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/models"
)

// Identity names the bucket a request draws from.
type Identity func(c *gin.Context) string

// ByKey uses the API key set by Auth, or the client IP without one.
func ByKey(c *gin.Context) string {
	if key := c.GetString(APIKeyContextKey); key != "" {
		return key
	}
	return c.ClientIP()
}

// ByClient uses the API key and the client IP together. Beacon routes use
// it: every visitor of a site shares the site's key.
func ByClient(c *gin.Context) string {
	return c.GetString(APIKeyContextKey) + "|" + c.ClientIP()
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out per-identity token buckets
// (golang.org/x/time/rate). Buckets unused for an hour are evicted by a
// background goroutine; call Stop to end it.
type RateLimiter struct {
	cfg config.RateLimitConfig
	clk clock.Clock

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter returns a RateLimiter. clk may be nil.
func NewRateLimiter(cfg config.RateLimitConfig, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.Real()
	}
	rl := &RateLimiter{
		cfg:      cfg,
		clk:      clk,
		limiters: make(map[string]*limiterEntry),
		done:     make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Handler returns middleware limiting requests per identity.
func (rl *RateLimiter) Handler(identity Identity) gin.HandlerFunc {
	if identity == nil {
		identity = ByKey
	}
	return func(c *gin.Context) {
		if !rl.allow(identity(c)) {
			abort(c, http.StatusTooManyRequests, models.ErrCodeRateLimited, "rate limit exceeded, please slow down")
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(id string) bool {
	rl.mu.Lock()
	entry, ok := rl.limiters[id]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		rl.limiters[id] = entry
	}
	now := rl.clk.Now()
	entry.lastSeen = now
	rl.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// evict drops buckets not used in the last hour and returns how many.
func (rl *RateLimiter) evict() int {
	cutoff := rl.clk.Now().Add(-time.Hour)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for id, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, id)
			n++
		}
	}
	return n
}

// Package cache keeps recent page analyses in memory.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/use-agent/readtrack/clock"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/models"
)

// maxLifetime is how long an entry may live regardless of the max age
// requested.
const maxLifetime = time.Hour

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  models.AnalyzeResponse
	createdAt time.Time
}

// Cache is an in-memory cache of analysis responses. It is safe for
// concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	clk        clock.Clock

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Cache holding at most maxEntries responses and starts a
// background goroutine that evicts entries older than an hour. Call Stop to
// end it. clk may be nil.
func New(maxEntries int, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.Real()
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		clk:        clk,
		done:       make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Key identifies an analysis: everything in the request that changes the
// result, plus the effective reading settings.
func Key(req *models.AnalyzeRequest, reading config.ReadingConfig) string {
	product := "-"
	if req.ProductPage != nil {
		product = fmt.Sprint(*req.ProductPage)
	}
	preview := req.Preview == nil || *req.Preview

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%dx%d|%s|%t|%t|%t|%t|",
		req.URL, req.FetchMode,
		req.ViewportWidth, req.ViewportHeight,
		product, preview, req.BlockAds, req.RemoveOverlays, req.Stealth,
	)
	fmt.Fprintf(h, "%d|%d|%g|%t|%s|%d",
		reading.PixelThreshold, reading.TimeThreshold, reading.ResizeFactor,
		reading.DebugMode, reading.ProfileFile, reading.WordsPerMinute,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a copy of a cached response younger than maxAgeMs
// milliseconds. maxAgeMs <= 0 never hits.
func (c *Cache) Get(key string, maxAgeMs int) (*models.AnalyzeResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.clk.Now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	resp := e.response
	return &resp, true
}

// Set stores a copy of resp. If the cache is at capacity, the oldest entry
// is evicted to make room.
func (c *Cache) Set(key string, resp *models.AnalyzeResponse) {
	if c.maxEntries <= 0 || resp == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		var oldest string
		var oldestAt time.Time
		for k, e := range c.store {
			if oldest == "" || e.createdAt.Before(oldestAt) {
				oldest, oldestAt = k, e.createdAt
			}
		}
		delete(c.store, oldest)
	}

	c.store[key] = &entry{response: *resp, createdAt: c.clk.Now()}
}

// Len returns the number of cached responses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// cleanupLoop evicts expired entries every 5 minutes.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.expire()
		}
	}
}

// expire evicts entries older than maxLifetime and returns how many.
func (c *Cache) expire() int {
	cutoff := c.clk.Now().Add(-maxLifetime)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
			n++
		}
	}
	return n
}

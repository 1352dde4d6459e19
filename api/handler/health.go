package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/readtrack/dom"
	"github.com/use-agent/readtrack/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// PoolStatter reports the browser page pool.
type PoolStatter interface {
	Stats() models.PoolStats
}

// SessionCounter reports the number of open sessions.
type SessionCounter interface {
	Len() int
}

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of the pages are in use, and is
// "no_browser" when the server runs without one.
func Health(pool PoolStatter, sessions SessionCounter, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "no_browser"
		var stats models.PoolStats
		if pool != nil {
			stats = pool.Stats()
			status = "healthy"
			if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
				status = "degraded"
			}
		}
		open := 0
		if sessions != nil {
			open = sessions.Len()
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Sessions:  open,
			Version:   Version,
		})
	}
}

// Annotator returns a handler serving the beacon script pages embed:
//
//	<script src="/api/v1/annotator.js" data-key="..." data-endpoint="..."></script>
func Annotator() gin.HandlerFunc {
	body := []byte(dom.BeaconJS)
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=3600")
		c.Data(http.StatusOK, "application/javascript; charset=utf-8", body)
	}
}

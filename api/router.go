package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/api/handler"
	"github.com/use-agent/readtrack/api/middleware"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/session"
)

// Deps are the services the routes are built from. Simulator and Pool are
// nil when the server runs without a browser.
type Deps struct {
	Config    *config.Config
	Analyzer  *handler.Analyzer
	Simulator handler.Simulator
	Pool      handler.PoolStatter
	Sessions  *session.Manager
	Registry  *analytics.Registry
	Limiter   *middleware.RateLimiter
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger → CORS
//	API:     Auth (if enabled) → RateLimit (per key)
//	Beacon:  Auth (if enabled) → RateLimit (per key and client IP)
//
// Health and the annotator script are outside auth so monitoring probes and
// embedding pages always work.
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))

	v1 := r.Group("/api/v1")

	// Open
	v1.GET("/health", handler.Health(d.Pool, d.Sessions, d.StartTime))
	v1.GET("/annotator.js", handler.Annotator())

	auth := func(g *gin.RouterGroup) {
		if cfg.Auth.Enabled {
			g.Use(middleware.Auth(cfg.Auth.APIKeys))
		}
	}

	// Analysis
	protected := v1.Group("")
	auth(protected)
	protected.Use(d.Limiter.Handler(middleware.ByKey))
	protected.POST("/analyze", handler.Analyze(d.Analyzer))
	protected.POST("/simulate", handler.Simulate(d.Simulator, d.Analyzer.Locator, d.Registry, cfg.Reading, nil))

	// Beacons
	beacon := v1.Group("/sessions")
	auth(beacon)
	beacon.Use(d.Limiter.Handler(middleware.ByClient))
	sessions := &handler.Sessions{Manager: d.Sessions}
	beacon.POST("", sessions.Open)
	beacon.GET("/:id", sessions.Get)
	beacon.DELETE("/:id", sessions.Close)
	beacon.POST("/:id/scroll", sessions.Scroll)
	beacon.POST("/:id/interaction", sessions.Interaction)

	return r
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/browser"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/models"
)

// Simulator plays scripted visits in a browser.
type Simulator interface {
	Simulate(ctx context.Context, req *models.SimulateRequest, opts browser.SimulateOptions) (*browser.SimulateResult, error)
}

// Simulate returns a handler for POST /api/v1/simulate. sim may be nil when
// the server runs without a browser.
func Simulate(sim Simulator, loc *content.Locator, registry *analytics.Registry, reading config.ReadingConfig, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()

		var req models.SimulateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		req.Defaults()
		cfg := reading.Merge(req.Reading)
		if err := cfg.Validate(); err != nil {
			invalidInput(c, err)
			return
		}

		if sim == nil {
			respondError(c, models.NewTrackError(models.ErrCodeUnavailable, "no browser available for simulation", nil))
			return
		}

		opts := browser.SimulateOptions{Reading: cfg}
		if loc != nil {
			opts.Locator = loc.WithReading(cfg)
			if req.ProductPage != nil {
				opts.Locator = opts.Locator.WithProbe(content.FixedProductProbe(*req.ProductPage))
			}
		}
		if registry != nil {
			if t, ok := registry.Resolve(cfg.TrackerName); ok {
				opts.Tracker = t
			}
		}

		res, err := sim.Simulate(c.Request.Context(), &req, opts)
		if err != nil {
			logger.Warn("simulate failed", "url", req.URL, "error", err)
			respondError(c, asTrackError(err, models.ErrCodeInternal))
			return
		}

		resp := models.SimulateResponse{
			Success: true,
			URL:     req.URL,
			Region:  &res.Region,
			Events:  res.Events,
			State:   &res.State,
			Steps:   res.Steps,
			Timing:  models.TimingInfo{TotalMs: time.Since(start).Milliseconds()},
		}
		if res.Page != nil {
			resp.FinalURL = res.Page.FinalURL
			resp.Title = res.Page.Title
		}
		c.JSON(http.StatusOK, resp)
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/api"
	"github.com/use-agent/readtrack/api/handler"
	"github.com/use-agent/readtrack/api/middleware"
	"github.com/use-agent/readtrack/browser"
	"github.com/use-agent/readtrack/cache"
	"github.com/use-agent/readtrack/clock"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/engine"
	"github.com/use-agent/readtrack/models"
	"github.com/use-agent/readtrack/preview"
	"github.com/use-agent/readtrack/session"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Reading.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid reading configuration:", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("readtrack starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
		"pixelThreshold", cfg.Reading.PixelThreshold,
		"timeThreshold", cfg.Reading.TimeThreshold,
		"resizeFactor", cfg.Reading.ResizeFactor,
	)

	// ── 3. Content locator ──────────────────────────────────────────
	profile := content.DefaultProfile()
	if cfg.Reading.ProfileFile != "" {
		p, err := content.LoadProfile(cfg.Reading.ProfileFile)
		if err != nil {
			slog.Error("failed to load detector profile", "file", cfg.Reading.ProfileFile, "error", err)
			os.Exit(1)
		}
		profile = p
	}
	locator := content.NewLocator(cfg.Reading, profile, content.SchemaProductProbe, slog.Default())

	// ── 4. Analytics trackers ───────────────────────────────────────
	clk := clock.Real()
	registry := analytics.NewRegistry(slog.Default())
	if cfg.Session.WebhookURL != "" {
		registry.Register("webhook", analytics.NewWebhookTracker(cfg.Session.WebhookURL, cfg.Session.WebhookSecret, "", clk))
	}
	if _, ok := registry.Resolve(cfg.Reading.TrackerName); !ok {
		slog.Warn("configured tracker is not registered, events are only recorded",
			"tracker", cfg.Reading.TrackerName,
			"registered", registry.Names(),
		)
	}

	// ── 5. Fetch engines ────────────────────────────────────────────
	httpEngine := engine.NewHTTPEngine()
	engines := map[string]engine.Engine{models.FetchModeHTTP: httpEngine}

	// The server still analyses plain fetches and hosts beacon sessions
	// when Chrome is missing.
	var (
		simulator handler.Simulator
		pool      handler.PoolStatter
	)
	br, err := browser.New(cfg.Browser, cfg.Scraper, slog.Default())
	if err != nil {
		slog.Error("browser unavailable, rendering disabled", "error", err)
		engines[models.FetchModeAuto] = httpEngine
	} else {
		defer br.Close()
		simulator, pool = br, br

		// This closure avoids a circular import (engine/ never imports browser/).
		rodFetch := func(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
			res, err := br.Snapshot(ctx, pageRequest(req))
			if err != nil {
				return nil, err
			}
			return &engine.FetchResult{
				HTML:           res.HTML,
				Title:          res.Title,
				StatusCode:     res.StatusCode,
				FinalURL:       res.FinalURL,
				DocumentHeight: res.DocumentHeight,
				ViewportHeight: res.ViewportHeight,
			}, nil
		}
		rodEngine := engine.NewRodEngine(rodFetch, false)
		rodStealthEngine := engine.NewRodEngine(rodFetch, true)

		memory := engine.NewDomainMemory(24*time.Hour, clk)
		engines[models.FetchModeBrowser] = rodEngine
		engines[models.FetchModeAuto] = engine.NewDispatcher(
			[]engine.Engine{rodEngine, rodStealthEngine, httpEngine}, memory, slog.Default())
		slog.Info("browser ready", "maxPages", cfg.Browser.MaxPages)
	}

	// ── 6. Sessions, cache, rate limits ─────────────────────────────
	sessions := session.NewManager(cfg.Session, cfg.Reading, registry, locator, clk, slog.Default())
	defer sessions.Stop()

	cc := cache.New(cfg.Cache.MaxEntries, clk)
	defer cc.Stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimit, clk)
	defer limiter.Stop()

	// ── 7. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(api.Deps{
		Config: cfg,
		Analyzer: &handler.Analyzer{
			Engines: engines,
			Locator: locator,
			Preview: preview.NewBuilder(cfg.Reading.WordsPerMinute, slog.Default()),
			Cache:   cc,
			Reading: cfg.Reading,
			Logger:  slog.Default(),
		},
		Simulator: simulator,
		Pool:      pool,
		Sessions:  sessions,
		Registry:  registry,
		Limiter:   limiter,
		StartTime: startTime,
	})

	// ── 8. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 9. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Deferred: open sessions are closed and reported, then Chrome is killed.
	slog.Info("readtrack stopping", "openSessions", sessions.Len())
}

// pageRequest turns an engine request back into a browser request.
func pageRequest(req *engine.FetchRequest) *models.PageRequest {
	cookies := make([]models.Cookie, len(req.Cookies))
	for i, c := range req.Cookies {
		cookies[i] = models.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path}
	}
	pr := &models.PageRequest{
		URL:            req.URL,
		Timeout:        int(req.Timeout.Seconds()),
		Stealth:        req.Stealth,
		Headers:        req.Headers,
		Cookies:        cookies,
		BlockAds:       req.BlockAds,
		RemoveOverlays: req.RemoveOverlays,
		ViewportWidth:  req.ViewportWidth,
		ViewportHeight: req.ViewportHeight,
	}
	pr.Defaults()
	return pr
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

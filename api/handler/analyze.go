package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/cache"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/dom"
	"github.com/use-agent/readtrack/engine"
	"github.com/use-agent/readtrack/models"
	"github.com/use-agent/readtrack/preview"
)

// Analyzer holds what the analyze endpoint needs.
type Analyzer struct {
	// Engines are keyed by fetch mode. A missing mode is unavailable.
	Engines map[string]engine.Engine

	Locator *content.Locator
	Preview *preview.Builder

	// Cache may be nil.
	Cache *cache.Cache

	Reading config.ReadingConfig
	Logger  *slog.Logger
}

// Analyze returns a handler for POST /api/v1/analyze.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults, merge reading settings.
//  2. Cache lookup.
//  3. Fetch the page with the engine of the fetch mode (records fetch_ms).
//  4. Locate the content and build the preview   (records analysis_ms).
//  5. Fill timing, store in cache, return 200.
func Analyze(a *Analyzer) gin.HandlerFunc {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}
		req.Defaults()
		reading := a.Reading.Merge(req.Reading)
		if err := reading.Validate(); err != nil {
			invalidInput(c, err)
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		cacheKey := ""
		if a.Cache != nil && req.MaxAge > 0 {
			cacheKey = cache.Key(&req, reading)
			if cached, hit := a.Cache.Get(cacheKey, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				cached.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Fetch ────────────────────────────────────────────────
		eng, ok := a.Engines[req.FetchMode]
		if !ok || eng == nil {
			respondError(c, models.NewTrackError(models.ErrCodeUnavailable,
				fmt.Sprintf("fetch mode %q is not available on this server", req.FetchMode), nil))
			return
		}

		fetchStart := time.Now()
		page, err := eng.Fetch(c.Request.Context(), fetchRequest(&req.PageRequest))
		fetchMs := time.Since(fetchStart).Milliseconds()
		if err != nil {
			logger.Warn("analyze: fetch failed", "url", req.URL, "engine", eng.Name(), "error", err)
			respondError(c, asTrackError(err, models.ErrCodeNavigation))
			return
		}

		// ── 4. Analyse ──────────────────────────────────────────────
		analysisStart := time.Now()
		resp, err := a.analyze(&req, reading, page, logger)
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 5. Timing, cache, respond ───────────────────────────────
		resp.Timing = models.TimingInfo{
			TotalMs:    time.Since(totalStart).Milliseconds(),
			FetchMs:    fetchMs,
			AnalysisMs: time.Since(analysisStart).Milliseconds(),
		}
		if cacheKey != "" {
			a.Cache.Set(cacheKey, resp)
			resp.CacheStatus = "miss"
		}

		c.JSON(http.StatusOK, resp)
	}
}

// analyze locates the content of a fetched page. Pages without layout
// annotations get detection only.
func (a *Analyzer) analyze(req *models.AnalyzeRequest, reading config.ReadingConfig, page *engine.FetchResult, logger *slog.Logger) (*models.AnalyzeResponse, error) {
	doc, err := dom.ParseSnapshotString(page.HTML, logger)
	if err != nil {
		return nil, models.NewTrackError(models.ErrCodeSnapshotFailed, "cannot parse page", err)
	}

	loc := a.Locator
	if loc == nil {
		loc = content.NewLocator(reading, content.DefaultProfile(), content.SchemaProductProbe, logger)
	} else {
		loc = loc.WithReading(reading)
	}
	if req.ProductPage != nil {
		loc = loc.WithProbe(content.FixedProductProbe(*req.ProductPage))
	}

	match := loc.Detect(doc)
	resp := &models.AnalyzeResponse{
		Success:    true,
		URL:        req.URL,
		FinalURL:   page.FinalURL,
		StatusCode: page.StatusCode,
		Title:      page.Title,
		EngineUsed: page.EngineName,
		Detection: &models.Detection{
			Detector:    match.Detector.Name,
			Kind:        match.Detector.Kind,
			ProductPage: match.Product,
			Elements:    match.Nodes.Len(),
		},
		Diagnostics: &models.Diagnostics{
			Annotated:      doc.Annotated(),
			DocumentHeight: doc.Height(),
			ViewportHeight: doc.ViewportHeight(),
			PageBottomAt:   doc.Height() * reading.ResizeFactor,
		},
	}
	if resp.Title == "" {
		resp.Title = doc.Title()
	}

	contentHTML := match.Nodes.OuterHTML()
	if doc.Annotated() {
		rec := analytics.NewRecorder(nil)
		em := analytics.NewEmitter(rec, doc.Title(), reading.DebugMode, logger)
		region := loc.Locate(doc, em)
		resp.Region = &region
		resp.Events = rec.Events()
		resp.Diagnostics.ContentGuessed = region.Guessed
		resp.Diagnostics.ContentTooShort = slices.Contains(rec.Names(), analytics.EventContentTooShort)
		contentHTML = region.Elements.OuterHTML()
		// Cached responses must not pin the parsed page.
		region.Elements = nil
	} else {
		resp.Diagnostics.ContentGuessed = match.Detector.Kind == content.KindFallback
	}

	if req.Preview != nil && *req.Preview && a.Preview != nil {
		source := page.FinalURL
		if source == "" {
			source = req.URL
		}
		resp.Preview = a.Preview.Build(page.HTML, source, contentHTML, reading.TimeThreshold)
	}
	return resp, nil
}

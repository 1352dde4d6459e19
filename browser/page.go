package browser

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/readtrack/dom"
	"github.com/use-agent/readtrack/models"
)

// Result is a rendered page with its layout recorded in the markup.
type Result struct {
	// HTML is the annotated page markup (see dom.AnnotatorJS).
	HTML string

	Title      string
	FinalURL   string
	StatusCode int

	DocumentHeight float64
	ViewportHeight float64
}

// Snapshot renders the page, records its layout and returns the annotated
// markup.
func (b *Browser) Snapshot(ctx context.Context, req *models.PageRequest) (*Result, error) {
	var result *Result
	err := b.withPage(ctx, req, func(p *rod.Page) error {
		var err error
		result, err = annotate(p, req.URL)
		return err
	})
	return result, err
}

// withPage loads req.URL into a pooled tab and hands it to fn.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard       – hard deadline on the entire operation
//  2. Acquire page        – borrow a tab from the pool (or create one)
//  3. DEFER: cleanup      – about:blank + return to pool
//  4. Stealth injection   – before navigation
//  5. Headers and cookies
//  6. Hijack mount        – block resource types and ad domains
//  7. Viewport            – emulate the requested window size
//  8. Navigate and wait   – DOM stable
//  9. Status and overlays
//  10. fn
//
// Steps 4 to 7 must happen before navigation: they only apply to documents
// loaded after they are installed.
func (b *Browser) withPage(ctx context.Context, req *models.PageRequest, fn func(p *rod.Page) error) error {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	timeout := time.Duration(req.Timeout) * time.Second
	if timeout <= 0 {
		timeout = b.scraperCfg.DefaultTimeout
	}
	if b.scraperCfg.MaxTimeout > 0 && timeout > b.scraperCfg.MaxTimeout {
		timeout = b.scraperCfg.MaxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// ── 2. Acquire page from pool ─────────────────────────────────────
	b.activePages.Add(1)
	defer b.activePages.Add(-1)

	page, err := b.pagePool.Get(func() (*rod.Page, error) {
		return b.browser.Page(proto.TargetCreateTarget{})
	})
	if err != nil {
		return models.NewTrackError(models.ErrCodeBrowserCrash, "failed to acquire page from pool", err)
	}

	// ── 3. Cleanup: blank the tab and return it to the pool ──────────
	defer func() {
		if navErr := page.Navigate("about:blank"); navErr != nil {
			b.logger.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
		}
		b.pagePool.Put(page)
	}()

	// ── 4. Stealth injection ──────────────────────────────────────────
	if req.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			b.logger.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	// ── 5. Extra headers (custom + Google Referer) and cookies ────────
	if headers := extraHeaders(req.URL, req.Headers); len(headers) > 0 {
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(headers)}.Call(page)
	}
	for _, cookie := range req.Cookies {
		_, _ = cookieParams(req.URL, cookie).Call(page)
	}

	// ── 6. Mount hijack router ────────────────────────────────────────
	if router := setupHijack(page, b.scraperCfg.BlockedResourceTypes, req.BlockAds); router != nil {
		defer func() { _ = router.Stop() }()
	}

	// ── 7. Viewport ───────────────────────────────────────────────────
	width, height := b.viewport(req)
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return categorizeError(err, "failed to set viewport")
	}

	p := page.Context(ctx)

	// ── 8. Navigate and wait ──────────────────────────────────────────
	if err := p.Navigate(req.URL); err != nil {
		return categorizeError(err, "navigation to target URL failed")
	}
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		b.logger.Debug("WaitDOMStable did not converge, proceeding with current DOM", "error", err)
	}

	// ── 9. Overlays ───────────────────────────────────────────────────
	if req.RemoveOverlays {
		removeOverlays(p)
	}

	// ── 10. Caller ────────────────────────────────────────────────────
	return fn(p)
}

func (b *Browser) viewport(req *models.PageRequest) (width, height int) {
	width, height = req.ViewportWidth, req.ViewportHeight
	if width <= 0 {
		width = b.browserCfg.ViewportWidth
	}
	if height <= 0 {
		height = b.browserCfg.ViewportHeight
	}
	return width, height
}

// annotate records the layout of the loaded page and collects its markup.
func annotate(p *rod.Page, requested string) (*Result, error) {
	res, err := p.Eval(dom.AnnotatorJS)
	if err != nil {
		return nil, categorizeError(err, "failed to measure page")
	}
	docHeight := res.Value.Num()

	html, err := p.HTML()
	if err != nil {
		return nil, categorizeError(err, "failed to extract page HTML")
	}

	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = requested
	}

	var viewportHeight float64
	if v, err := p.Eval(`() => window.innerHeight`); err == nil {
		viewportHeight = v.Value.Num()
	}

	return &Result{
		HTML:           html,
		Title:          evalStringOrEmpty(p, `() => document.title`),
		FinalURL:       finalURL,
		StatusCode:     statusCode(p),
		DocumentHeight: docHeight,
		ViewportHeight: viewportHeight,
	}, nil
}

// statusCode reads the HTTP status of the main document from the
// navigation timing entry (best-effort).
func statusCode(p *rod.Page) int {
	res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`)
	if err != nil {
		return 0
	}
	return res.Value.Int()
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors.
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// extraHeaders merges the custom headers with a search engine Referer.
func extraHeaders(target string, custom map[string]string) map[string]string {
	headers := make(map[string]string, len(custom)+1)
	if _, ok := custom["Referer"]; !ok {
		if u, err := url.Parse(target); err == nil && u.Hostname() != "" {
			headers["Referer"] = "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname())
		}
	}
	for k, v := range custom {
		headers[k] = v
	}
	return headers
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// cookieParams fills the cookie domain from the target URL and the path
// with "/" when they are empty.
func cookieParams(target string, c models.Cookie) proto.NetworkSetCookie {
	domain := c.Domain
	if domain == "" {
		if u, err := url.Parse(target); err == nil {
			domain = u.Hostname()
		}
	}
	path := c.Path
	if path == "" {
		path = "/"
	}
	return proto.NetworkSetCookie{
		Name:   c.Name,
		Value:  c.Value,
		Domain: domain,
		Path:   path,
	}
}

// removeOverlays removes fixed and sticky elements with a high z-index and
// common consent banners. They cover the content and shift the layout.
func removeOverlays(p *rod.Page) {
	const js = `() => {
		for (const el of document.querySelectorAll('*')) {
			const style = window.getComputedStyle(el);
			if (style.position === 'fixed' || style.position === 'sticky') {
				const z = parseInt(style.zIndex, 10);
				if (z >= 900) {
					el.remove();
				}
			}
		}
		const selectors = [
			'[class*="cookie"]', '[class*="consent"]', '[class*="overlay"]',
			'[id*="cookie"]', '[id*="consent"]', '[id*="overlay"]',
			'[class*="popup"]', '[id*="popup"]',
			'[class*="gdpr"]', '[id*="gdpr"]',
		];
		for (const sel of selectors) {
			document.querySelectorAll(sel).forEach(el => {
				const style = window.getComputedStyle(el);
				if (style.position === 'fixed' || style.position === 'sticky' || style.position === 'absolute') {
					el.remove();
				}
			});
		}
		document.documentElement.style.overflow = '';
		document.body.style.overflow = '';
	}`
	_, _ = p.Eval(js)
}

// categorizeError wraps raw errors into typed TrackErrors so the API layer
// can map them to HTTP status codes.
func categorizeError(err error, msg string) *models.TrackError {
	var te *models.TrackError
	switch {
	case errors.As(err, &te):
		return te
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewTrackError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewTrackError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewTrackError(models.ErrCodeNavigation, msg, err)
	}
}

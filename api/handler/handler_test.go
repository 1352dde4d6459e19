package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/browser"
	"github.com/use-agent/readtrack/cache"
	"github.com/use-agent/readtrack/clock/clocktest"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/engagement"
	"github.com/use-agent/readtrack/engine"
	"github.com/use-agent/readtrack/models"
	"github.com/use-agent/readtrack/preview"
	"github.com/use-agent/readtrack/session"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

const blogPage = `<html data-rt-doc-height="5000" data-rt-viewport-height="800">
<head><title>Pasta night</title></head>
<body data-rt-top="0" data-rt-height="5000">
  <article id="post-3" data-rt-top="400" data-rt-height="4300">
    <div class="entry-content" data-rt-top="500" data-rt-height="4000">
      <p>Boil the water and salt it well before the pasta goes in.</p>
    </div>
  </article>
</body>
</html>`

const shortPage = `<html data-rt-doc-height="900" data-rt-viewport-height="800">
<head><title>Contact</title></head>
<body data-rt-top="0" data-rt-height="900">
  <div id="content" data-rt-top="100" data-rt-height="100"><p>Write to us.</p></div>
</body>
</html>`

const plainPage = `<html><head><title>Pasta night</title></head>
<body><article id="post-3"><div class="entry-content"><p>Boil the water.</p></div></article></body></html>`

type fakeEngine struct {
	name  string
	html  string
	err   error
	calls int
	last  *engine.FetchRequest
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Fetch(_ context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &engine.FetchResult{
		HTML:       f.html,
		StatusCode: http.StatusOK,
		FinalURL:   req.URL,
		EngineName: f.name,
		Rendered:   f.name == "rod",
	}, nil
}

func newAnalyzer(engines map[string]engine.Engine) *Analyzer {
	reading := config.DefaultReading()
	return &Analyzer{
		Engines: engines,
		Locator: content.NewLocator(reading, content.DefaultProfile(), content.SchemaProductProbe, nil),
		Preview: preview.NewBuilder(230, nil),
		Reading: reading,
	}
}

func post(h gin.HandlerFunc, body any) *httptest.ResponseRecorder {
	r := gin.New()
	r.POST("/", h)
	data, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data)))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode[models.ErrorResponse](t, w)
	require.NotNil(t, body.Error)
	return body.Error.Code
}

func TestAnalyze_BlogEntry(t *testing.T) {
	rod := &fakeEngine{name: "rod", html: blogPage}
	h := Analyze(newAnalyzer(map[string]engine.Engine{models.FetchModeBrowser: rod}))

	w := post(h, map[string]any{
		"url":             "https://blog.example/pasta",
		"viewport_height": 800,
		"cookies":         []map[string]string{{"name": "consent", "value": "yes"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.AnalyzeResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "rod", resp.EngineUsed)
	assert.Equal(t, "Pasta night", resp.Title)
	require.NotNil(t, resp.Detection)
	assert.Equal(t, content.KindBlogEntry, resp.Detection.Kind)
	assert.Equal(t, 1, resp.Detection.Elements)

	require.NotNil(t, resp.Region)
	assert.Equal(t, 500.0, resp.Region.StartOffset)
	assert.Equal(t, 4500.0, resp.Region.EndOffset)
	assert.Equal(t, 3400, resp.Region.Height)
	assert.Empty(t, resp.Events)

	require.NotNil(t, resp.Diagnostics)
	assert.True(t, resp.Diagnostics.Annotated)
	assert.Equal(t, 4250.0, resp.Diagnostics.PageBottomAt)
	assert.False(t, resp.Diagnostics.ContentGuessed)
	assert.False(t, resp.Diagnostics.ContentTooShort)

	require.NotNil(t, resp.Preview)
	assert.Positive(t, resp.Preview.Words)
	assert.Contains(t, resp.Preview.Markdown, "Boil the water")
	assert.Empty(t, resp.CacheStatus)

	require.NotNil(t, rod.last)
	assert.Equal(t, 30*time.Second, rod.last.Timeout)
	assert.Equal(t, 800, rod.last.ViewportHeight)
	require.Len(t, rod.last.Cookies, 1)
	assert.Equal(t, "consent", rod.last.Cookies[0].Name)
}

func TestAnalyze_GuessedShortContent(t *testing.T) {
	h := Analyze(newAnalyzer(map[string]engine.Engine{
		models.FetchModeBrowser: &fakeEngine{name: "rod", html: shortPage},
	}))

	w := post(h, map[string]any{"url": "https://blog.example/contact", "preview": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.AnalyzeResponse](t, w)
	require.NotNil(t, resp.Region)
	assert.Equal(t, "#content", resp.Region.Name)
	assert.True(t, resp.Diagnostics.ContentGuessed)
	assert.True(t, resp.Diagnostics.ContentTooShort)

	names := make([]string, len(resp.Events))
	for i, e := range resp.Events {
		names[i] = e.Name
	}
	assert.Equal(t, []string{analytics.EventContentGuessed, analytics.EventContentTooShort}, names)
	assert.Nil(t, resp.Preview)
}

func TestAnalyze_PlainFetchDetectsOnly(t *testing.T) {
	h := Analyze(newAnalyzer(map[string]engine.Engine{
		models.FetchModeHTTP: &fakeEngine{name: "http", html: plainPage},
	}))

	w := post(h, map[string]any{"url": "https://blog.example/pasta", "fetch_mode": "http"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.AnalyzeResponse](t, w)
	assert.Nil(t, resp.Region)
	assert.Equal(t, content.KindBlogEntry, resp.Detection.Kind)
	assert.False(t, resp.Diagnostics.Annotated)
	require.NotNil(t, resp.Preview)
	assert.Contains(t, resp.Preview.Markdown, "Boil the water")
}

func TestAnalyze_ProductOverride(t *testing.T) {
	page := `<html><body>
  <div itemtype="http://schema.org/Product"><p>Pan</p></div>
  <article id="post-1"><div class="entry-content">words</div></article>
</body></html>`
	h := Analyze(newAnalyzer(map[string]engine.Engine{
		models.FetchModeHTTP: &fakeEngine{name: "http", html: page},
	}))

	w := post(h, map[string]any{"url": "https://shop.example/pan", "fetch_mode": "http"})
	assert.Equal(t, content.KindProduct, decode[models.AnalyzeResponse](t, w).Detection.Kind)

	w = post(h, map[string]any{"url": "https://shop.example/pan", "fetch_mode": "http", "product_page": false})
	assert.Equal(t, content.KindBlogEntry, decode[models.AnalyzeResponse](t, w).Detection.Kind)
}

func TestAnalyze_Errors(t *testing.T) {
	failing := &fakeEngine{name: "rod", err: errors.New("connection refused")}
	h := Analyze(newAnalyzer(map[string]engine.Engine{models.FetchModeBrowser: failing}))

	w := post(h, map[string]any{"timeout": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.ErrCodeInvalidInput, errorCode(t, w))

	w = post(h, map[string]any{"url": "https://blog.example/", "reading": map[string]any{"resize_factor": 0}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(h, map[string]any{"url": "https://blog.example/", "fetch_mode": "http"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.ErrCodeUnavailable, errorCode(t, w))

	w = post(h, map[string]any{"url": "https://blog.example/"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, models.ErrCodeNavigation, errorCode(t, w))

	failing.err = models.NewTrackError(models.ErrCodeTimeout, "too slow", nil)
	w = post(h, map[string]any{"url": "https://blog.example/"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestAnalyze_Cache(t *testing.T) {
	clk := clocktest.NewFake(t0)
	cc := cache.New(10, clk)
	defer cc.Stop()

	rod := &fakeEngine{name: "rod", html: blogPage}
	a := newAnalyzer(map[string]engine.Engine{models.FetchModeBrowser: rod})
	a.Cache = cc
	h := Analyze(a)

	body := map[string]any{"url": "https://blog.example/pasta", "max_age": 60000}
	first := decode[models.AnalyzeResponse](t, post(h, body))
	assert.Equal(t, "miss", first.CacheStatus)

	second := decode[models.AnalyzeResponse](t, post(h, body))
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, first.Region, second.Region)
	assert.Equal(t, 1, rod.calls)

	// Different reading settings are a different analysis.
	body["reading"] = map[string]any{"resize_factor": 0.5}
	third := decode[models.AnalyzeResponse](t, post(h, body))
	assert.Equal(t, "miss", third.CacheStatus)
	assert.Equal(t, 2000, third.Region.Height)
	assert.Equal(t, 2, rod.calls)

	clk.Advance(2 * time.Minute)
	delete(body, "reading")
	assert.Equal(t, "miss", decode[models.AnalyzeResponse](t, post(h, body)).CacheStatus)
	assert.Equal(t, 3, rod.calls)
}

type fakeSimulator struct {
	opts browser.SimulateOptions
	err  error
}

func (f *fakeSimulator) Simulate(_ context.Context, req *models.SimulateRequest, opts browser.SimulateOptions) (*browser.SimulateResult, error) {
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &browser.SimulateResult{
		Page:   &browser.Result{Title: "Pasta night", FinalURL: req.URL},
		Region: content.Region{Name: "Blog entry", Kind: content.KindBlogEntry, Height: 3400},
		State:  engagement.State{StartedReading: true},
		Events: []analytics.Event{{Name: analytics.EventArticleLoaded}},
		Steps:  len(req.Steps),
	}, nil
}

func TestSimulate(t *testing.T) {
	reading := config.DefaultReading()
	reading.TrackerName = "log"
	reg := analytics.NewRegistry(nil)
	reg.Register("log", analytics.NewLogTracker(nil))
	loc := content.NewLocator(reading, content.DefaultProfile(), nil, nil)

	sim := &fakeSimulator{}
	h := Simulate(sim, loc, reg, reading, nil)

	w := post(h, map[string]any{
		"url":   "https://blog.example/pasta",
		"steps": []map[string]any{{"action": "scroll_by", "pixels": 600}, {"action": "bottom"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[models.SimulateResponse](t, w)
	assert.Equal(t, 2, resp.Steps)
	assert.Equal(t, "Pasta night", resp.Title)
	require.NotNil(t, resp.State)
	assert.True(t, resp.State.StartedReading)
	assert.NotNil(t, sim.opts.Tracker)
	assert.NotNil(t, sim.opts.Locator)
	assert.Equal(t, 300, sim.opts.Reading.PixelThreshold)

	w = post(h, map[string]any{"url": "https://blog.example/pasta", "steps": []map[string]any{{"action": "jump"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	sim.err = models.NewTrackError(models.ErrCodeActionFailed, "step 0 failed", nil)
	w = post(h, map[string]any{"url": "https://blog.example/pasta", "steps": []map[string]any{{"action": "wait"}}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSimulate_NoBrowser(t *testing.T) {
	h := Simulate(nil, nil, nil, config.DefaultReading(), nil)
	w := post(h, map[string]any{"url": "https://blog.example/", "steps": []map[string]any{{"action": "wait"}}})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.ErrCodeUnavailable, errorCode(t, w))
}

func TestSessions(t *testing.T) {
	clk := clocktest.NewFake(t0)
	m := session.NewManager(config.SessionConfig{MaxSessions: 5}, config.DefaultReading(), analytics.NewRegistry(nil), nil, clk, nil)
	defer m.Stop()
	h := &Sessions{Manager: m}

	r := gin.New()
	r.POST("/sessions", h.Open)
	r.GET("/sessions/:id", h.Get)
	r.POST("/sessions/:id/scroll", h.Scroll)
	r.DELETE("/sessions/:id", h.Close)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			_ = json.NewEncoder(&buf).Encode(body)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
		return w
	}

	w := do(http.MethodPost, "/sessions", map[string]any{"url": "https://blog.example/pasta", "html": blogPage})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	opened := decode[models.SessionResponse](t, w)
	require.NotEmpty(t, opened.ID)
	assert.Equal(t, content.KindBlogEntry, opened.Region.Kind)
	path := "/sessions/" + opened.ID

	w = do(http.MethodPost, path+"/scroll", map[string]any{"scroll_top": 900})
	assert.Equal(t, http.StatusNoContent, w.Code)
	clk.Advance(150 * time.Millisecond)

	w = do(http.MethodPost, path+"/scroll", map[string]any{"viewport_height": 700})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.SessionResponse](t, w)
	assert.Equal(t, 1, got.Scrolls)
	assert.True(t, got.State.StartedReading)

	w = do(http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[models.SessionResponse](t, w).Closed)

	w = do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrCodeSessionNotFound, errorCode(t, w))

	w = do(http.MethodPost, "/sessions", map[string]any{"html": plainPage})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions_Interactions(t *testing.T) {
	var hooked atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hooked.Add(1)
	}))
	defer hook.Close()

	m := session.NewManager(config.SessionConfig{}, config.DefaultReading(), analytics.NewRegistry(nil), nil, clocktest.NewFake(t0), nil)
	defer m.Stop()
	h := &Sessions{Manager: m}

	r := gin.New()
	r.POST("/sessions", h.Open)
	r.GET("/sessions/:id", h.Get)
	r.POST("/sessions/:id/interaction", h.Interaction)

	w := post(h.Open, map[string]any{
		"url":         "https://blog.example/pasta?ref=home",
		"html":        blogPage,
		"webhook_url": hook.URL,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	path := "/sessions/" + decode[models.SessionResponse](t, w).ID

	send := func(p string, body map[string]any) int {
		data, _ := json.Marshal(body)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, p+"/interaction", bytes.NewReader(data)))
		return w.Code
	}
	assert.Equal(t, http.StatusNoContent, send(path, map[string]any{"kind": "call", "href": "tel:+1-303-499-7111"}))
	assert.Equal(t, http.StatusNoContent, send(path, map[string]any{"kind": "email", "href": "mailto:info@blog.example"}))
	assert.Equal(t, http.StatusNoContent, send(path, map[string]any{"kind": "email", "href": "mailto:info@blog.example"}))
	assert.Equal(t, http.StatusNoContent, send(path, map[string]any{"kind": "form", "form_title": "Newsletter"}))
	assert.Equal(t, http.StatusNoContent, send(path, map[string]any{"kind": "form"}))
	assert.Equal(t, http.StatusBadRequest, send(path, map[string]any{"kind": "fax"}))
	assert.Equal(t, http.StatusBadRequest, send(path, map[string]any{"kind": "call", "href": "mailto:info@blog.example"}))
	assert.Equal(t, http.StatusNotFound, send("/sessions/missing", map[string]any{"kind": "form"}))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	got := decode[models.SessionResponse](t, w)
	assert.Equal(t, 5, got.Interactions)

	var contact []analytics.Fields
	for _, e := range got.Events {
		switch e.Name {
		case analytics.CategoryCalling, analytics.CategoryContact, analytics.CategoryFormSubmission:
			contact = append(contact, e.Fields)
		}
	}
	assert.Equal(t, []analytics.Fields{
		{Category: analytics.CategoryCalling, Action: "tel:+13034997111", Label: "Pasta night"},
		{Category: analytics.CategoryContact, Action: "mailto:info@blog.example", Label: "/pasta"},
		{Category: analytics.CategoryFormSubmission, Action: "Newsletter", Label: "Pasta night"},
		{Category: analytics.CategoryFormSubmission, Action: session.DefaultFormTitle, Label: "Pasta night"},
	}, contact)

	// A client-supplied webhook is not honoured.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, hooked.Load())
}

type fakePool models.PoolStats

func (f fakePool) Stats() models.PoolStats { return models.PoolStats(f) }

func TestHealth(t *testing.T) {
	get := func(pool PoolStatter) models.HealthResponse {
		r := gin.New()
		r.GET("/", Health(pool, nil, t0))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		return decode[models.HealthResponse](t, w)
	}

	assert.Equal(t, "no_browser", get(nil).Status)
	assert.Equal(t, "healthy", get(fakePool{MaxPages: 10, ActivePages: 2}).Status)
	assert.Equal(t, "degraded", get(fakePool{MaxPages: 10, ActivePages: 9}).Status)
	assert.Equal(t, Version, get(nil).Version)
}

func TestAnnotator(t *testing.T) {
	r := gin.New()
	r.GET("/a.js", Annotator())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/a.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "javascript")
	assert.NotEmpty(t, w.Body.String())
}

func TestFetchRequest(t *testing.T) {
	fr := fetchRequest(&models.PageRequest{
		URL:            "https://blog.example/",
		Timeout:        12,
		Headers:        map[string]string{"Accept-Language": "de"},
		Cookies:        []models.Cookie{{Name: "a", Value: "b", Path: "/"}},
		BlockAds:       true,
		ViewportHeight: 700,
	})
	assert.Equal(t, 12*time.Second, fr.Timeout)
	assert.Equal(t, "de", fr.Headers["Accept-Language"])
	assert.Equal(t, []http.Cookie{{Name: "a", Value: "b", Path: "/"}}, fr.Cookies)
	assert.True(t, fr.BlockAds)
	assert.Equal(t, 700, fr.ViewportHeight)
}

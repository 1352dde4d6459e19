package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/api/handler"
	"github.com/use-agent/readtrack/api/middleware"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/engine"
	"github.com/use-agent/readtrack/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const page = `<html data-rt-doc-height="2000" data-rt-viewport-height="800">
<body data-rt-top="0" data-rt-height="2000">
  <article id="post-1" data-rt-top="0" data-rt-height="1800">
    <div class="entry-content" data-rt-top="100" data-rt-height="1600">words</div>
  </article>
</body>
</html>`

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: "test", CORSOrigins: []string{"*"}},
		Auth:      config.AuthConfig{Enabled: true, APIKeys: []string{"site-key"}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		Reading:   config.DefaultReading(),
	}
	reg := analytics.NewRegistry(nil)
	loc := content.NewLocator(cfg.Reading, content.DefaultProfile(), content.SchemaProductProbe, nil)
	sessions := session.NewManager(config.SessionConfig{}, cfg.Reading, reg, loc, nil, nil)
	limiter := middleware.NewRateLimiter(cfg.RateLimit, nil)
	t.Cleanup(func() {
		sessions.Stop()
		limiter.Stop()
	})

	return NewRouter(Deps{
		Config: cfg,
		Analyzer: &handler.Analyzer{
			Engines: map[string]engine.Engine{},
			Locator: loc,
			Reading: cfg.Reading,
		},
		Sessions: sessions,
		Registry: reg,
		Limiter:  limiter,
	})
}

func TestRouter_OpenRoutes(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"no_browser"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/annotator.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/api/v1/analyze", "/api/v1/simulate", "/api/v1/sessions"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate",
		strings.NewReader(`{"url":"https://blog.example/","steps":[{"action":"wait"}]}`))
	req.Header.Set("X-API-Key", "site-key")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_BeaconFlow(t *testing.T) {
	r := newTestRouter(t)

	pre := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	pre.Header.Set("Origin", "https://blog.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, pre)
	assert.Equal(t, http.StatusNoContent, w.Code)

	body := `{"url":"https://blog.example/p","html":` + quote(page) + `}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(body))
	req.Header.Set("X-API-Key", "site-key")
	req.Header.Set("Origin", "https://blog.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "https://blog.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Body.String(), `"blog_entry"`)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/models"
)

func TestIsAdDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"doubleclick.net", true},
		{"pagead2.googlesyndication.com", true},
		{"WWW.Google-Analytics.com", true},
		{"stats.wp.com", true},
		{"wp.com", false},
		{"example.com", false},
		{"net", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, isAdDomain(tt.host))
		})
	}
}

func TestBlocker(t *testing.T) {
	b := newBlocker([]string{"Font", "Media", "Bogus"}, true)
	assert.False(t, b.empty())
	assert.True(t, b.blocks(proto.NetworkResourceTypeFont, "https://blog.example/font.woff"))
	assert.False(t, b.blocks(proto.NetworkResourceTypeImage, "https://blog.example/pasta.jpg"))
	assert.True(t, b.blocks(proto.NetworkResourceTypeScript, "https://www.googletagmanager.com/gtm.js"))

	noAds := newBlocker([]string{"Font"}, false)
	assert.False(t, noAds.blocks(proto.NetworkResourceTypeScript, "https://www.googletagmanager.com/gtm.js"))

	assert.True(t, newBlocker(nil, false).empty())
}

func TestExtraHeaders(t *testing.T) {
	h := extraHeaders("https://blog.example/pasta", map[string]string{"X-Test": "1"})
	assert.Equal(t, "https://www.google.com/search?q=blog.example", h["Referer"])
	assert.Equal(t, "1", h["X-Test"])

	h = extraHeaders("https://blog.example/pasta", map[string]string{"Referer": "https://news.example/"})
	assert.Equal(t, "https://news.example/", h["Referer"])
}

func TestToHeadersMap(t *testing.T) {
	m := toHeadersMap(map[string]string{"Accept-Language": "de"})
	require.Len(t, m, 1)
	assert.Equal(t, "de", m["Accept-Language"].Str())
}

func TestCookieParams(t *testing.T) {
	c := cookieParams("https://blog.example:8443/pasta", models.Cookie{Name: "consent", Value: "yes"})
	assert.Equal(t, "blog.example", c.Domain)
	assert.Equal(t, "/", c.Path)

	c = cookieParams("https://blog.example/", models.Cookie{Name: "a", Domain: ".example", Path: "/x"})
	assert.Equal(t, ".example", c.Domain)
	assert.Equal(t, "/x", c.Path)
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, models.ErrCodeTimeout, categorizeError(context.DeadlineExceeded, "x").Code)
	assert.Equal(t, models.ErrCodeTimeout, categorizeError(context.Canceled, "x").Code)
	assert.Equal(t, models.ErrCodeNavigation, categorizeError(errors.New("net::ERR_NAME_NOT_RESOLVED"), "x").Code)

	typed := models.NewTrackError(models.ErrCodeActionFailed, "step", nil)
	assert.Same(t, typed, categorizeError(typed, "x"))
}

func TestValidateSteps(t *testing.T) {
	ok := []models.Step{
		{Action: models.StepScrollTo, Y: 1200},
		{Action: models.StepScrollBy, Pixels: -300},
		{Action: models.StepBottom},
		{Action: models.StepWait, DwellMs: 5000},
	}
	assert.NoError(t, validateSteps(ok))

	assert.Error(t, validateSteps(nil))
	assert.Error(t, validateSteps([]models.Step{{Action: "click"}}))
	assert.Error(t, validateSteps([]models.Step{{Action: models.StepScrollTo, Y: -1}}))
	assert.Error(t, validateSteps([]models.Step{{Action: models.StepScrollBy}}))
	assert.Error(t, validateSteps([]models.Step{{Action: models.StepWait, DwellMs: -1}}))
}

func TestDecodeViewport(t *testing.T) {
	top, h := decodeViewport(gson.New(map[string]interface{}{"top": 1250.5, "height": 800.0}))
	assert.Equal(t, 1250.5, top)
	assert.Equal(t, 800.0, h)

	top, _ = decodeViewport(gson.New(map[string]interface{}{"top": -40.0, "height": 800.0}))
	assert.Zero(t, top)
}

func TestDwell(t *testing.T) {
	assert.NoError(t, dwell(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, dwell(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, dwell(ctx, 0), context.Canceled)
}

func TestViewportDefaults(t *testing.T) {
	b := &Browser{browserCfg: config.BrowserConfig{ViewportWidth: 1280, ViewportHeight: 800}}

	w, h := b.viewport(&models.PageRequest{})
	assert.Equal(t, 1280, w)
	assert.Equal(t, 800, h)

	w, h = b.viewport(&models.PageRequest{ViewportWidth: 390, ViewportHeight: 844})
	assert.Equal(t, 390, w)
	assert.Equal(t, 844, h)
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/use-agent/readtrack/clock/clocktest"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newCache(t *testing.T, max int) (*Cache, *clocktest.Fake) {
	t.Helper()
	clk := clocktest.NewFake(t0)
	c := New(max, clk)
	t.Cleanup(c.Stop)
	return c, clk
}

func TestCache_MaxAge(t *testing.T) {
	c, clk := newCache(t, 10)
	c.Set("k", &models.AnalyzeResponse{Success: true, Title: "Pasta night"})

	got, hit := c.Get("k", 1000)
	require.True(t, hit)
	assert.Equal(t, "Pasta night", got.Title)

	_, hit = c.Get("k", 0)
	assert.False(t, hit, "zero max age never hits")

	clk.Advance(1500 * time.Millisecond)
	_, hit = c.Get("k", 1000)
	assert.False(t, hit)
	_, hit = c.Get("k", 2000)
	assert.True(t, hit)
}

func TestCache_ReturnsCopies(t *testing.T) {
	c, _ := newCache(t, 10)
	resp := &models.AnalyzeResponse{Title: "a"}
	c.Set("k", resp)
	resp.Title = "changed"

	got, _ := c.Get("k", 1000)
	got.CacheStatus = "hit"
	again, _ := c.Get("k", 1000)
	assert.Equal(t, "a", again.Title)
	assert.Empty(t, again.CacheStatus)
}

func TestCache_EvictsOldest(t *testing.T) {
	c, clk := newCache(t, 2)
	c.Set("a", &models.AnalyzeResponse{})
	clk.Advance(time.Second)
	c.Set("b", &models.AnalyzeResponse{})
	clk.Advance(time.Second)
	c.Set("b", &models.AnalyzeResponse{Title: "again"})
	assert.Equal(t, 2, c.Len(), "replacing a key evicts nothing")

	c.Set("c", &models.AnalyzeResponse{})
	assert.Equal(t, 2, c.Len())
	_, hit := c.Get("a", 60_000)
	assert.False(t, hit)
	_, hit = c.Get("c", 60_000)
	assert.True(t, hit)
}

func TestCache_Expire(t *testing.T) {
	c, clk := newCache(t, 10)
	c.Set("old", &models.AnalyzeResponse{})
	clk.Advance(50 * time.Minute)
	c.Set("new", &models.AnalyzeResponse{})
	clk.Advance(20 * time.Minute)

	assert.Equal(t, 1, c.expire())
	assert.Equal(t, 1, c.Len())
}

func TestCache_DisabledWhenNoEntries(t *testing.T) {
	c, _ := newCache(t, 0)
	c.Set("k", &models.AnalyzeResponse{})
	assert.Zero(t, c.Len())
}

func TestKey(t *testing.T) {
	reading := config.DefaultReading()
	req := &models.AnalyzeRequest{PageRequest: models.PageRequest{URL: "https://blog.example/pasta"}, FetchMode: models.FetchModeBrowser}
	base := Key(req, reading)
	assert.Equal(t, base, Key(req, reading))

	other := *req
	other.FetchMode = models.FetchModeHTTP
	assert.NotEqual(t, base, Key(&other, reading))

	other = *req
	other.ViewportHeight = 600
	assert.NotEqual(t, base, Key(&other, reading))

	yes := true
	other = *req
	other.ProductPage = &yes
	assert.NotEqual(t, base, Key(&other, reading))

	tweaked := reading
	tweaked.ResizeFactor = 0.5
	assert.NotEqual(t, base, Key(req, tweaked))

	tweaked = reading
	tweaked.TrackerName = "other"
	assert.Equal(t, base, Key(req, tweaked), "the tracker does not change the analysis")
}

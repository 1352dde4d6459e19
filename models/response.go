package models

import (
	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/engagement"
)

// Detection reports which detector recognised the content.
type Detection struct {
	Detector    string       `json:"detector"`
	Kind        content.Kind `json:"kind"`
	ProductPage bool         `json:"product_page"`
	Elements    int          `json:"elements"`
}

// Diagnostics reports the page measurements and content warnings.
type Diagnostics struct {
	Annotated       bool    `json:"annotated"`
	DocumentHeight  float64 `json:"document_height"`
	ViewportHeight  float64 `json:"viewport_height"`
	PageBottomAt    float64 `json:"page_bottom_at"` // document height * resize factor
	ContentGuessed  bool    `json:"content_guessed"`
	ContentTooShort bool    `json:"content_too_short"`
}

// Preview describes the located content for humans.
type Preview struct {
	Title    string `json:"title,omitempty"`
	Byline   string `json:"byline,omitempty"`
	Excerpt  string `json:"excerpt,omitempty"`
	SiteName string `json:"site_name,omitempty"`
	Language string `json:"language,omitempty"`
	Image    string `json:"image,omitempty"`

	// Markdown is the located content converted to Markdown.
	Markdown string `json:"markdown"`

	Words          int `json:"words"`
	ReadingSeconds int `json:"reading_seconds"`

	// ExpectedBehaviour is how a visitor reading the whole content at the
	// configured speed would be classified.
	ExpectedBehaviour string `json:"expected_behaviour"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// FetchMs is the time spent loading (and rendering) the page.
	FetchMs int64 `json:"fetch_ms"`

	// AnalysisMs is the time spent locating and previewing the content.
	AnalysisMs int64 `json:"analysis_ms"`
}

// AnalyzeResponse is the response for POST /api/v1/analyze.
type AnalyzeResponse struct {
	Success    bool   `json:"success"`
	URL        string `json:"url,omitempty"`
	FinalURL   string `json:"final_url,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Title      string `json:"title,omitempty"`

	// EngineUsed is the fetch engine that produced the page ("http", "rod").
	EngineUsed string `json:"engine_used,omitempty"`

	Detection   *Detection      `json:"detection,omitempty"`
	Region      *content.Region `json:"region,omitempty"`
	Diagnostics *Diagnostics    `json:"diagnostics,omitempty"`

	// Events are the events emitted while locating the content.
	Events []analytics.Event `json:"events,omitempty"`

	Preview *Preview `json:"preview,omitempty"`

	Timing TimingInfo `json:"timing"`

	// CacheStatus is "hit", "miss", or empty when caching was not requested.
	CacheStatus string `json:"cache_status,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// SimulateResponse is the response for POST /api/v1/simulate.
type SimulateResponse struct {
	Success  bool              `json:"success"`
	URL      string            `json:"url,omitempty"`
	FinalURL string            `json:"final_url,omitempty"`
	Title    string            `json:"title,omitempty"`
	Region   *content.Region   `json:"region,omitempty"`
	Events   []analytics.Event `json:"events,omitempty"`
	State    *engagement.State `json:"state,omitempty"`
	Steps    int               `json:"steps"`
	Timing   TimingInfo        `json:"timing"`
	Error    *ErrorDetail      `json:"error,omitempty"`
}

// SessionResponse describes a reading session.
type SessionResponse struct {
	Success      bool              `json:"success"`
	ID           string            `json:"id,omitempty"`
	Scrolls      int               `json:"scrolls"`
	Interactions int               `json:"interactions"`
	Region       *content.Region   `json:"region,omitempty"`
	State        *engagement.State `json:"state,omitempty"`
	Events       []analytics.Event `json:"events,omitempty"`
	Closed       bool              `json:"closed,omitempty"`
	Error        *ErrorDetail      `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy", "degraded" or "no_browser"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Sessions  int       `json:"sessions"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}

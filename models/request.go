package models

import "github.com/use-agent/readtrack/config"

// Fetch modes.
const (
	FetchModeBrowser = "browser"
	FetchModeHTTP    = "http"
	FetchModeAuto    = "auto"
)

// Simulation step actions.
const (
	StepScrollTo = "scroll_to"
	StepScrollBy = "scroll_by"
	StepBottom   = "bottom"
	StepWait     = "wait"
)

// Cookie is a cookie set on the page before navigation.
type Cookie struct {
	Name   string `json:"name" binding:"required"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// PageRequest describes how to load a page.
type PageRequest struct {
	// URL is the page to load. Required.
	URL string `json:"url" binding:"required,url"`

	// Timeout is the maximum duration in seconds for the whole operation.
	// Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// Stealth enables anti-bot-detection evasions.
	Stealth bool `json:"stealth,omitempty"`

	// Headers are sent with every request of the page.
	Headers map[string]string `json:"headers,omitempty"`

	Cookies []Cookie `json:"cookies,omitempty" binding:"omitempty,dive"`

	// BlockAds drops requests to ad and tracking domains.
	BlockAds bool `json:"block_ads,omitempty"`

	// RemoveOverlays removes cookie banners and popups before measuring.
	RemoveOverlays bool `json:"remove_overlays,omitempty"`

	// ViewportWidth and ViewportHeight size the emulated window.
	// Default: the browser configuration.
	ViewportWidth  int `json:"viewport_width,omitempty" binding:"omitempty,min=200,max=4000"`
	ViewportHeight int `json:"viewport_height,omitempty" binding:"omitempty,min=200,max=4000"`

	// ProductPage answers the product page check directly. When unset the
	// page markup decides.
	ProductPage *bool `json:"product_page,omitempty"`

	// Reading overrides the configured reading settings for this request.
	Reading *config.ReadingOverrides `json:"reading,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *PageRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 30
	}
}

// AnalyzeRequest is the payload for POST /api/v1/analyze.
type AnalyzeRequest struct {
	PageRequest

	// FetchMode selects how the page is loaded.
	// "browser" (default): render it and measure the content.
	// "http": plain fetch, detection only (no geometry).
	// "auto": browser first, plain fetch if rendering fails.
	FetchMode string `json:"fetch_mode,omitempty" binding:"omitempty,oneof=auto browser http"`

	// MaxAge allows a cached analysis younger than this many milliseconds.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// Preview adds metadata, the content as Markdown and a reading time
	// estimate. Default: true.
	Preview *bool `json:"preview,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *AnalyzeRequest) Defaults() {
	r.PageRequest.Defaults()
	if r.FetchMode == "" {
		r.FetchMode = FetchModeBrowser
	}
	if r.Preview == nil {
		t := true
		r.Preview = &t
	}
}

// Step is one scripted visitor action in a simulation.
type Step struct {
	// Action is "scroll_to", "scroll_by", "bottom" or "wait".
	Action string `json:"action" binding:"required,oneof=scroll_to scroll_by bottom wait"`

	// Y is the target offset for scroll_to.
	Y int `json:"y,omitempty" binding:"omitempty,min=0"`

	// Pixels is the distance for scroll_by; negative scrolls up.
	Pixels int `json:"pixels,omitempty"`

	// DwellMs is how long the visitor stays after the action.
	// Default: 1000. Max: 120000.
	DwellMs int `json:"dwell_ms,omitempty" binding:"omitempty,min=0,max=120000"`
}

// SimulateRequest is the payload for POST /api/v1/simulate.
type SimulateRequest struct {
	PageRequest

	// Steps are played in order once the page has loaded.
	Steps []Step `json:"steps" binding:"required,min=1,max=50,dive"`
}

// Defaults applies default values to unset fields.
func (r *SimulateRequest) Defaults() {
	r.PageRequest.Defaults()
	for i := range r.Steps {
		if r.Steps[i].DwellMs == 0 {
			r.Steps[i].DwellMs = 1000
		}
	}
}

// OpenSessionRequest is the payload for POST /api/v1/sessions.
type OpenSessionRequest struct {
	// URL of the page, informational.
	URL string `json:"url,omitempty"`

	// HTML is the page markup after the annotator ran. Required.
	HTML string `json:"html" binding:"required"`

	// ViewportHeight is the visitor's window height.
	ViewportHeight float64 `json:"viewport_height,omitempty" binding:"omitempty,min=0"`

	ProductPage *bool                    `json:"product_page,omitempty"`
	Reading     *config.ReadingOverrides `json:"reading,omitempty"`
}

// InteractionRequest is the payload for POST /api/v1/sessions/:id/interaction.
type InteractionRequest struct {
	// Kind is one of "call", "email" or "form".
	Kind string `json:"kind" binding:"required,oneof=call email form"`

	// Href is the clicked tel: or mailto: link.
	Href string `json:"href,omitempty"`

	FormTitle string `json:"form_title,omitempty"`
}

// ScrollRequest is the payload for POST /api/v1/sessions/:id/scroll.
type ScrollRequest struct {
	ScrollTop      *float64 `json:"scroll_top" binding:"required"`
	ViewportHeight float64  `json:"viewport_height,omitempty"`
}

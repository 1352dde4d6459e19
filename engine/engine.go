// Package engine loads pages for analysis.
package engine

import (
	"context"
	"net/http"
	"time"
)

// Engine is the interface that all fetch engines must implement.
type Engine interface {
	// Name returns the engine identifier (e.g. "http", "rod").
	Name() string

	// Fetch retrieves the page for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to load a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Cookies []http.Cookie
	Timeout time.Duration
	Stealth bool

	// Browser-only settings; plain fetches ignore them.
	BlockAds       bool
	RemoveOverlays bool
	ViewportWidth  int
	ViewportHeight int
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	// HTML is the page markup. It carries layout annotations only when
	// Rendered is true.
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	EngineName string

	Rendered       bool
	DocumentHeight float64
	ViewportHeight float64
}

package handler

import (
	"net/http"
	"time"

	"github.com/use-agent/readtrack/engine"
	"github.com/use-agent/readtrack/models"
)

// fetchRequest converts an API page request for the fetch engines.
func fetchRequest(req *models.PageRequest) *engine.FetchRequest {
	cookies := make([]http.Cookie, len(req.Cookies))
	for i, c := range req.Cookies {
		cookies[i] = http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path}
	}
	return &engine.FetchRequest{
		URL:            req.URL,
		Headers:        req.Headers,
		Cookies:        cookies,
		Timeout:        time.Duration(req.Timeout) * time.Second,
		Stealth:        req.Stealth,
		BlockAds:       req.BlockAds,
		RemoveOverlays: req.RemoveOverlays,
		ViewportWidth:  req.ViewportWidth,
		ViewportHeight: req.ViewportHeight,
	}
}

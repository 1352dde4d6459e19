// Package session hosts reading sessions fed by beacons from real pages.
//
// A page that embeds the beacon script posts its annotated markup once and
// then posts its scroll position on every scroll event. Each session runs
// its own reading pipeline on the server.
package session

import (
	"sync"
	"time"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/engagement"
	"github.com/use-agent/readtrack/monitor"
	"github.com/use-agent/readtrack/pageview"
)

// Options opens a session.
type Options struct {
	// URL of the page, informational.
	URL string

	// HTML is the page markup after the annotator ran.
	HTML string

	// ViewportHeight is the window height; 0 uses the one recorded in HTML.
	ViewportHeight float64

	Reading *config.ReadingOverrides

	// ProductPage answers the product page check directly when set.
	ProductPage *bool
}

// Session is one tracked page view.
type Session struct {
	ID        string
	URL       string
	CreatedAt time.Time

	view          *pageview.View
	feed          *monitor.Feed
	recorder      *analytics.Recorder
	webhookURL    string
	webhookSecret string

	mu           sync.Mutex
	lastSeen     time.Time
	scrolls      int
	interactions int
	emailed      bool
}

// Report summarizes a session.
type Report struct {
	ID        string    `json:"id"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ClosedAt  time.Time `json:"closed_at,omitzero"`
	LastSeen  time.Time `json:"last_seen"`
	Scrolls   int       `json:"scrolls"`

	// Interactions counts contact clicks and form submissions.
	Interactions int `json:"interactions"`

	Region content.Region    `json:"region"`
	State  engagement.State  `json:"state"`
	Events []analytics.Event `json:"events"`
}

// Region returns the located content.
func (s *Session) Region() content.Region { return s.view.Region() }

// State returns the current reading progress.
func (s *Session) State() engagement.State { return s.view.State() }

// Report returns the session summary so far.
func (s *Session) Report() *Report {
	s.mu.Lock()
	lastSeen, scrolls, interactions := s.lastSeen, s.scrolls, s.interactions
	s.mu.Unlock()

	return &Report{
		ID:           s.ID,
		URL:          s.URL,
		CreatedAt:    s.CreatedAt,
		LastSeen:     lastSeen,
		Scrolls:      scrolls,
		Interactions: interactions,
		Region:       s.view.Region(),
		State:        s.view.State(),
		Events:       s.recorder.Events(),
	}
}

func (s *Session) scrolled(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
	s.scrolls++
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

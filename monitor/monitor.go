// Package monitor turns raw scroll events into debounced scroll samples.
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/readtrack/clock"
	"github.com/use-agent/readtrack/content"
)

// Sample is the viewport position once scrolling has settled.
type Sample struct {
	ScrollTop      float64   `json:"scroll_top"`
	ViewportHeight float64   `json:"viewport_height"`
	ViewportBottom float64   `json:"viewport_bottom"` // ScrollTop + ViewportHeight
	ContentExposed float64   `json:"content_exposed"` // ViewportBottom - region start
	At             time.Time `json:"at"`
}

// Monitor samples a viewport.
type Monitor struct {
	vp       Viewport
	clk      clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

// New returns a Monitor. A non-positive interval uses 100ms; a nil clock
// uses the real one.
func New(vp Viewport, clk clock.Clock, interval time.Duration, logger *slog.Logger) *Monitor {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{vp: vp, clk: clk, interval: interval, logger: logger}
}

// Start listens for scroll events. Each event restarts the debounce timer;
// when it expires one Sample is computed against region and passed to
// onSample. Calls to onSample never overlap.
//
// The returned stop function detaches the listener and cancels the pending
// timer. It is safe to call more than once, including from onSample. Once it
// returns onSample is not entered again; a delivery still reading the
// viewport is waited for and dropped.
func (m *Monitor) Start(region content.Region, onSample func(Sample)) (stop func()) {
	s := &subscription{m: m, start: region.StartOffset, onSample: onSample}
	s.unsubscribe = m.vp.Subscribe(s.notify)
	return s.stop
}

type subscription struct {
	m        *Monitor
	start    float64
	onSample func(Sample)

	unsubscribe func()

	mu         sync.Mutex
	timer      clock.Timer
	gen        uint64
	closed     bool
	delivering bool // onSample is running

	deliverMu sync.Mutex
}

func (s *subscription) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = s.m.clk.AfterFunc(s.m.interval, func() { s.fire(gen) })
}

func (s *subscription) fire(gen uint64) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()

	top, height := s.m.vp.ScrollTop(), s.m.vp.Height()
	sample := Sample{
		ScrollTop:      top,
		ViewportHeight: height,
		ViewportBottom: top + height,
		ContentExposed: top + height - s.start,
		At:             s.m.clk.Now(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.delivering = false
		s.mu.Unlock()
	}()

	s.m.logger.Debug("monitor: sample",
		"scroll_top", sample.ScrollTop,
		"viewport_bottom", sample.ViewportBottom,
		"content_exposed", sample.ContentExposed,
	)
	s.onSample(sample)
}

func (s *subscription) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	inCallback := s.delivering
	s.mu.Unlock()

	s.unsubscribe()

	// A delivery past its closed check but not yet in onSample must finish
	// before stop returns. Inside onSample deliverMu is already held.
	if !inCallback {
		s.deliverMu.Lock()
		s.deliverMu.Unlock()
	}
}

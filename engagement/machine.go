// Package engagement tracks the reading milestones of one page view.
package engagement

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/clock"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/monitor"
)

// State is the progress of one page view. Flags only ever go from false to
// true. Durations are whole seconds.
type State struct {
	StartedReading    bool `json:"started_reading"`
	ReachedContentEnd bool `json:"reached_content_end"`
	ReachedPageBottom bool `json:"reached_page_bottom"`

	LoadTime        time.Time `json:"load_time"`
	ScrollStartTime time.Time `json:"scroll_start_time,omitzero"`
	ContentEndTime  time.Time `json:"content_end_time,omitzero"`
	PageBottomTime  time.Time `json:"page_bottom_time,omitzero"`

	TimeToScroll     int `json:"time_to_scroll"`
	TimeToContentEnd int `json:"time_to_content_end"`
	TotalTime        int `json:"total_time"`

	// Behaviour is "Scanner" or "Reader" once the content end was reached.
	Behaviour string `json:"behaviour,omitempty"`
}

// Machine moves a page view through its milestones:
// loaded, started reading, content end, page bottom.
//
// A milestone never fires before the one preceding it. When a sample
// satisfies a later milestone first (the visitor jumped past the content),
// that milestone waits and is checked again on later samples. Milestones
// are checked in order on every sample, so one sample may fire several.
type Machine struct {
	cfg       config.ReadingConfig
	region    content.Region
	docHeight float64
	em        *analytics.Emitter
	clk       clock.Clock
	logger    *slog.Logger

	// observeMu spans a whole Observe, emissions included, so Stop can
	// wait for one in progress.
	observeMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	state   State
}

type emission struct {
	event  string
	fields analytics.Fields
}

// New returns a Machine for a page whose located content is region and
// whose document is docHeight pixels tall. em may be nil.
func New(cfg config.ReadingConfig, region content.Region, docHeight float64, em *analytics.Emitter, clk clock.Clock, logger *slog.Logger) *Machine {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		cfg:       cfg,
		region:    region,
		docHeight: docHeight,
		em:        em,
		clk:       clk,
		logger:    logger,
	}
}

// Start records the load time and emits ArticleLoaded. Only the first call
// has any effect.
func (m *Machine) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.state.LoadTime = m.clk.Now()
	m.mu.Unlock()

	m.em.Emit(analytics.EventArticleLoaded, analytics.Fields{NonInteraction: true})
}

// Observe evaluates one scroll sample. Samples arriving before Start or
// after Stop are ignored.
func (m *Machine) Observe(s monitor.Sample) {
	m.observeMu.Lock()
	defer m.observeMu.Unlock()

	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	out := m.step(s)
	m.mu.Unlock()

	for _, e := range out {
		m.em.Emit(e.event, e.fields)
	}
}

// Stop freezes the state. It waits for an Observe in progress, so no event
// is emitted once it returns. It must not be called from a Tracker.
func (m *Machine) Stop() {
	m.observeMu.Lock()
	defer m.observeMu.Unlock()
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) step(s monitor.Sample) []emission {
	now := s.At
	if now.IsZero() {
		now = m.clk.Now()
	}
	st := &m.state
	threshold := float64(m.cfg.PixelThreshold)
	var out []emission

	if m.cfg.DebugMode {
		m.logger.Info("engagement: sample",
			"scroll_top", s.ScrollTop,
			"viewport_bottom", s.ViewportBottom,
			"content_exposed", s.ContentExposed,
		)
	}

	// ── 1. Started reading ──
	// Content may start at the very top, so some actual scrolling is
	// required too.
	if !st.StartedReading && s.ContentExposed > threshold && s.ScrollTop > threshold/2 {
		st.StartedReading = true
		st.ScrollStartTime = now
		st.TimeToScroll = seconds(now.Sub(st.LoadTime))
		out = append(out, emission{analytics.EventStartReading, analytics.Fields{
			MetricName:  analytics.MetricTimeToScroll,
			MetricValue: st.TimeToScroll,
		}})
		m.debug("started reading", "time_to_scroll", st.TimeToScroll)
	}

	// ── 2. Content end ──
	if !st.ReachedContentEnd && s.ContentExposed > float64(m.region.Height) {
		if !st.StartedReading {
			m.debug("could not estimate content height: content end reached before reading started")
		} else {
			st.ReachedContentEnd = true
			st.ContentEndTime = now
			st.TimeToContentEnd = seconds(now.Sub(st.ScrollStartTime))
			st.Behaviour = analytics.BehaviourScanner
			if st.TimeToContentEnd >= m.cfg.TimeThreshold {
				st.Behaviour = analytics.BehaviourReader
			}
			dims := map[string]string{analytics.DimensionReadingBehaviour: st.Behaviour}
			if st.Behaviour == analytics.BehaviourReader {
				out = append(out, emission{analytics.EventContentRead, analytics.Fields{
					MetricValue: st.TimeToContentEnd,
					Dimensions:  dims,
				}})
			}
			out = append(out, emission{analytics.EventContentBottom, analytics.Fields{
				MetricName:  analytics.MetricTimeToContentEnd,
				MetricValue: st.TimeToContentEnd,
				Dimensions:  dims,
			}})
			m.debug("end of content section",
				"time_to_content_end", st.TimeToContentEnd,
				"behaviour", st.Behaviour,
			)
		}
	}

	// ── 3. Page bottom ──
	if !st.ReachedPageBottom && s.ViewportBottom >= m.docHeight*m.cfg.ResizeFactor {
		if !st.StartedReading || !st.ReachedContentEnd {
			m.debug("page bottom reached before content end, waiting")
		} else {
			st.ReachedPageBottom = true
			st.PageBottomTime = now
			st.TotalTime = seconds(now.Sub(st.ScrollStartTime))
			out = append(out, emission{analytics.EventPageBottom, analytics.Fields{
				MetricName:  analytics.MetricTotalTime,
				MetricValue: st.TotalTime,
			}})
			m.debug("bottom of page", "total_time", st.TotalTime)
		}
	}

	return out
}

func (m *Machine) debug(msg string, args ...any) {
	if m.cfg.DebugMode {
		m.logger.Info("engagement: "+msg, args...)
	}
}

// seconds rounds d to whole seconds, never below zero.
func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds()))
}

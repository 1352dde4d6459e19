package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/clock"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/dom"
	"github.com/use-agent/readtrack/models"
	"github.com/use-agent/readtrack/monitor"
	"github.com/use-agent/readtrack/pageview"
	"github.com/use-agent/readtrack/webhook"
)

// Manager owns the open sessions. It is safe for concurrent use.
type Manager struct {
	cfg      config.SessionConfig
	reading  config.ReadingConfig
	registry *analytics.Registry
	locator  *content.Locator
	clk      clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager returns a Manager and starts its idle-session cleanup loop.
// Call Stop to end it.
func NewManager(cfg config.SessionConfig, reading config.ReadingConfig, registry *analytics.Registry, locator *content.Locator, clk clock.Clock, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if locator == nil {
		locator = content.NewLocator(reading, content.DefaultProfile(), content.SchemaProductProbe, logger)
	}
	m := &Manager{
		cfg:      cfg,
		reading:  reading,
		registry: registry,
		locator:  locator,
		clk:      clk,
		logger:   logger,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}

	if cfg.TTL > 0 {
		m.wg.Add(1)
		go m.cleanupLoop()
	}
	return m
}

// Open parses the annotated page and starts tracking it.
func (m *Manager) Open(opts Options) (*Session, error) {
	if opts.HTML == "" {
		return nil, models.NewTrackError(models.ErrCodeInvalidInput, "html is required", nil)
	}
	if m.full() {
		return nil, models.NewTrackError(models.ErrCodeSessionLimit, "too many open sessions", nil)
	}

	reading := m.reading.Merge(opts.Reading)
	if err := reading.Validate(); err != nil {
		return nil, models.NewTrackError(models.ErrCodeInvalidInput, err.Error(), nil)
	}

	doc, err := dom.ParseSnapshotString(opts.HTML, m.logger)
	if err != nil {
		return nil, models.NewTrackError(models.ErrCodeInvalidInput, "cannot parse html", err)
	}
	if !doc.Annotated() {
		return nil, models.NewTrackError(models.ErrCodeInvalidInput, "html carries no layout annotations, run the annotator first", nil)
	}

	vh := opts.ViewportHeight
	if vh <= 0 {
		vh = doc.ViewportHeight()
	}
	if vh <= 0 {
		return nil, models.NewTrackError(models.ErrCodeInvalidInput, "viewport height is unknown", nil)
	}

	loc := m.locator
	if opts.ProductPage != nil {
		loc = loc.WithProbe(content.FixedProductProbe(*opts.ProductPage))
	}

	id := uuid.NewString()
	now := m.clk.Now()
	rec := analytics.NewRecorder(m.clk)

	trackers := analytics.Multi{rec}
	if t, ok := m.registry.Resolve(reading.TrackerName); ok {
		trackers = append(trackers, t)
	} else if reading.DebugMode {
		m.logger.Warn("session: tracker not registered", "tracker", reading.TrackerName)
	}

	feed := monitor.NewFeed(vh)
	s := &Session{
		ID:            id,
		URL:           opts.URL,
		CreatedAt:     now,
		feed:          feed,
		recorder:      rec,
		webhookURL:    m.cfg.WebhookURL,
		webhookSecret: m.cfg.WebhookSecret,
		lastSeen:      now,
	}
	s.view = pageview.Start(pageview.Options{
		Document: doc,
		Viewport: feed,
		Reading:  reading,
		Tracker:  trackers,
		Clock:    m.clk,
		Locator:  loc,
		Logger:   m.logger.With("session_id", id),
	})

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		s.view.Stop()
		return nil, models.NewTrackError(models.ErrCodeSessionLimit, "too many open sessions", nil)
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session opened",
		"session_id", id,
		"url", opts.URL,
		"content", s.view.Region().Name,
		"content_height", s.view.Region().Height,
	)
	return s, nil
}

// Scroll records one scroll event. viewportHeight <= 0 keeps the previous
// height.
func (m *Manager) Scroll(id string, scrollTop, viewportHeight float64) error {
	if scrollTop < 0 {
		return models.NewTrackError(models.ErrCodeInvalidInput, "scroll_top must not be negative", nil)
	}
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.scrolled(m.clk.Now())
	s.feed.Update(scrollTop, viewportHeight)
	return nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.NewTrackError(models.ErrCodeSessionNotFound, "session not found: "+id, nil)
	}
	return s, nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends a session and returns its final report. The report is also
// delivered to the session webhook, if any.
func (m *Manager) Close(id string) (*Report, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil, models.NewTrackError(models.ErrCodeSessionNotFound, "session not found: "+id, nil)
	}
	return m.finish(s), nil
}

func (m *Manager) finish(s *Session) *Report {
	s.view.Stop()
	report := s.Report()
	report.ClosedAt = m.clk.Now()

	if s.webhookURL != "" {
		webhook.DeliverAsync(s.webhookURL, s.webhookSecret, &webhook.Event{
			Type:      webhook.TypeSessionClosed,
			SessionID: s.ID,
			Timestamp: report.ClosedAt.Unix(),
			Data:      report,
		})
	}

	m.logger.Info("session closed",
		"session_id", s.ID,
		"scrolls", report.Scrolls,
		"started_reading", report.State.StartedReading,
		"content_end", report.State.ReachedContentEnd,
		"page_bottom", report.State.ReachedPageBottom,
	)
	return report
}

// Stop ends the cleanup loop and closes every open session.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()

		m.mu.Lock()
		open := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for _, s := range open {
			m.finish(s)
		}
	})
}

func (m *Manager) full() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions
}

// cleanupLoop closes idle sessions.
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	interval := min(m.cfg.TTL/2, time.Minute)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.expire()
		}
	}
}

// expire closes sessions idle for longer than the TTL and returns how many.
func (m *Manager) expire() int {
	cutoff := m.clk.Now().Add(-m.cfg.TTL)

	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.logger.Debug("session expired", "session_id", s.ID)
		m.finish(s)
	}
	return len(idle)
}

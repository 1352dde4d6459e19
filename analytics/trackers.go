package analytics

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/use-agent/readtrack/clock"
	"github.com/use-agent/readtrack/webhook"
)

// LogTracker writes every hit to a structured logger.
type LogTracker struct {
	logger *slog.Logger
}

func NewLogTracker(logger *slog.Logger) *LogTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogTracker{logger: logger}
}

func (t *LogTracker) Track(event string, f Fields) {
	attrs := []any{
		"event", event,
		"category", f.Category,
		"action", f.Action,
		"label", f.Label,
		"non_interaction", f.NonInteraction,
	}
	if f.MetricName != "" {
		attrs = append(attrs, "metric", f.MetricName, "value", f.MetricValue)
	}
	for k, v := range f.Dimensions {
		attrs = append(attrs, "dim."+k, v)
	}
	t.logger.Info("reading event", attrs...)
}

// Recorder keeps every hit in memory. It is safe for concurrent use.
type Recorder struct {
	clk clock.Clock

	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder stamping events with clk
// (the real clock when nil).
func NewRecorder(clk clock.Clock) *Recorder {
	if clk == nil {
		clk = clock.Real()
	}
	return &Recorder{clk: clk}
}

func (r *Recorder) Track(event string, f Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: event, Fields: f, At: r.clk.Now()})
}

// Events returns a copy of the recorded hits in delivery order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Names returns the recorded event names in delivery order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

// Multi fans a hit out to several trackers. Nil entries are skipped and a
// panicking tracker does not keep the hit from the others.
type Multi []Tracker

func (m Multi) Track(event string, f Fields) {
	for _, t := range m {
		if t != nil {
			trackRecovered(t, event, f)
		}
	}
}

func trackRecovered(t Tracker, event string, f Fields) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("analytics: tracker panicked", "event", event, "panic", r)
		}
	}()
	t.Track(event, f)
}

// WebhookTracker posts every hit to an HTTP endpoint, asynchronously and
// signed with secret when set.
type WebhookTracker struct {
	url       string
	secret    string
	sessionID string
	clk       clock.Clock
}

func NewWebhookTracker(url, secret, sessionID string, clk clock.Clock) *WebhookTracker {
	if clk == nil {
		clk = clock.Real()
	}
	return &WebhookTracker{url: url, secret: secret, sessionID: sessionID, clk: clk}
}

func (t *WebhookTracker) Track(event string, f Fields) {
	now := t.clk.Now()
	webhook.DeliverAsync(t.url, t.secret, &webhook.Event{
		Type:      webhook.TypeReadingEvent,
		SessionID: t.sessionID,
		Timestamp: now.Unix(),
		Data:      Event{Name: event, Fields: f, At: now},
	})
}

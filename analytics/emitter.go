package analytics

import (
	"log/slog"
	"maps"
	"sync"
)

// Emitter decorates reading events with the common fields and hands them to
// the tracker. Emission is best effort: it never fails and never panics.
// A nil *Emitter discards everything.
type Emitter struct {
	tracker Tracker
	label   string
	debug   bool
	logger  *slog.Logger
}

// NewEmitter returns an Emitter for one page view. label (usually the page
// title) is used when an event carries no label of its own. tracker may be
// nil, in which case events are dropped.
func NewEmitter(tracker Tracker, label string, debug bool, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{tracker: tracker, label: label, debug: debug, logger: logger}
}

// Emit sends event with fields. Category defaults to "Reading", Action to
// the event name and Label to the page label.
func (e *Emitter) Emit(event string, fields Fields) {
	if e == nil {
		return
	}
	if fields.Category == "" {
		fields.Category = Category
	}
	if fields.Action == "" {
		fields.Action = event
	}
	if fields.Label == "" {
		fields.Label = e.label
	}
	if len(fields.Dimensions) > 0 {
		fields.Dimensions = maps.Clone(fields.Dimensions)
	}

	if e.tracker == nil {
		if e.debug {
			e.logger.Warn("analytics: no tracker configured, event dropped", "event", event)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("analytics: tracker panicked", "event", event, "panic", r)
		}
	}()
	e.tracker.Track(event, fields)

	if e.debug {
		e.logger.Info("analytics: event sent",
			"event", event,
			"label", fields.Label,
			"metric", fields.MetricName,
			"value", fields.MetricValue,
		)
	}
}

// Hold returns an Emitter that queues its events, and a flush function that
// emits the queue through e in order. The held Emitter logs nothing itself.
func (e *Emitter) Hold() (held *Emitter, flush func()) {
	if e == nil {
		return nil, func() {}
	}
	var (
		mu     sync.Mutex
		queued []Event
	)
	held = &Emitter{
		label:  e.label,
		logger: e.logger,
		tracker: TrackerFunc(func(event string, f Fields) {
			mu.Lock()
			queued = append(queued, Event{Name: event, Fields: f})
			mu.Unlock()
		}),
	}
	flush = func() {
		mu.Lock()
		q := queued
		queued = nil
		mu.Unlock()
		for _, ev := range q {
			e.Emit(ev.Name, ev.Fields)
		}
	}
	return held, flush
}

// Debug reports whether verbose diagnostics are enabled.
func (e *Emitter) Debug() bool {
	return e != nil && e.debug
}

// Package analytics forwards reading events to an analytics backend through
// the Tracker capability.
package analytics

import "time"

// Category is the event category of every reading event.
const Category = "Reading"

// Reading event names.
const (
	EventArticleLoaded   = "ArticleLoaded"
	EventContentGuessed  = "ContentGuessed"
	EventContentTooShort = "ContentTooShort"
	EventStartReading    = "StartReading"
	EventContentBottom   = "ContentBottom"
	EventContentRead     = "ContentRead"
	EventPageBottom      = "PageBottom"
)

// Contact event categories. Each doubles as the event name; the action
// carries the phone number, address or form title.
const (
	CategoryCalling        = "Calling"
	CategoryContact        = "Contact"
	CategoryFormSubmission = "FormSubmission"
)

// Reading behaviour dimension.
const (
	DimensionReadingBehaviour = "reading behaviour"
	BehaviourScanner          = "Scanner"
	BehaviourReader           = "Reader"
)

// Metric names.
const (
	MetricTimeToScroll     = "timeToScroll"
	MetricTimeToContentEnd = "timeToContentEnd"
	MetricTotalTime        = "totalTime"
)

// Fields describes one analytics hit.
type Fields struct {
	Category       string            `json:"category"`
	Action         string            `json:"action"`
	Label          string            `json:"label,omitempty"`
	NonInteraction bool              `json:"non_interaction,omitempty"`
	MetricName     string            `json:"metric_name,omitempty"`
	MetricValue    int               `json:"metric_value"`
	Dimensions     map[string]string `json:"dimensions,omitempty"`
}

// Event is a delivered hit, as kept by Recorder.
type Event struct {
	Name   string    `json:"name"`
	Fields Fields    `json:"fields"`
	At     time.Time `json:"at"`
}

// Tracker is the analytics backend. Implementations must not block for
// long: Track is called synchronously from the reading state machine.
type Tracker interface {
	Track(event string, fields Fields)
}

// TrackerFunc adapts a function to Tracker.
type TrackerFunc func(event string, fields Fields)

func (f TrackerFunc) Track(event string, fields Fields) { f(event, fields) }

package config

import (
	"fmt"
	"time"
)

// Reading defaults.
const (
	DefaultPixelThreshold   = 300
	DefaultTimeThreshold    = 60
	DefaultResizeFactor     = 0.85
	DefaultDebounceInterval = 100 * time.Millisecond
	DefaultWordsPerMinute   = 230
)

// ReadingConfig tunes content detection and the reading milestones.
type ReadingConfig struct {
	// PixelThreshold is how many pixels of content must be shown before the
	// visitor counts as reading.
	PixelThreshold int `json:"pixel_threshold" yaml:"pixel_threshold"`

	// TimeThreshold, in seconds, separates scanners from readers.
	TimeThreshold int `json:"time_threshold" yaml:"time_threshold"`

	// ResizeFactor discounts the content height and the document height so
	// the visitor does not need to scroll through all of it. 0 < f <= 1.
	ResizeFactor float64 `json:"resize_factor" yaml:"resize_factor"`

	// DebugMode enables verbose diagnostics.
	DebugMode bool `json:"debug_mode" yaml:"debug_mode"`

	// DebounceInterval is the quiet period after the last scroll event
	// before a sample is taken.
	DebounceInterval time.Duration `json:"-" yaml:"debounce_interval"`

	// TrackerName selects the analytics tracker from the registry.
	TrackerName string `json:"tracker_name,omitempty" yaml:"tracker_name"`

	// ProfileFile is an optional YAML file overriding detector selectors.
	ProfileFile string `json:"-" yaml:"profile_file"`

	// WordsPerMinute is the reading speed used for reading time estimates.
	WordsPerMinute int `json:"-" yaml:"words_per_minute"`
}

// DefaultReading returns the documented defaults.
func DefaultReading() ReadingConfig {
	return ReadingConfig{
		PixelThreshold:   DefaultPixelThreshold,
		TimeThreshold:    DefaultTimeThreshold,
		ResizeFactor:     DefaultResizeFactor,
		DebounceInterval: DefaultDebounceInterval,
		TrackerName:      "log",
		WordsPerMinute:   DefaultWordsPerMinute,
	}
}

// Validate reports the first invalid setting.
func (c ReadingConfig) Validate() error {
	if c.PixelThreshold < 0 {
		return fmt.Errorf("pixel threshold must not be negative, got %d", c.PixelThreshold)
	}
	if c.TimeThreshold < 0 {
		return fmt.Errorf("time threshold must not be negative, got %d", c.TimeThreshold)
	}
	if c.ResizeFactor <= 0 || c.ResizeFactor > 1 {
		return fmt.Errorf("resize factor must be in (0, 1], got %g", c.ResizeFactor)
	}
	if c.DebounceInterval <= 0 {
		return fmt.Errorf("debounce interval must be positive, got %s", c.DebounceInterval)
	}
	return nil
}

// ReadingOverrides carries per-request changes to a ReadingConfig.
// Nil fields keep the base value.
type ReadingOverrides struct {
	PixelThreshold *int     `json:"pixel_threshold,omitempty"`
	TimeThreshold  *int     `json:"time_threshold,omitempty"`
	ResizeFactor   *float64 `json:"resize_factor,omitempty"`
	DebugMode      *bool    `json:"debug_mode,omitempty"`
	TrackerName    *string  `json:"tracker_name,omitempty"`
}

// Merge returns a copy of c with the overrides applied.
func (c ReadingConfig) Merge(o *ReadingOverrides) ReadingConfig {
	if o == nil {
		return c
	}
	if o.PixelThreshold != nil {
		c.PixelThreshold = *o.PixelThreshold
	}
	if o.TimeThreshold != nil {
		c.TimeThreshold = *o.TimeThreshold
	}
	if o.ResizeFactor != nil {
		c.ResizeFactor = *o.ResizeFactor
	}
	if o.DebugMode != nil {
		c.DebugMode = *o.DebugMode
	}
	if o.TrackerName != nil {
		c.TrackerName = *o.TrackerName
	}
	return c
}

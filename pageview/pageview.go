// Package pageview wires the reading pipeline of one page load: locate the
// content, start the milestone machine, then feed it debounced scroll
// samples.
package pageview

import (
	"log/slog"
	"sync"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/clock"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/dom"
	"github.com/use-agent/readtrack/engagement"
	"github.com/use-agent/readtrack/monitor"
)

// Options configures a View. Document and Viewport are required.
type Options struct {
	Document dom.Document
	Viewport monitor.Viewport

	// Reading falls back to config.DefaultReading when zero or invalid.
	Reading config.ReadingConfig

	// Tracker receives the events; nil drops them.
	Tracker analytics.Tracker

	Clock   clock.Clock
	Locator *content.Locator
	Logger  *slog.Logger
}

// View is one tracked page load.
type View struct {
	region  content.Region
	machine *engagement.Machine
	em      *analytics.Emitter
	stop    func()
	once    sync.Once

	mu      sync.Mutex
	stopped bool
}

// Start locates the content of the page, emits ArticleLoaded and begins
// sampling the viewport. Locator diagnostics follow ArticleLoaded.
func Start(opts Options) *View {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Reading == (config.ReadingConfig{}) {
		opts.Reading = config.DefaultReading()
	} else if err := opts.Reading.Validate(); err != nil {
		opts.Logger.Warn("pageview: invalid reading settings, using defaults", "error", err)
		opts.Reading = config.DefaultReading()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	loc := opts.Locator
	if loc == nil {
		loc = content.NewLocator(opts.Reading, content.DefaultProfile(), content.SchemaProductProbe, opts.Logger)
	} else {
		loc = loc.WithReading(opts.Reading)
	}

	doc := opts.Document
	em := analytics.NewEmitter(opts.Tracker, doc.Title(), opts.Reading.DebugMode, opts.Logger)

	held, flush := em.Hold()
	region := loc.Locate(doc, held)
	machine := engagement.New(opts.Reading, region, doc.Height(), em, opts.Clock, opts.Logger)
	machine.Start()
	flush()

	mon := monitor.New(opts.Viewport, opts.Clock, opts.Reading.DebounceInterval, opts.Logger)
	return &View{
		region:  region,
		machine: machine,
		em:      em,
		stop:    mon.Start(region, machine.Observe),
	}
}

// Region returns the located content.
func (v *View) Region() content.Region { return v.region }

// State returns the current reading progress.
func (v *View) State() engagement.State { return v.machine.State() }

// Emit sends an event outside the reading milestones, such as a contact
// click, through the tracker of the view. It reports false once the view is
// stopped.
func (v *View) Emit(event string, fields analytics.Fields) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped {
		return false
	}
	v.em.Emit(event, fields)
	return true
}

// Stop detaches from the viewport and freezes the state. No event is
// emitted once it returns. Safe to call more than once.
func (v *View) Stop() {
	v.once.Do(func() {
		v.stop()
		v.machine.Stop()
		v.mu.Lock()
		v.stopped = true
		v.mu.Unlock()
	})
}

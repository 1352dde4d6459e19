package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/clock"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/content"
	"github.com/use-agent/readtrack/dom"
	"github.com/use-agent/readtrack/engagement"
	"github.com/use-agent/readtrack/models"
	"github.com/use-agent/readtrack/monitor"
	"github.com/use-agent/readtrack/pageview"
)

// scrollBinding is the page function the scroll listener reports to.
const scrollBinding = "__readtrackScroll"

// listenJS forwards every scroll and resize event to the binding.
const listenJS = `(name) => {
	const send = () => window[name]({top: window.pageYOffset, height: window.innerHeight});
	window.addEventListener('scroll', send, {passive: true});
	window.addEventListener('resize', send);
}`

// LiveViewport is a monitor.Viewport fed by the scroll events of a page
// running in the browser.
type LiveViewport struct {
	*monitor.Feed
	stop func() error
}

// Watch starts forwarding the scroll events of p. Call Close when done.
func Watch(p *rod.Page, height float64) (*LiveViewport, error) {
	feed := monitor.NewFeed(height)
	stop, err := p.Expose(scrollBinding, func(payload gson.JSON) (interface{}, error) {
		top, h := decodeViewport(payload)
		feed.Update(top, h)
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("browser: expose scroll binding: %w", err)
	}
	if _, err := p.Eval(listenJS, scrollBinding); err != nil {
		_ = stop()
		return nil, fmt.Errorf("browser: install scroll listener: %w", err)
	}
	return &LiveViewport{Feed: feed, stop: stop}, nil
}

// Close removes the page binding.
func (v *LiveViewport) Close() error { return v.stop() }

func decodeViewport(payload gson.JSON) (top, height float64) {
	top = payload.Get("top").Num()
	height = payload.Get("height").Num()
	if top < 0 {
		top = 0
	}
	return top, height
}

// SimulateOptions configures a simulated visit.
type SimulateOptions struct {
	// Reading falls back to config.DefaultReading when zero.
	Reading config.ReadingConfig

	// Locator may be nil.
	Locator *content.Locator

	// Tracker also receives the events; nil records them only.
	Tracker analytics.Tracker
}

// SimulateResult is the outcome of a simulated visit.
type SimulateResult struct {
	Page   *Result
	Region content.Region
	State  engagement.State
	Events []analytics.Event
	Steps  int
}

// Simulate renders the page, tracks it like a visitor's browser would and
// plays the scripted steps against it.
func (b *Browser) Simulate(ctx context.Context, req *models.SimulateRequest, opts SimulateOptions) (*SimulateResult, error) {
	if err := validateSteps(req.Steps); err != nil {
		return nil, models.NewTrackError(models.ErrCodeInvalidInput, err.Error(), err)
	}

	var out *SimulateResult
	err := b.withPage(ctx, &req.PageRequest, func(p *rod.Page) error {
		// ── 1. Measure ──────────────────────────────────────────────
		page, err := annotate(p, req.URL)
		if err != nil {
			return err
		}
		doc, err := dom.ParseSnapshotString(page.HTML, b.logger)
		if err != nil {
			return models.NewTrackError(models.ErrCodeSnapshotFailed, "cannot parse rendered page", err)
		}

		// ── 2. Track ────────────────────────────────────────────────
		live, err := Watch(p, page.ViewportHeight)
		if err != nil {
			return models.NewTrackError(models.ErrCodeBrowserCrash, "cannot watch page scrolling", err)
		}
		defer func() { _ = live.Close() }()

		clk := clock.Real()
		rec := analytics.NewRecorder(clk)
		var tracker analytics.Tracker = rec
		if opts.Tracker != nil {
			tracker = analytics.Multi{rec, opts.Tracker}
		}
		view := pageview.Start(pageview.Options{
			Document: doc,
			Viewport: live,
			Reading:  opts.Reading,
			Tracker:  tracker,
			Clock:    clk,
			Locator:  opts.Locator,
			Logger:   b.logger.With("url", req.URL),
		})
		defer view.Stop()

		// ── 3. Play the steps ───────────────────────────────────────
		for i, step := range req.Steps {
			if err := runStep(p, step); err != nil {
				return models.NewTrackError(models.ErrCodeActionFailed,
					fmt.Sprintf("step %d (%s) failed after %d completed: %v", i, step.Action, i, err), err)
			}
			if err := dwell(p.GetContext(), time.Duration(step.DwellMs)*time.Millisecond); err != nil {
				return categorizeError(err, fmt.Sprintf("step %d (%s) interrupted", i, step.Action))
			}
		}

		// ── 4. Let the last burst settle ────────────────────────────
		interval := opts.Reading.DebounceInterval
		if interval <= 0 {
			interval = config.DefaultDebounceInterval
		}
		if err := dwell(p.GetContext(), 2*interval); err != nil {
			return categorizeError(err, "page closed before the last scroll was sampled")
		}
		view.Stop()

		out = &SimulateResult{
			Page:   page,
			Region: view.Region(),
			State:  view.State(),
			Events: rec.Events(),
			Steps:  len(req.Steps),
		}
		return nil
	})
	return out, err
}

func validateSteps(steps []models.Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, s := range steps {
		switch s.Action {
		case models.StepScrollTo:
			if s.Y < 0 {
				return fmt.Errorf("step %d: y must not be negative", i)
			}
		case models.StepScrollBy:
			if s.Pixels == 0 {
				return fmt.Errorf("step %d: scroll_by needs pixels", i)
			}
		case models.StepBottom, models.StepWait:
		default:
			return fmt.Errorf("step %d: unknown action %q", i, s.Action)
		}
		if s.DwellMs < 0 {
			return fmt.Errorf("step %d: dwell_ms must not be negative", i)
		}
	}
	return nil
}

func runStep(p *rod.Page, s models.Step) error {
	switch s.Action {
	case models.StepScrollTo:
		_, err := p.Eval(`(y) => window.scrollTo(0, y)`, s.Y)
		return err
	case models.StepScrollBy:
		// Wheel events, like a visitor.
		return p.Mouse.Scroll(0, float64(s.Pixels), 1)
	case models.StepBottom:
		_, err := p.Eval(`() => window.scrollTo(0, document.documentElement.scrollHeight)`)
		return err
	case models.StepWait:
		return nil
	default:
		return fmt.Errorf("unknown action: %s", s.Action)
	}
}

// dwell waits for d or until ctx is done.
func dwell(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

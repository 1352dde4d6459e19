// Package content finds the part of a page the visitor is supposed to read.
package content

import (
	"log/slog"
	"math"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/dom"
)

// Region is the located content, in document pixels.
type Region struct {
	Name         string  `json:"name"`
	Kind         Kind    `json:"kind"`
	StartOffset  float64 `json:"start_offset"`
	EndOffset    float64 `json:"end_offset"`
	Height       int     `json:"height"` // (EndOffset-StartOffset) * ResizeFactor, never negative
	ResizeFactor float64 `json:"resize_factor"`
	Guessed      bool    `json:"guessed"`

	// Elements are the nodes the region was built from.
	Elements dom.Nodes `json:"-"`
}

// Match is the outcome of the detection chain.
type Match struct {
	Detector Detector  `json:"detector"`
	Product  bool      `json:"product_page"`
	Nodes    dom.Nodes `json:"-"`

	// lead is the leading image of a blog entry, if any.
	lead dom.Nodes
}

// Locator runs the detection chain over a page.
type Locator struct {
	cfg     config.ReadingConfig
	profile Profile
	chain   []Detector
	probe   ProductProbe
	logger  *slog.Logger
}

// NewLocator returns a Locator. probe may be nil (no product detection).
func NewLocator(cfg config.ReadingConfig, profile Profile, probe ProductProbe, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	profile = profile.withDefaults()
	return &Locator{
		cfg:     cfg,
		profile: profile,
		chain:   DefaultChain(profile),
		probe:   probe,
		logger:  logger,
	}
}

// WithReading returns a copy of l using cfg.
func (l *Locator) WithReading(cfg config.ReadingConfig) *Locator {
	c := *l
	c.cfg = cfg
	return &c
}

// WithProbe returns a copy of l using probe.
func (l *Locator) WithProbe(probe ProductProbe) *Locator {
	c := *l
	c.probe = probe
	return &c
}

// Detect runs the chain and returns the first detector that matched.
// It needs no geometry, so it also works on pages that were never rendered.
// The last detector (<body>) matches any document with a body.
func (l *Locator) Detect(doc dom.Document) Match {
	product := l.probe != nil && l.probe(doc)
	for _, d := range l.chain {
		if m, ok := l.match(doc, d, product); ok {
			return m
		}
	}
	// Parsed documents always have a body; this only happens for fakes.
	body := l.chain[len(l.chain)-1]
	return Match{Detector: body, Product: product, Nodes: doc.Find("html")}
}

func (l *Locator) match(doc dom.Document, d Detector, product bool) (Match, bool) {
	m := Match{Detector: d, Product: product}

	switch d.Kind {
	case KindProduct:
		if !product {
			return m, false
		}
		m.Nodes = doc.Find(join(l.profile.ProductContainers))

	case KindRecipe:
		if product {
			return m, false
		}
		var container dom.Nodes
		for _, sel := range l.profile.RecipeContainers {
			if found := doc.Find(sel); found.Len() > 0 {
				container = found
				break
			}
		}
		if container == nil || container.HasClass(l.profile.ExcludedRecipeClass) {
			return m, false
		}
		m.Nodes = container.Find(join(l.profile.RecipeContent))

	case KindBlogEntry:
		post := doc.Find(join(l.profile.PostContainers))
		if post.Len() == 0 {
			return m, false
		}
		m.Nodes = post.Find(join(l.profile.PostContent))
		m.lead = post.Find("p").First().Find("img").First()

	case KindFallback:
		m.Nodes = doc.Find(d.Selector)
	}

	if m.Nodes == nil || m.Nodes.Len() == 0 {
		return m, false
	}
	return m, true
}

// Locate detects the content of doc and measures it. Fallback matches emit
// ContentGuessed and content shorter than the pixel threshold emits
// ContentTooShort; em may be nil.
func (l *Locator) Locate(doc dom.Document, em *analytics.Emitter) Region {
	m := l.Detect(doc)

	start, end := span(m.Nodes.Boxes())
	r := Region{
		Name:         m.Detector.Name,
		Kind:         m.Detector.Kind,
		ResizeFactor: l.cfg.ResizeFactor,
		Guessed:      m.Detector.Kind == KindFallback,
		Elements:     m.Nodes,
	}

	// A picture at the top of a post is not content.
	if m.lead != nil && m.lead.Len() > 0 {
		if imgBottom := m.lead.Boxes()[0].Bottom(); imgBottom > start && imgBottom < end {
			if l.cfg.DebugMode {
				l.logger.Info("content: skipping leading image", "image_bottom", imgBottom)
			}
			start = imgBottom
		}
	}

	// Comments are not content either.
	if comments := doc.Find(join(l.profile.Comments)); comments.Len() > 0 {
		cStart, cEnd := span(comments.Boxes())
		if cEnd-cStart > 0 && cStart > start {
			end = math.Min(end, cStart)
		}
	}

	r.StartOffset, r.EndOffset = start, end
	raw := (end - start) * r.ResizeFactor
	if raw < 0 {
		l.logger.Warn("content: negative content height",
			"name", r.Name,
			"start", start,
			"end", end,
		)
		raw = 0
	}
	r.Height = int(raw)

	if r.Guessed {
		l.logger.Debug("content: type could not be identified, using fallback", "name", r.Name)
		em.Emit(analytics.EventContentGuessed, analytics.Fields{NonInteraction: true})
	}
	if r.Height < l.cfg.PixelThreshold {
		if l.cfg.DebugMode {
			l.logger.Warn("content: too short or threshold too large",
				"name", r.Name,
				"height", r.Height,
				"pixel_threshold", l.cfg.PixelThreshold,
			)
		}
		em.Emit(analytics.EventContentTooShort, analytics.Fields{NonInteraction: true})
	}

	if l.cfg.DebugMode {
		l.logger.Info("content: located",
			"type", r.Name,
			"pixel_threshold", l.cfg.PixelThreshold,
			"time_threshold", l.cfg.TimeThreshold,
			"document_height", doc.Height(),
			"content_start", r.StartOffset,
			"content_end", r.EndOffset,
			"content_height", r.Height,
		)
	}
	return r
}

// span returns the smallest top and the largest bottom of boxes.
func span(boxes []dom.Box) (start, end float64) {
	if len(boxes) == 0 {
		return 0, 0
	}
	start, end = math.Inf(1), math.Inf(-1)
	for _, b := range boxes {
		start = math.Min(start, b.Top)
		end = math.Max(end, b.Bottom())
	}
	return start, end
}

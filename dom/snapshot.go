package dom

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// Geometry attributes written by AnnotatorJS.
const (
	AttrTop            = "data-rt-top"
	AttrHeight         = "data-rt-height"
	AttrDocHeight      = "data-rt-doc-height"
	AttrViewportHeight = "data-rt-viewport-height"
)

// selectorCache maps selector strings to compiled cascadia selectors.
// Detector profiles reuse the same handful of selectors on every page.
var selectorCache sync.Map

func compile(selector string) (cascadia.Selector, error) {
	if v, ok := selectorCache.Load(selector); ok {
		return v.(cascadia.Selector), nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}
	selectorCache.Store(selector, sel)
	return sel, nil
}

// Snapshot is a Document parsed from annotated HTML.
// It is safe for concurrent reads.
type Snapshot struct {
	doc            *goquery.Document
	logger         *slog.Logger
	title          string
	height         float64
	viewportHeight float64
	annotated      bool
}

// ParseSnapshot parses annotated page markup. Markup without annotations is
// accepted; its elements have zero geometry and Annotated returns false.
func ParseSnapshot(r io.Reader, logger *slog.Logger) (*Snapshot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse snapshot: %w", err)
	}

	s := &Snapshot{
		doc:    doc,
		logger: logger,
		title:  strings.TrimSpace(doc.Find("title").First().Text()),
	}

	root := doc.Find("html").First()
	if v, ok := root.Attr(AttrDocHeight); ok {
		s.height = parsePixels(v)
		s.annotated = true
	}
	if v, ok := root.Attr(AttrViewportHeight); ok {
		s.viewportHeight = parsePixels(v)
	}
	return s, nil
}

// ParseSnapshotString is ParseSnapshot for in-memory markup.
func ParseSnapshotString(markup string, logger *slog.Logger) (*Snapshot, error) {
	return ParseSnapshot(strings.NewReader(markup), logger)
}

func (s *Snapshot) Title() string           { return s.title }
func (s *Snapshot) Height() float64         { return s.height }
func (s *Snapshot) ViewportHeight() float64 { return s.viewportHeight }
func (s *Snapshot) Annotated() bool         { return s.annotated }

func (s *Snapshot) Find(selector string) Nodes {
	return selection{sel: s.doc.Selection, logger: s.logger}.Find(selector)
}

// selection adapts a goquery selection to Nodes.
type selection struct {
	sel    *goquery.Selection
	logger *slog.Logger
}

func (n selection) Len() int { return n.sel.Length() }

func (n selection) Find(selector string) Nodes {
	m, err := compile(selector)
	if err != nil {
		n.logger.Debug("dom: invalid selector, matching nothing",
			"selector", selector, "error", err)
		return selection{sel: n.sel.FilterFunction(func(int, *goquery.Selection) bool { return false }), logger: n.logger}
	}
	return selection{sel: n.sel.FindMatcher(m), logger: n.logger}
}

func (n selection) First() Nodes { return selection{sel: n.sel.First(), logger: n.logger} }

func (n selection) HasClass(class string) bool { return n.sel.HasClass(class) }

func (n selection) Boxes() []Box {
	boxes := make([]Box, 0, n.sel.Length())
	n.sel.Each(func(_ int, el *goquery.Selection) {
		top, _ := el.Attr(AttrTop)
		height, _ := el.Attr(AttrHeight)
		boxes = append(boxes, Box{Top: parsePixels(top), Height: parsePixels(height)})
	})
	return boxes
}

func (n selection) OuterHTML() string {
	var b strings.Builder
	n.sel.Each(func(_ int, el *goquery.Selection) {
		if h, err := goquery.OuterHtml(el); err == nil {
			b.WriteString(h)
		}
	})
	return b.String()
}

// parsePixels reads an annotated pixel value; anything unparsable is 0.
func parsePixels(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

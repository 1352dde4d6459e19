// Package dom is the read-only view of a rendered page used by the content
// locator: element sets with document-relative geometry.
package dom

// Box is the vertical geometry of one element, in document pixels.
type Box struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

// Bottom returns Top + Height.
func (b Box) Bottom() float64 { return b.Top + b.Height }

// Nodes is an ordered set of elements.
type Nodes interface {
	// Len returns the number of elements in the set.
	Len() int

	// Find returns the descendants of the set matching selector.
	Find(selector string) Nodes

	// First returns the first element of the set (or an empty set).
	First() Nodes

	// HasClass reports whether any element of the set has class.
	HasClass(class string) bool

	// Boxes returns the geometry of every element, in document order.
	Boxes() []Box

	// OuterHTML returns the concatenated markup of the set.
	OuterHTML() string
}

// Document is a rendered page.
type Document interface {
	// Title returns the page title.
	Title() string

	// Height returns the document height in pixels.
	Height() float64

	// ViewportHeight returns the window height at render time, 0 if unknown.
	ViewportHeight() float64

	// Annotated reports whether element geometry is available.
	Annotated() bool

	// Find returns every element matching selector.
	Find(selector string) Nodes
}

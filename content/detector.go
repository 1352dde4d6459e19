package content

import (
	"strings"

	"github.com/use-agent/readtrack/dom"
)

// Kind identifies how a detector recognises content.
type Kind string

const (
	KindProduct   Kind = "product"
	KindRecipe    Kind = "recipe"
	KindBlogEntry Kind = "blog_entry"
	KindFallback  Kind = "fallback"
)

// Detector is one entry of the detection chain. Selector is only used by
// fallback detectors; the others read their selectors from the Profile.
type Detector struct {
	Kind     Kind   `json:"kind"`
	Name     string `json:"name"`
	Selector string `json:"selector,omitempty"`
}

// BodyName is the region name used when nothing but <body> matched.
const BodyName = "<body>"

// DefaultChain returns the detectors in evaluation order: product, recipe,
// blog entry, then each fallback selector and finally <body>.
func DefaultChain(p Profile) []Detector {
	chain := []Detector{
		{Kind: KindProduct, Name: "Product"},
		{Kind: KindRecipe, Name: "Recipe"},
		{Kind: KindBlogEntry, Name: "Blog entry"},
	}
	for _, sel := range p.Fallbacks {
		chain = append(chain, Detector{Kind: KindFallback, Name: sel, Selector: sel})
	}
	return append(chain, Detector{Kind: KindFallback, Name: BodyName, Selector: "body"})
}

// ProductProbe reports whether the page presents a product. It stands in
// for the CMS "is this a product page" check. A nil probe means the check is
// unavailable: the product detector never matches.
type ProductProbe func(doc dom.Document) bool

// SchemaProductProbe flags pages carrying schema.org Product markup.
func SchemaProductProbe(doc dom.Document) bool {
	return doc.Find(`[itemtype="http://schema.org/Product"], [itemtype="https://schema.org/Product"]`).Len() > 0
}

// FixedProductProbe returns a probe that always answers v.
func FixedProductProbe(v bool) ProductProbe {
	return func(dom.Document) bool { return v }
}

func join(selectors []string) string {
	return strings.Join(selectors, ", ")
}

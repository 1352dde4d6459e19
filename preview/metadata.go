package preview

import (
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// metadata describes the page the content belongs to.
type metadata struct {
	Title    string
	Byline   string
	Excerpt  string
	SiteName string
	Language string
	Image    string

	// Content is readability's own idea of the main content, used when the
	// caller has none.
	Content string
}

// readMetadata runs readability over the page and fills the gaps from Open
// Graph tags. It never fails: a page readability chokes on yields whatever
// the meta tags carry.
func readMetadata(rawHTML, sourceURL string, logger *slog.Logger) metadata {
	var md metadata

	if u, err := nurl.Parse(sourceURL); err != nil {
		logger.Debug("preview: invalid source URL", "url", sourceURL, "error", err)
	} else if article, err := readability.FromReader(strings.NewReader(rawHTML), u); err != nil {
		logger.Debug("preview: readability failed", "url", sourceURL, "error", err)
	} else {
		md = metadata{
			Title:    article.Title,
			Byline:   article.Byline,
			Excerpt:  article.Excerpt,
			SiteName: article.SiteName,
			Language: article.Language,
			Content:  article.Content,
		}
	}

	og := openGraph(rawHTML)
	if md.Title == "" {
		md.Title = og["og:title"]
	}
	if md.Excerpt == "" {
		md.Excerpt = og["og:description"]
	}
	if md.SiteName == "" {
		md.SiteName = og["og:site_name"]
	}
	md.Image = og["og:image"]
	return md
}

// openGraph returns the og:* meta properties of the page.
func openGraph(rawHTML string) map[string]string {
	og := make(map[string]string)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return og
	}
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content != "" {
			if _, seen := og[prop]; !seen {
				og[prop] = content
			}
		}
	})
	return og
}

// plainText returns the visible text of an HTML fragment with whitespace
// collapsed. Text of adjacent elements is kept apart.
func plainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	raw := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			if isRawText(z) {
				raw++
			}
		case html.EndTagToken:
			if isRawText(z) && raw > 0 {
				raw--
			}
		case html.TextToken:
			if raw == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isRawText(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

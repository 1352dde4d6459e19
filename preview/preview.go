// Package preview describes located content for humans: page metadata, the
// content as Markdown and how long it takes to read.
package preview

import (
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/use-agent/readtrack/analytics"
	"github.com/use-agent/readtrack/config"
	"github.com/use-agent/readtrack/models"
)

// Builder builds previews. It is safe for concurrent use.
type Builder struct {
	md     *converter.Converter
	wpm    int
	logger *slog.Logger
}

// NewBuilder returns a Builder estimating reading time at wordsPerMinute
// (config.DefaultWordsPerMinute when not positive).
func NewBuilder(wordsPerMinute int, logger *slog.Logger) *Builder {
	if wordsPerMinute <= 0 {
		wordsPerMinute = config.DefaultWordsPerMinute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{md: newMarkdownConverter(), wpm: wordsPerMinute, logger: logger}
}

// Build describes the content of a page. contentHTML is the located content;
// when empty, readability's main content stands in. timeThreshold is the
// reading time in seconds that separates readers from scanners.
func (b *Builder) Build(rawHTML, sourceURL, contentHTML string, timeThreshold int) *models.Preview {
	// ── 1. Page metadata ────────────────────────────────────────────
	md := readMetadata(rawHTML, sourceURL, b.logger)

	if contentHTML == "" {
		contentHTML = md.Content
	}

	// ── 2. Markdown ─────────────────────────────────────────────────
	markdown, err := toMarkdown(b.md, contentHTML, sourceURL)
	if err != nil {
		b.logger.Warn("preview: markdown conversion failed", "url", sourceURL, "error", err)
		markdown = ""
	}

	// ── 3. Reading time ─────────────────────────────────────────────
	words := countWords(plainText(contentHTML))
	secs := readingSeconds(words, b.wpm)

	return &models.Preview{
		Title:             md.Title,
		Byline:            md.Byline,
		Excerpt:           md.Excerpt,
		SiteName:          md.SiteName,
		Language:          md.Language,
		Image:             md.Image,
		Markdown:          strings.TrimSpace(markdown),
		Words:             words,
		ReadingSeconds:    secs,
		ExpectedBehaviour: behaviour(secs, timeThreshold),
	}
}

// countWords counts the fields that carry a letter or a digit.
func countWords(text string) int {
	n := 0
	for _, f := range strings.Fields(text) {
		if strings.IndexFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			n++
		}
	}
	return n
}

// readingSeconds rounds up: a one word text still takes a second.
func readingSeconds(words, wpm int) int {
	if words <= 0 || wpm <= 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * 60 / float64(wpm)))
}

// behaviour classifies a visit that reaches the end of the content after
// secs seconds, the same way the reading milestones do.
func behaviour(secs, timeThreshold int) string {
	if secs >= timeThreshold {
		return analytics.BehaviourReader
	}
	return analytics.BehaviourScanner
}

package preview

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// newMarkdownConverter returns a goroutine-safe converter: base strips
// scripts, styles and comments; commonmark renders the text; table keeps
// recipe and product tables with minimal cell padding.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// toMarkdown converts an HTML fragment, resolving relative links and images
// against sourceURL.
func toMarkdown(conv *converter.Converter, fragment, sourceURL string) (string, error) {
	return conv.ConvertString(fragment, converter.WithDomain(sourceURL))
}

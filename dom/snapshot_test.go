package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const annotatedPage = `<html data-rt-doc-height="5000" data-rt-viewport-height="800">
<head><title>  A post  </title></head>
<body data-rt-top="0" data-rt-height="5000">
  <article id="post-12" class="post" data-rt-top="400" data-rt-height="4200">
    <p data-rt-top="420" data-rt-height="300"><img src="x.jpg" data-rt-top="430" data-rt-height="250"></p>
    <div class="entry-content featured" data-rt-top="500" data-rt-height="4000">text</div>
  </article>
</body></html>`

func TestParseSnapshot_ReadsPageGeometry(t *testing.T) {
	doc, err := ParseSnapshotString(annotatedPage, nil)
	require.NoError(t, err)

	assert.True(t, doc.Annotated())
	assert.Equal(t, "A post", doc.Title())
	assert.Equal(t, 5000.0, doc.Height())
	assert.Equal(t, 800.0, doc.ViewportHeight())
}

func TestSnapshot_FindAndBoxes(t *testing.T) {
	doc, err := ParseSnapshotString(annotatedPage, nil)
	require.NoError(t, err)

	post := doc.Find(`article[id^="post-"], #blogread`)
	require.Equal(t, 1, post.Len())

	content := post.Find("div.entry-content")
	require.Equal(t, 1, content.Len())
	assert.Equal(t, []Box{{Top: 500, Height: 4000}}, content.Boxes())
	assert.True(t, content.HasClass("featured"))
	assert.False(t, content.HasClass("easyrecipe"))

	img := post.Find("p").First().Find("img").First()
	require.Equal(t, 1, img.Len())
	assert.Equal(t, 680.0, img.Boxes()[0].Bottom())
}

func TestSnapshot_InvalidSelectorMatchesNothing(t *testing.T) {
	doc, err := ParseSnapshotString(annotatedPage, nil)
	require.NoError(t, err)

	nodes := doc.Find("div[[[")
	assert.Zero(t, nodes.Len())
	assert.Empty(t, nodes.Boxes())
	assert.Zero(t, nodes.Find("p").Len())
}

func TestSnapshot_UnannotatedMarkup(t *testing.T) {
	doc, err := ParseSnapshotString(`<html><body><div id="content">hello</div></body></html>`, nil)
	require.NoError(t, err)

	assert.False(t, doc.Annotated())
	assert.Zero(t, doc.Height())
	assert.Equal(t, []Box{{}}, doc.Find("#content").Boxes())
}

func TestSnapshot_OuterHTML(t *testing.T) {
	doc, err := ParseSnapshotString(`<html><body><p class="a">one</p><p class="a">two</p></body></html>`, nil)
	require.NoError(t, err)

	out := doc.Find("p.a").OuterHTML()
	assert.True(t, strings.Contains(out, "one") && strings.Contains(out, "two"), out)
}

package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripBoilerplatePrefersMainLandmark(t *testing.T) {
	doc, err := Parse(`<html><body>
		<header>Site header</header>
		<main><p>Recipe body text</p></main>
		<footer>Copyright</footer>
	</body></html>`)
	require.NoError(t, err)

	root := StripBoilerplate(doc)
	text := CollapseWhitespace(root.Text())
	assert.Equal(t, "Recipe body text", text)
}

func TestStripBoilerplateFallsBackToBody(t *testing.T) {
	doc, err := Parse(`<html><body>
		<nav>Home About</nav>
		<p>Just a paragraph</p>
		<script>alert(1)</script>
	</body></html>`)
	require.NoError(t, err)

	text := CollapseWhitespace(StripBoilerplate(doc).Text())
	assert.Equal(t, "Just a paragraph", text)
}

func TestStripBoilerplateRemovesChromeByClass(t *testing.T) {
	doc, err := Parse(`<html><body>
		<div class="cookie-consent">Accept cookies</div>
		<div id="sidebar-widgets">Trending now</div>
		<div class="content-area">Keep this</div>
	</body></html>`)
	require.NoError(t, err)

	text := CollapseWhitespace(StripBoilerplate(doc).Text())
	assert.NotContains(t, text, "Accept cookies")
	assert.NotContains(t, text, "Trending now")
	assert.Contains(t, text, "Keep this")
}

func TestStripBoilerplateRemovesComments(t *testing.T) {
	doc, err := Parse(`<html><body><p>visible</p><!-- hidden editorial note --></body></html>`)
	require.NoError(t, err)

	root := StripBoilerplate(doc)
	out, err := root.Html()
	require.NoError(t, err)
	assert.NotContains(t, out, "hidden editorial note")
}

func TestToMarkdownDropsImageOnlyLines(t *testing.T) {
	doc, err := Parse(`<html><body><main>
		<p><img src="/hero.jpg" alt="hero shot"></p>
		<p>Mix the <strong>dry</strong> ingredients.</p>
	</main></body></html>`)
	require.NoError(t, err)

	out := ToMarkdown(StripBoilerplate(doc))
	assert.Contains(t, out, "Mix the **dry** ingredients.")
	assert.NotContains(t, out, "hero.jpg")
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a \n\t b \r\n c  "))
	assert.Equal(t, "", CollapseWhitespace(" \n\t "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "abcde", Truncate("abcdefgh", 5))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

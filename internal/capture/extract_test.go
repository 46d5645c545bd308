package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<!doctype html>
<html>
<head>
  <title> Go Memory Model </title>
  <link rel="shortcut icon" href="/favicon.ico">
</head>
<body>
  <nav><a href="/">Home</a> | <a href="/blog">Blog</a></nav>
  <article>
    <h1>Happens Before</h1>
    <p>A send on a channel is <strong>synchronized before</strong> the receive.</p>
    <script>track()</script>
  </article>
  <footer>Copyright</footer>
</body>
</html>`

func TestExtractor_Page(t *testing.T) {
	page, err := NewExtractor().Page(articlePage, "https://go.dev/ref/mem")
	require.NoError(t, err)

	assert.Equal(t, "Go Memory Model", page.Title)
	assert.Equal(t, "https://go.dev/favicon.ico", page.Favicon)
	assert.Contains(t, page.Content, "# Happens Before")
	assert.Contains(t, page.Content, "**synchronized before**")
	assert.NotContains(t, page.Content, "Home")
	assert.NotContains(t, page.Content, "track()")
}

func TestExtractor_PageFallsBackToBody(t *testing.T) {
	doc := `<html><head><title>T</title></head><body>
	<header>Site</header><p>Only paragraph</p><aside>Ads</aside></body></html>`

	page, err := NewExtractor().Page(doc, "")
	require.NoError(t, err)
	assert.Equal(t, "Only paragraph", page.Content)
	assert.Empty(t, page.Favicon)
}

func TestExtractor_PagePrefersRoleMain(t *testing.T) {
	doc := `<body><div>outside</div><div role="main"><p>inside</p></div></body>`

	page, err := NewExtractor().Page(doc, "")
	require.NoError(t, err)
	assert.Equal(t, "inside", page.Content)
}

func TestExtractor_Markdown(t *testing.T) {
	ex := NewExtractor()

	md, err := ex.Markdown(`<ul><li>one</li><li>two</li></ul>`, "")
	require.NoError(t, err)
	assert.Contains(t, md, "one")
	assert.Contains(t, md, "two")

	md, err = ex.Markdown("   ", "")
	require.NoError(t, err)
	assert.Empty(t, md)
}

func TestExtractor_Sanitize(t *testing.T) {
	out := NewExtractor().Sanitize(`<p onclick="steal()">hi</p><script>bad()</script>`)
	assert.Contains(t, out, "hi")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "script")
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "https://example.com", domainOf("https://example.com/a/b?q=1"))
	assert.Empty(t, domainOf(""))
	assert.Empty(t, domainOf("not a url"))
}

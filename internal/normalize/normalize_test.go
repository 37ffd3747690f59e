package normalize

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html>
<head><title>  City Budget 2026  </title><style>p { color: red }</style></head>
<body>
<nav><a href="/home">Home</a><a href="/about">About</a></nav>
<header>Site header chrome</header>
<div class="cookie-banner">We use cookies, accept?</div>
<h1>City Budget 2026</h1>
<p>The council approved the budget in a late session.</p>
<h2>Transport</h2>
<p>Road maintenance receives a 4% increase.</p>
<ul><li>Buses: new night routes</li><li>Trams: fleet renewal</li></ul>
<p style="display:none">tracking pixel caption</p>
<script>analytics.track("pageview")</script>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestExtractDropsBoilerplate(t *testing.T) {
	t.Parallel()

	title, text, err := Extract(samplePage, "https://city.example.com/budget", Config{})
	require.NoError(t, err)
	require.Equal(t, "City Budget 2026", title)

	require.NotContains(t, text, "Home")
	require.NotContains(t, text, "Site header chrome")
	require.NotContains(t, text, "cookies")
	require.NotContains(t, text, "analytics")
	require.NotContains(t, text, "Copyright")
	require.NotContains(t, text, "tracking pixel")
	require.NotContains(t, text, "color: red")
}

func TestExtractKeepsContentInOrder(t *testing.T) {
	t.Parallel()

	_, text, err := Extract(samplePage, "https://city.example.com/budget", Config{})
	require.NoError(t, err)

	council := strings.Index(text, "The council approved")
	transport := strings.Index(text, "Transport")
	roads := strings.Index(text, "Road maintenance")
	buses := strings.Index(text, "Buses: new night routes")

	require.Greater(t, council, -1)
	require.Greater(t, transport, council)
	require.Greater(t, roads, transport)
	require.Greater(t, buses, roads)
}

func TestExtractTitleComesFirst(t *testing.T) {
	t.Parallel()

	_, text, err := Extract(samplePage, "https://city.example.com/budget", Config{})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(text, "City Budget 2026"))
}

func TestExtractHeadingsOnOwnLines(t *testing.T) {
	t.Parallel()

	_, text, err := Extract(samplePage, "https://city.example.com/budget", Config{})
	require.NoError(t, err)

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "Transport" {
			return
		}
	}
	t.Fatalf("heading should be on its own line, got:\n%s", text)
}

func TestExtractWhitespaceNormalized(t *testing.T) {
	t.Parallel()

	html := "<html><body><p>spaced    out\t\ttext</p><p>a</p><p>b</p></body></html>"
	_, text, err := Extract(html, "https://example.com", Config{})
	require.NoError(t, err)
	require.Contains(t, text, "spaced out text")
	require.NotContains(t, text, "\n\n\n")
}

func TestExtractMinParagraphLen(t *testing.T) {
	t.Parallel()

	html := "<html><body><p>ok</p><p>this paragraph is long enough to keep</p></body></html>"
	_, text, err := Extract(html, "https://example.com", Config{MinParagraphLen: 10})
	require.NoError(t, err)
	require.NotContains(t, text, "ok")
	require.Contains(t, text, "long enough to keep")
}

func TestExtractTitleTruncated(t *testing.T) {
	t.Parallel()

	html := "<html><head><title>" + strings.Repeat("t", 600) + "</title></head><body><p>body</p></body></html>"
	title, _, err := Extract(html, "https://example.com", Config{})
	require.NoError(t, err)
	require.Len(t, title, 500)
}

func TestExtractTitleTruncatedOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// 499 ASCII bytes followed by a two-byte rune straddling the limit.
	longTitle := strings.Repeat("t", 499) + "é"
	html := "<html><head><title>" + longTitle + "</title></head><body><p>body</p></body></html>"
	title, _, err := Extract(html, "https://example.com", Config{})
	require.NoError(t, err)
	require.True(t, utf8.ValidString(title))
	require.LessOrEqual(t, len(title), 500)
	require.Equal(t, strings.Repeat("t", 499), title)
}

const articlePage = `<!doctype html>
<html>
<head><title>Deep Sea Mining Report</title></head>
<body>
<div class="promo"><ul>
<li><a href="/newsletter">Subscribe to the newsletter</a></li>
<li><a href="/app">Download the mobile app</a></li>
<li><a href="/social">Follow us on social media</a></li>
<li><a href="/shop">Visit the merchandise shop</a></li>
</ul></div>
<article>
<h1>Deep Sea Mining Report</h1>
<p>Surveyors mapped vast fields of polymetallic nodules across the abyssal
plain, estimating reserves that dwarf every terrestrial deposit currently
under license anywhere in the world.</p>
<p>Environmental groups countered that sediment plumes from collector
vehicles would smother filter feeders for kilometers around each mining
track, calling for a decade-long moratorium before extraction begins.</p>
<p>Regulators now face a narrow window to draft rules that both camps can
live with, and the report closes by urging binding monitoring requirements
on every exploration contract.</p>
</article>
</body>
</html>`

func TestExtractMainContentIsolatesArticle(t *testing.T) {
	t.Parallel()

	title, text, err := Extract(articlePage, "https://news.example.com/deep-sea", Config{MainContent: true})
	require.NoError(t, err)
	require.Contains(t, title, "Deep Sea Mining")
	require.Contains(t, text, "polymetallic nodules")
	require.Contains(t, text, "sediment plumes")
	require.NotContains(t, text, "Subscribe to the newsletter")
	require.NotContains(t, text, "merchandise shop")
}

func TestExtractMainContentFallsBackOnBadBaseURL(t *testing.T) {
	t.Parallel()

	title, text, err := Extract(samplePage, "://not-a-url", Config{MainContent: true})
	require.NoError(t, err)
	require.Equal(t, "City Budget 2026", title)
	require.Contains(t, text, "The council approved")
}

func TestExtractEmptyBody(t *testing.T) {
	t.Parallel()

	_, text, err := Extract("<html><body><script>x()</script></body></html>", "https://example.com", Config{})
	require.NoError(t, err)
	require.Empty(t, strings.TrimSpace(text))
}

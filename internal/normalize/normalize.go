// Package normalize turns fetched HTML into clean plain text suitable for
// chunking: boilerplate removal, reading-order extraction of headings and
// paragraphs, and whitespace normalization. The output is deterministic for
// a given input and configuration.
package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// DefaultDropSelectors lists the boilerplate blocks removed when the caller
// does not supply its own list.
var DefaultDropSelectors = []string{
	"nav", "footer", "header", "script", "style", "noscript",
	".cookie-banner", ".cookies", ".banner",
}

// maxTitleBytes bounds persisted titles.
const maxTitleBytes = 500

var (
	headingTags  = map[string]struct{}{"h1": {}, "h2": {}, "h3": {}}
	spaceRun     = regexp.MustCompile(`[ \t\x{00A0}]+`)
	blankLineRun = regexp.MustCompile(`\n{3,}`)
	displayNone  = regexp.MustCompile(`display\s*:\s*none`)
)

// Config controls extraction behavior.
type Config struct {
	// DropSelectors overrides DefaultDropSelectors when non-nil.
	DropSelectors []string
	// MinParagraphLen drops <p> text shorter than this many bytes. Zero
	// keeps everything.
	MinParagraphLen int
	// MainContent runs a readability pass first and extracts from the
	// isolated article body instead of the whole document.
	MainContent bool
}

// Document is the normalized form of one text-bearing fetched page.
type Document struct {
	URL         string
	Title       string
	Text        string
	Fingerprint string
}

// Extract converts HTML to a title plus plain-text body. Malformed markup is
// handled best-effort: goquery parses what it can and extraction proceeds.
func Extract(html, baseURL string, cfg Config) (title, text string, err error) {
	if cfg.MainContent {
		if article, rerr := extractMainContent(html, baseURL); rerr == nil {
			html = article.Content
			title = strings.TrimSpace(article.Title)
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}

	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		title = t
	}
	if len(title) > maxTitleBytes {
		cut := maxTitleBytes
		// Back up so the cut never splits a multi-byte rune.
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}

	drop := cfg.DropSelectors
	if drop == nil {
		drop = DefaultDropSelectors
	}
	for _, sel := range drop {
		doc.Find(sel).Remove()
	}
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		if displayNone.MatchString(strings.ToLower(style)) {
			s.Remove()
		}
	})

	pieces := make([]string, 0, 32)
	if title != "" {
		pieces = append(pieces, title)
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	root.Find("h1, h2, h3, p, li").Each(func(_ int, s *goquery.Selection) {
		txt := collapseInline(s.Text())
		if txt == "" {
			return
		}
		tag := goquery.NodeName(s)
		if cfg.MinParagraphLen > 0 && tag == "p" && len(txt) < cfg.MinParagraphLen {
			return
		}
		if _, heading := headingTags[tag]; heading {
			// Headings get their own line, separated from body text.
			txt = "\n" + txt + "\n"
		}
		pieces = append(pieces, txt)
	})

	return title, collapseText(strings.Join(pieces, "\n")), nil
}

func extractMainContent(html, baseURL string) (readability.Article, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return readability.Article{}, fmt.Errorf("parse base url: %w", err)
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return readability.Article{}, fmt.Errorf("readability: %w", err)
	}
	return article, nil
}

// collapseInline flattens intra-element whitespace to single spaces.
func collapseInline(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(strings.ReplaceAll(s, "\n", " "), " "))
}

// collapseText normalizes the assembled body: space runs become one space,
// runs of blank lines are capped at one.
func collapseText(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = blankLineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

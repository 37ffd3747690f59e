// Package fetch holds helpers shared by the fetch strategies: transport
// construction and HTML link/canonical extraction against a base URL.
package fetch

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/civicrag/webharvest/internal/crawl"
)

// NewTransport returns the pooled HTTP transport used by the plain-HTTP
// fetchers.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

// PageInfo is what link-discovering fetchers read out of a parsed document.
type PageInfo struct {
	// CanonicalURL is the page's own <link rel="canonical"> target resolved
	// against base, or the canonicalized base itself.
	CanonicalURL string
	// Links are the page's anchor targets: absolute, canonicalized,
	// order-preserving and de-duplicated.
	Links []string
}

// ParsePage extracts the canonical URL and outbound links from HTML. base
// must be the final post-redirect URL so relative anchors resolve correctly.
func ParsePage(html []byte, base string, forceHTTPS bool) (PageInfo, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return PageInfo{}, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return PageInfo{}, fmt.Errorf("parse html: %w", err)
	}

	info := PageInfo{CanonicalURL: crawl.Canonicalize(base, forceHTTPS)}
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if resolved := resolve(baseURL, href); resolved != "" {
			info.CanonicalURL = crawl.Canonicalize(resolved, forceHTTPS)
		}
	}

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := resolve(baseURL, href)
		if resolved == "" {
			return
		}
		link := crawl.Canonicalize(resolved, forceHTTPS)
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		info.Links = append(info.Links, link)
	})
	return info, nil
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// IsHTMLContentType reports whether a Content-Type header value denotes an
// HTML document.
func IsHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

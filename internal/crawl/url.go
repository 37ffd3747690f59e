package crawl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Canonicalize produces the stable string form of a URL used for visited-set
// equality. It lowercases the scheme and host, strips the fragment, drops
// default ports, collapses duplicate path separators and preserves the query
// string. When forceHTTPS is set, http URLs are upgraded.
//
// Canonicalize is pure and idempotent. It never fails: unparseable input is
// returned unchanged.
func Canonicalize(rawURL string, forceHTTPS bool) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if forceHTTPS && u.Scheme == "http" {
		u.Scheme = "https"
	}

	switch u.Scheme {
	case "http":
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case "https":
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	if strings.Contains(u.Path, "//") {
		u.Path = collapseSlashes(u.Path)
		u.RawPath = ""
	}

	return u.String()
}

func collapseSlashes(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	var prevSlash bool
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(p[i])
	}
	return b.String()
}

// Host extracts the lowercase hostname of a URL, or "" when unparseable.
func Host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// SameOrSubdomain reports whether host equals one of the domains or is a
// subdomain of one.
func SameOrSubdomain(host string, domains []string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Filters applies the domain and include/exclude URL gates shared by the
// frontier and the sitemap resolver.
type Filters struct {
	domains []string
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

// NewFilters compiles include/exclude patterns. Patterns containing '*' and
// not already anchored as regexes are treated as globs: every regex
// metacharacter is escaped and '*' becomes '.*'.
func NewFilters(domains, include, exclude []string) (*Filters, error) {
	inc, err := compilePatterns(include)
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	exc, err := compilePatterns(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	lowered := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			lowered = append(lowered, d)
		}
	}
	return &Filters{domains: lowered, include: inc, exclude: exc}, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.Contains(p, "*") && !strings.HasPrefix(p, ".*") {
			p = strings.ReplaceAll(regexp.QuoteMeta(p), `\*`, ".*")
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Allow reports whether a URL passes the scheme, domain and pattern gates.
// Include/exclude patterns are matched against path plus query, the same
// string for both strategies and the sitemap resolver.
func (f *Filters) Allow(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if len(f.domains) > 0 && !SameOrSubdomain(u.Hostname(), f.domains) {
		return false
	}

	pathq := u.Path
	if u.RawQuery != "" {
		pathq += "?" + u.RawQuery
	}

	if len(f.include) > 0 {
		matched := false
		for _, re := range f.include {
			if re.MatchString(pathq) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	for _, re := range f.exclude {
		if re.MatchString(pathq) {
			return false
		}
	}
	return true
}

// Package sitemap expands seed hosts into page URLs by walking their sitemap
// trees. Sitemap indexes are followed recursively; gzip-compressed sitemaps
// are decompressed transparently.
package sitemap

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/civicrag/webharvest/internal/crawl"
	"github.com/civicrag/webharvest/internal/fetch"
)

const maxSitemapBytes = 50 << 20

// Well-known sitemap locations probed when robots.txt declares none.
var fallbackPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap.xml.gz",
	"/sitemap_index.xml.gz",
}

// Config controls sitemap discovery.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	ForceHTTPS bool
	// Filters gate the candidate page URLs; nil means accept everything.
	Filters *crawl.Filters
	// Client overrides the HTTP client used for sitemap fetches.
	Client *http.Client
}

// Resolver implements crawl.SeedResolver against live sitemaps.
type Resolver struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Resolver. A nil logger is replaced with a no-op one.
func New(cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: fetch.NewTransport(),
			Timeout:   cfg.Timeout,
		}
	}
	return &Resolver{cfg: cfg, client: client, logger: logger}
}

// Resolve walks each seed's sitemap tree breadth-first and returns up to
// maxPages candidate page URLs, canonicalized and deduplicated in discovery
// order. A seed whose sitemaps are all unreachable contributes nothing; the
// crawl only fails when no seed yields any page at all.
func (r *Resolver) Resolve(ctx context.Context, seeds []string, maxPages int) ([]string, error) {
	visited := make(map[string]struct{})
	seen := make(map[string]struct{})
	var pages []string

	for _, seed := range seeds {
		if maxPages > 0 && len(pages) >= maxPages {
			break
		}
		roots, err := r.discover(ctx, seed)
		if err != nil {
			r.logger.Warn("sitemap discovery failed", zap.String("seed", seed), zap.Error(err))
			continue
		}

		queue := roots
		for len(queue) > 0 {
			if maxPages > 0 && len(pages) >= maxPages {
				break
			}
			if err := ctx.Err(); err != nil {
				return pages, fmt.Errorf("sitemap resolve: %w", err)
			}

			smURL := queue[0]
			queue = queue[1:]
			if _, ok := visited[smURL]; ok {
				continue
			}
			visited[smURL] = struct{}{}

			locs, err := r.fetchLocs(ctx, smURL)
			if err != nil {
				r.logger.Warn("sitemap fetch failed", zap.String("sitemap", smURL), zap.Error(err))
				continue
			}

			for _, loc := range locs {
				if isChildSitemap(loc) {
					queue = append(queue, loc)
					continue
				}
				page := crawl.Canonicalize(loc, r.cfg.ForceHTTPS)
				if r.cfg.Filters != nil && !r.cfg.Filters.Allow(page) {
					continue
				}
				if _, dup := seen[page]; dup {
					continue
				}
				seen[page] = struct{}{}
				pages = append(pages, page)
				if maxPages > 0 && len(pages) >= maxPages {
					break
				}
			}
		}
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("sitemap resolve: no pages discovered from %d seed(s)", len(seeds))
	}
	return pages, nil
}

// discover returns the sitemap roots for one seed: robots.txt Sitemap lines
// first, well-known paths as fallback.
func (r *Resolver) discover(ctx context.Context, seed string) ([]string, error) {
	u, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("seed %q has no scheme or host", seed)
	}
	scheme := u.Scheme
	if r.cfg.ForceHTTPS {
		scheme = "https"
	}
	base := scheme + "://" + u.Host

	if roots := r.robotsSitemaps(ctx, base); len(roots) > 0 {
		return roots, nil
	}

	roots := make([]string, 0, len(fallbackPaths))
	for _, p := range fallbackPaths {
		roots = append(roots, base+p)
	}
	return roots, nil
}

// robotsSitemaps reads Sitemap: lines from the host's robots.txt.
func (r *Resolver) robotsSitemaps(ctx context.Context, base string) []string {
	body, err := r.get(ctx, base+"/robots.txt")
	if err != nil {
		r.logger.Debug("robots.txt unavailable for sitemap discovery",
			zap.String("base", base), zap.Error(err))
		return nil
	}

	var roots []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) < len("sitemap:") || !strings.EqualFold(line[:len("sitemap:")], "sitemap:") {
			continue
		}
		if loc := strings.TrimSpace(line[len("sitemap:"):]); loc != "" {
			roots = append(roots, loc)
		}
	}
	return roots
}

// fetchLocs downloads one sitemap document and returns its <loc> values.
func (r *Resolver) fetchLocs(ctx context.Context, smURL string) ([]string, error) {
	body, err := r.get(ctx, smURL)
	if err != nil {
		return nil, err
	}
	if isGzip(smURL, body) {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", smURL, err)
		}
		defer func() {
			_ = zr.Close()
		}()
		if body, err = io.ReadAll(io.LimitReader(zr, maxSitemapBytes)); err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", smURL, err)
		}
	}

	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", smURL, err)
	}

	nodes := xmlquery.Find(doc, "//loc")
	locs := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}

func (r *Resolver) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if r.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", r.cfg.UserAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSitemapBytes))
}

// isChildSitemap distinguishes nested sitemap references from page URLs.
// Index files and urlset files share the same <loc> element, so the
// classification is by URL shape.
func isChildSitemap(loc string) bool {
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if strings.HasSuffix(path, ".xml") || strings.HasSuffix(path, ".xml.gz") {
		return true
	}
	return strings.Contains(path, "/sitemap")
}

func isGzip(smURL string, body []byte) bool {
	if strings.HasSuffix(strings.ToLower(smURL), ".gz") {
		return true
	}
	return len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b
}

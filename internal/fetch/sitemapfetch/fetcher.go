// Package sitemapfetch implements the fetch side of the sitemap strategy: a
// plain GET with no link discovery, since the frontier is produced entirely
// by the resolver. PDF payloads are kept raw for archival instead of being
// rejected.
package sitemapfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/civicrag/webharvest/internal/crawl"
	"github.com/civicrag/webharvest/internal/fetch"
	"github.com/civicrag/webharvest/internal/hash/sha256"
)

const maxBodyBytes = 32 << 20

var pdfMagic = []byte("%PDF-")

// Config controls the sitemap-page fetcher.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MinHTMLBytes int
	ForceHTTPS   bool
}

// Fetcher implements crawl.Fetcher for URLs that came out of a sitemap.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Fetcher with a pooled transport shared across requests.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Transport: fetch.NewTransport(),
			Timeout:   cfg.Timeout,
		},
		logger: logger,
	}
}

// Fetch downloads one URL. HTML pages are classified KindHTML; anything
// starting with the PDF magic bytes is kept raw as KindPDF so it can be
// archived; everything else is KindUnsupported.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawl.FetchedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return crawl.FetchedPage{}, fmt.Errorf("sitemap fetch %s: %w", rawURL, err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return crawl.FetchedPage{}, fmt.Errorf("sitemap fetch %s: %w", rawURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return crawl.FetchedPage{}, fmt.Errorf("sitemap fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return crawl.FetchedPage{}, fmt.Errorf("sitemap fetch %s: read body: %w", rawURL, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	page := crawl.FetchedPage{
		URL:         crawl.Canonicalize(finalURL, f.cfg.ForceHTTPS),
		Body:        body,
		StatusCode:  resp.StatusCode,
		Headers:     resp.Header.Clone(),
		Fingerprint: sha256.Sum(body),
	}

	switch {
	case bytes.HasPrefix(body, pdfMagic):
		page.Kind = crawl.KindPDF
	case fetch.IsHTMLContentType(resp.Header.Get("Content-Type")):
		if len(body) < f.cfg.MinHTMLBytes {
			return crawl.FetchedPage{}, fmt.Errorf("sitemap fetch %s: body too small (%d bytes)", rawURL, len(body))
		}
		page.Kind = crawl.KindHTML
	default:
		f.logger.Debug("unsupported content type",
			zap.String("url", rawURL),
			zap.String("content_type", resp.Header.Get("Content-Type")),
		)
		page.Kind = crawl.KindUnsupported
	}
	return page, nil
}

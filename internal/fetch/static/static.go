// Package static implements the plain-HTTP fetch strategy using gocolly.
package static

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/civicrag/webharvest/internal/crawl"
	"github.com/civicrag/webharvest/internal/fetch"
	"github.com/civicrag/webharvest/internal/hash/sha256"
)

// ErrUnsupportedContent marks responses whose Content-Type is not HTML.
// The engine records these as non-document skips.
var ErrUnsupportedContent = errors.New("static: unsupported content type")

// ErrBodyTooSmall marks responses below the minimum HTML size; tiny bodies
// are almost always error pages or redirect stubs.
var ErrBodyTooSmall = errors.New("static: response body too small")

const backoffFactor = 0.8

var backoffJitter = [2]time.Duration{100 * time.Millisecond, 400 * time.Millisecond}

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	MinHTMLBytes int
	ForceHTTPS   bool
}

// Fetcher implements crawl.Fetcher with one HTTP GET per URL. Robots and
// pacing are the engine's concern, so the collector's own robots handling
// is disabled.
type Fetcher struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a Fetcher around a shared base collector; each Fetch clones it
// so per-request hooks never leak between URLs.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.WithTransport(fetch.NewTransport())

	return &Fetcher{cfg: cfg, base: c, logger: logger}
}

type capture struct {
	body     []byte
	status   int
	headers  http.Header
	finalURL string
	err      error
}

// Fetch performs the GET with retry/backoff for 429 and 5xx responses, then
// extracts canonical URL and outbound anchors relative to the final
// post-redirect URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawl.FetchedPage, error) {
	var res capture
	for attempt := 1; ; attempt++ {
		res = f.visit(ctx, rawURL)
		if ctx.Err() != nil {
			return crawl.FetchedPage{}, fmt.Errorf("static fetch canceled: %w", ctx.Err())
		}
		if !retryable(res) || attempt >= f.cfg.MaxRetries {
			break
		}
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("status", res.status),
			zap.Int("attempt", attempt),
		)
		if err := sleepBackoff(ctx, attempt); err != nil {
			return crawl.FetchedPage{}, err
		}
	}

	if res.err != nil {
		return crawl.FetchedPage{}, fmt.Errorf("static fetch %s: %w", rawURL, res.err)
	}
	if res.status >= 400 {
		return crawl.FetchedPage{}, fmt.Errorf("static fetch %s: status %d", rawURL, res.status)
	}
	if ct := res.headers.Get("Content-Type"); !fetch.IsHTMLContentType(ct) {
		return crawl.FetchedPage{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedContent, ct, rawURL)
	}
	if len(res.body) < f.cfg.MinHTMLBytes {
		return crawl.FetchedPage{}, fmt.Errorf("%w: %d bytes (%s)", ErrBodyTooSmall, len(res.body), rawURL)
	}

	info, err := fetch.ParsePage(res.body, res.finalURL, f.cfg.ForceHTTPS)
	if err != nil {
		// Malformed markup still yields a page; links are best-effort.
		f.logger.Warn("link extraction failed", zap.String("url", rawURL), zap.Error(err))
		info.CanonicalURL = crawl.Canonicalize(res.finalURL, f.cfg.ForceHTTPS)
	}

	return crawl.FetchedPage{
		URL:         info.CanonicalURL,
		Body:        res.body,
		StatusCode:  res.status,
		Headers:     res.headers,
		Fingerprint: sha256.Sum(res.body),
		Links:       info.Links,
		Kind:        crawl.KindHTML,
	}, nil
}

// visit runs one collector pass and hands the capture back over a channel,
// so an abandoned pass never shares state with the caller.
func (f *Fetcher) visit(ctx context.Context, rawURL string) capture {
	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	done := make(chan capture, 1)
	go func() {
		var res capture
		collector.OnResponse(func(r *colly.Response) {
			res = capture{
				body:     append([]byte(nil), r.Body...),
				status:   r.StatusCode,
				headers:  r.Headers.Clone(),
				finalURL: r.Request.URL.String(),
			}
		})
		collector.OnError(func(r *colly.Response, err error) {
			res.err = err
			if r != nil {
				res.status = r.StatusCode
			}
		})
		if err := collector.Visit(rawURL); err != nil && res.err == nil {
			res.err = err
		}
		done <- res
	}()

	select {
	case <-ctx.Done():
		return capture{err: ctx.Err()}
	case res := <-done:
		return res
	}
}

func retryable(c capture) bool {
	if c.err != nil && c.status == 0 {
		return true
	}
	return c.status == http.StatusTooManyRequests || (c.status >= 500 && c.status < 600)
}

// sleepBackoff waits an exponentially shrinking base plus jitter, matching
// the pacing used for politeness-sensitive retries.
func sleepBackoff(ctx context.Context, attempt int) error {
	base := time.Duration(math.Pow(backoffFactor, float64(attempt-1)) * float64(time.Second))
	jitterRange := backoffJitter[1] - backoffJitter[0]
	jitter := backoffJitter[0] + time.Duration(rand.Int63n(int64(jitterRange)))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("static fetch backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

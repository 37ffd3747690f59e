// Package rendered implements the headless-browser fetch strategy with
// chromedp. One Fetcher owns one browser allocator for the duration of a
// crawl; Close must run on every exit path.
package rendered

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/civicrag/webharvest/internal/crawl"
	"github.com/civicrag/webharvest/internal/fetch"
	"github.com/civicrag/webharvest/internal/hash/sha256"
)

// Config controls the rendered fetcher.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MinHTMLBytes int
	ForceHTTPS   bool
	Options      crawl.RenderOptions
}

// Fetcher implements crawl.Fetcher by navigating a headless browser and
// reading the rendered DOM, so anchors injected by JavaScript are seen.
type Fetcher struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New starts the browser allocator. Callers own the session and must call
// Close when the crawl ends, including on error paths.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Options.RenderWait <= 0 {
		cfg.Options.RenderWait = 3 * time.Second
	}
	if cfg.Options.WindowWidth <= 0 || cfg.Options.WindowHeight <= 0 {
		cfg.Options.WindowWidth, cfg.Options.WindowHeight = 1366, 900
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(cfg.Options.WindowWidth, cfg.Options.WindowHeight),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close releases the browser session.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates, waits for the page to render, optionally scrolls, then
// reads the DOM as HTML.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawl.FetchedPage, error) {
	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.Timeout)
	defer cancel()

	// Bridge the caller's cancellation into the chromedp task.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, finalURL, err := f.run(taskCtx, rawURL)
	if err != nil {
		return crawl.FetchedPage{}, fmt.Errorf("rendered fetch %s: %w", rawURL, err)
	}
	if finalURL == "" {
		finalURL = rawURL
	}
	if len(html) < f.cfg.MinHTMLBytes {
		return crawl.FetchedPage{}, fmt.Errorf("rendered fetch %s: rendered body too small (%d bytes)", rawURL, len(html))
	}

	status, headers := meta.snapshot()
	if status == 0 {
		// The document response event can be missed; treat as success
		// since navigation completed.
		status = http.StatusOK
	}

	body := []byte(html)
	info, err := fetch.ParsePage(body, finalURL, f.cfg.ForceHTTPS)
	if err != nil {
		f.logger.Warn("rendered link extraction failed", zap.String("url", rawURL), zap.Error(err))
		info.CanonicalURL = crawl.Canonicalize(finalURL, f.cfg.ForceHTTPS)
	}

	return crawl.FetchedPage{
		URL:         info.CanonicalURL,
		Body:        body,
		StatusCode:  status,
		Headers:     headers,
		Fingerprint: sha256.Sum(body),
		Links:       info.Links,
		Kind:        crawl.KindHTML,
	}, nil
}

func (f *Fetcher) run(ctx context.Context, rawURL string) (html, finalURL string, err error) {
	actions := []chromedp.Action{
		f.setupAction(),
		chromedp.Navigate(rawURL),
	}
	if sel := f.cfg.Options.WaitSelector; sel != "" {
		actions = append(actions, chromedp.WaitReady(sel, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.Sleep(f.cfg.Options.RenderWait))
	}
	for i := 0; i < f.cfg.Options.ScrollSteps; i++ {
		actions = append(actions,
			chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight);", nil),
			chromedp.Sleep(f.cfg.Options.ScrollWait),
		)
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// responseMeta captures the main document's status and headers from CDP
// network events.
type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range resp.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, item := range v {
				headers.Add(key, fmt.Sprint(item))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.headers = headers
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	headers := make(http.Header, len(m.headers))
	for k, vs := range m.headers {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}
	return m.status, headers
}

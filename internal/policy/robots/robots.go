// Package robots fetches, caches and interprets robots.txt directives per
// host. A crawl session owns one Engine; nothing here is process-global, so
// crawls stay independent and testable in isolation.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// Mode selects how directives are applied.
type Mode string

const (
	// ModeStrict always consults robots.txt.
	ModeStrict Mode = "strict"
	// ModeIgnore allows everything without any network fetch.
	ModeIgnore Mode = "ignore"
	// ModeAllowList allows listed domains unconditionally, strict elsewhere.
	ModeAllowList Mode = "allow-list"
)

// DefaultTTL is how long a cached robots.txt stays fresh.
const DefaultTTL = time.Hour

const maxRobotsBody = 1 << 20

// Config builds an Engine.
type Config struct {
	Mode             Mode
	AllowListDomains []string
	UserAgent        string
	// TTL bounds cache-entry freshness; zero means DefaultTTL.
	TTL time.Duration
	// PermissiveOnError controls the availability-favoring default: an
	// unreachable or non-200 robots.txt is treated as "no restrictions".
	// The choice is deliberate and surfaced here rather than implied.
	PermissiveOnError bool
	ForceHTTPS        bool
	// Client overrides the HTTP client used for robots.txt fetches.
	Client *http.Client
}

type entry struct {
	fetchedAt time.Time
	data      *robotstxt.RobotsData
	// reachable is false when robots.txt could not be retrieved and the
	// permissive default (or its inverse) applies.
	reachable bool
}

// Engine answers Allowed/CrawlDelay per URL with a lazy, TTL-bounded
// per-host cache.
type Engine struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]*entry
}

// New builds an Engine. A nil logger is replaced with a no-op one.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Engine{
		cfg:    cfg,
		client: client,
		logger: logger,
		cache:  make(map[string]*entry),
	}
}

// Allowed reports whether the configured user agent may fetch rawURL under
// the engine's mode.
func (e *Engine) Allowed(ctx context.Context, rawURL string) bool {
	if e.cfg.Mode == ModeIgnore {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if e.cfg.Mode == ModeAllowList && sameOrSubdomain(u.Hostname(), e.cfg.AllowListDomains) {
		return true
	}

	ent := e.load(ctx, u)
	if !ent.reachable {
		return e.cfg.PermissiveOnError
	}
	group := ent.data.FindGroup(e.cfg.UserAgent)
	if group == nil {
		return true
	}
	pathq := u.Path
	if pathq == "" {
		pathq = "/"
	}
	if u.RawQuery != "" {
		pathq += "?" + u.RawQuery
	}
	return group.Test(pathq)
}

// CrawlDelay returns the crawl-delay robots.txt declares for the configured
// user agent, when one applies. Domains exempted by mode report none.
func (e *Engine) CrawlDelay(ctx context.Context, rawURL string) (time.Duration, bool) {
	if e.cfg.Mode == ModeIgnore {
		return 0, false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, false
	}
	if e.cfg.Mode == ModeAllowList && sameOrSubdomain(u.Hostname(), e.cfg.AllowListDomains) {
		return 0, false
	}

	ent := e.load(ctx, u)
	if !ent.reachable {
		return 0, false
	}
	group := ent.data.FindGroup(e.cfg.UserAgent)
	if group == nil || group.CrawlDelay <= 0 {
		return 0, false
	}
	return group.CrawlDelay, true
}

// load returns the cached entry for the URL's host, refreshing it lazily
// once it is older than the TTL.
func (e *Engine) load(ctx context.Context, u *url.URL) *entry {
	key := strings.ToLower(u.Host)

	e.mu.Lock()
	ent, ok := e.cache[key]
	if ok && time.Since(ent.fetchedAt) < e.cfg.TTL {
		e.mu.Unlock()
		return ent
	}
	e.mu.Unlock()

	ent = e.fetch(ctx, u)

	e.mu.Lock()
	e.cache[key] = ent
	e.mu.Unlock()
	return ent
}

func (e *Engine) fetch(ctx context.Context, u *url.URL) *entry {
	scheme := u.Scheme
	if e.cfg.ForceHTTPS {
		scheme = "https"
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, u.Host)

	ent := &entry{fetchedAt: time.Now()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		e.logUnavailable(robotsURL, err, 0)
		return ent
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.logUnavailable(robotsURL, err, 0)
		return ent
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		e.logUnavailable(robotsURL, nil, resp.StatusCode)
		return ent
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		e.logUnavailable(robotsURL, err, resp.StatusCode)
		return ent
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		e.logUnavailable(robotsURL, err, resp.StatusCode)
		return ent
	}
	ent.data = data
	ent.reachable = true
	return ent
}

func (e *Engine) logUnavailable(robotsURL string, err error, status int) {
	verdict := "allowing all"
	if !e.cfg.PermissiveOnError {
		verdict = "denying all"
	}
	e.logger.Info("robots.txt unavailable; "+verdict,
		zap.String("robots_url", robotsURL),
		zap.Int("status", status),
		zap.Error(err),
	)
}

func sameOrSubdomain(host string, domains []string) bool {
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

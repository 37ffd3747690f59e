// Package ratelimit enforces minimum spacing between requests to the same
// host. Hosts are fully independent: a slow host never delays another.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/civicrag/webharvest/internal/metrics"
)

// Limiter paces fetches per host. The base interval comes from the
// configured per-host rate; a robots.txt crawl-delay can raise (never
// lower) an individual host's floor.
type Limiter struct {
	mu       sync.Mutex
	perHost  map[string]*rate.Limiter
	interval map[string]time.Duration
	base     time.Duration
}

// New builds a Limiter from a requests-per-second rate. Non-positive rates
// fall back to one request per second.
func New(perHostRate float64) *Limiter {
	if perHostRate <= 0 {
		perHostRate = 1
	}
	return &Limiter{
		perHost:  make(map[string]*rate.Limiter),
		interval: make(map[string]time.Duration),
		base:     time.Duration(float64(time.Second) / perHostRate),
	}
}

// Wait blocks until the URL's host is clear to fetch, honoring the context.
// minInterval raises the host's spacing when robots.txt declares a stricter
// crawl-delay than the configured rate; the effective interval is the max
// of both.
func (l *Limiter) Wait(ctx context.Context, rawURL string, minInterval time.Duration) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	want := l.base
	if minInterval > want {
		want = minInterval
	}

	l.mu.Lock()
	lim, ok := l.perHost[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(want), 1)
		l.perHost[host] = lim
		l.interval[host] = want
	} else if want > l.interval[host] {
		lim.SetLimit(rate.Every(want))
		l.interval[host] = want
	}
	l.mu.Unlock()

	start := time.Now()
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

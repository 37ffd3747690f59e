// Package crawl defines the crawl job configuration, the fetch contract
// shared by all strategies, and the engine that drives a crawl from seeds to
// persisted documents and chunks.
package crawl

import (
	"errors"
	"fmt"
	"time"
)

// Strategy selects how pages are acquired.
type Strategy string

const (
	// StrategyStatic fetches pages with plain HTTP GETs.
	StrategyStatic Strategy = "static"
	// StrategyRendered fetches pages through a headless browser.
	StrategyRendered Strategy = "rendered"
	// StrategySitemap fetches pages discovered by the sitemap resolver.
	StrategySitemap Strategy = "sitemap"
)

// RobotsMode selects how robots.txt directives are applied.
type RobotsMode string

const (
	// RobotsStrict always consults robots.txt.
	RobotsStrict RobotsMode = "strict"
	// RobotsIgnore never consults robots.txt.
	RobotsIgnore RobotsMode = "ignore"
	// RobotsAllowList ignores robots.txt for listed domains, strict elsewhere.
	RobotsAllowList RobotsMode = "allow-list"
)

// RenderOptions tunes the rendered strategy.
type RenderOptions struct {
	WaitSelector string
	RenderWait   time.Duration
	ScrollSteps  int
	ScrollWait   time.Duration
	WindowWidth  int
	WindowHeight int
}

// Job holds the immutable configuration for a single crawl invocation.
// It is created once by the caller and read-only afterwards.
type Job struct {
	Seeds    []string
	Strategy Strategy

	MaxDepth    int
	MaxPages    int
	Concurrency int

	AllowedDomains  []string
	IncludePatterns []string
	ExcludePatterns []string

	RobotsMode              RobotsMode
	RobotsAllowListDomains  []string
	RobotsPermissiveOnError bool

	RatePerHost  float64
	Timeout      time.Duration
	UserAgent    string
	ForceHTTPS   bool
	MinHTMLBytes int
	MaxRetries   int

	Render RenderOptions

	// MainContent isolates the article body with a readability pass before
	// normalization.
	MainContent bool

	ChunkSize        int
	ChunkOverlap     int
	NearDupThreshold float64
}

// Sentinel configuration errors. These abort a crawl before any fetch.
var (
	ErrNoSeeds         = errors.New("crawl: no seed URLs configured")
	ErrInvalidStrategy = errors.New("crawl: invalid strategy")
	ErrInvalidRobots   = errors.New("crawl: invalid robots mode")
)

// Defaults applied by WithDefaults.
const (
	DefaultMaxDepth     = 1
	DefaultMaxPages     = 200
	DefaultConcurrency  = 4
	DefaultRatePerHost  = 1.0
	DefaultTimeout      = 15 * time.Second
	DefaultUserAgent    = "webharvest/1.0 (+https://github.com/civicrag/webharvest)"
	DefaultMinHTMLBytes = 50
	DefaultMaxRetries   = 3
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	DefaultNearDup      = 0.92
)

// Validate reports configuration errors. They are fatal: a job failing
// validation performs no network activity at all.
func (j Job) Validate() error {
	if len(j.Seeds) == 0 {
		return ErrNoSeeds
	}
	switch j.Strategy {
	case StrategyStatic, StrategyRendered, StrategySitemap:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, j.Strategy)
	}
	switch j.RobotsMode {
	case RobotsStrict, RobotsIgnore, RobotsAllowList, "":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRobots, j.RobotsMode)
	}
	if j.MaxPages < 0 {
		return fmt.Errorf("crawl: max pages must be >= 0, got %d", j.MaxPages)
	}
	if j.MaxDepth < 0 {
		return fmt.Errorf("crawl: max depth must be >= 0, got %d", j.MaxDepth)
	}
	return nil
}

// WithDefaults returns a copy of the job with unset knobs replaced by
// defaults. MaxPages is always a hard cap; zero means "use the default",
// never "unbounded".
func (j Job) WithDefaults() Job {
	if j.Strategy == "" {
		j.Strategy = StrategyStatic
	}
	if j.RobotsMode == "" {
		j.RobotsMode = RobotsStrict
	}
	if j.MaxPages == 0 {
		j.MaxPages = DefaultMaxPages
	}
	if j.Concurrency <= 0 {
		j.Concurrency = DefaultConcurrency
	}
	if j.RatePerHost <= 0 {
		j.RatePerHost = DefaultRatePerHost
	}
	if j.Timeout <= 0 {
		j.Timeout = DefaultTimeout
	}
	if j.UserAgent == "" {
		j.UserAgent = DefaultUserAgent
	}
	if j.MinHTMLBytes <= 0 {
		j.MinHTMLBytes = DefaultMinHTMLBytes
	}
	if j.MaxRetries <= 0 {
		j.MaxRetries = DefaultMaxRetries
	}
	if j.ChunkSize <= 0 {
		j.ChunkSize = DefaultChunkSize
	}
	if j.ChunkOverlap < 0 {
		j.ChunkOverlap = DefaultChunkOverlap
	}
	if j.NearDupThreshold <= 0 || j.NearDupThreshold > 1 {
		j.NearDupThreshold = DefaultNearDup
	}
	return j
}

// DiscoversLinks reports whether the job's strategy feeds outbound links back
// into the frontier. The sitemap strategy's frontier is produced entirely by
// the resolver.
func (j Job) DiscoversLinks() bool {
	return j.Strategy != StrategySitemap
}

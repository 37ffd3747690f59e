package crawl

import (
	"context"
	"net/http"
	"time"

	"github.com/civicrag/webharvest/internal/normalize"
	"github.com/civicrag/webharvest/internal/textsplit"
)

// PageKind classifies a fetched payload.
type PageKind string

const (
	KindHTML        PageKind = "html"
	KindPDF         PageKind = "pdf"
	KindUnsupported PageKind = "unsupported"
)

// FetchedPage is the shared output contract of every fetch strategy. It is
// produced once and never mutated afterwards.
type FetchedPage struct {
	// URL is the final canonical URL after redirects, preferring a
	// <link rel="canonical"> target when the page declares one.
	URL        string
	Body       []byte
	StatusCode int
	Headers    http.Header
	// Fingerprint is the SHA-256 hex digest of the raw payload.
	Fingerprint string
	// Links holds canonicalized outbound anchors for link-discovering
	// strategies; empty for the sitemap-driven fetcher.
	Links []string
	Kind  PageKind
}

// FrontierEntry is a discovered-but-not-yet-fetched URL. It exists only for
// the duration of a crawl and is consumed by exactly one fetch attempt.
type FrontierEntry struct {
	URL            string
	Depth          int
	DiscoveredFrom string
}

// Summary aggregates the per-crawl counters reported when a crawl finishes.
// Every attempted URL lands in exactly one bucket; silent loss is not
// allowed.
type Summary struct {
	PagesAttempted int   `json:"pages_attempted"`
	PagesFetched   int   `json:"pages_fetched"`
	BytesFetched   int64 `json:"bytes_fetched"`
	ChunksEmitted  int   `json:"chunks_emitted"`

	Filtered      int `json:"filtered"`
	RobotsBlocked int `json:"robots_blocked"`
	FetchErrors   int `json:"fetch_errors"`
	NonDocument   int `json:"non_document"`
	SinkErrors    int `json:"sink_errors"`

	DedupExactRemoved int `json:"dedup_exact_removed"`
	DedupNearRemoved  int `json:"dedup_near_removed"`
}

// RunRecord describes one crawl invocation for persistence.
type RunRecord struct {
	ID         string
	Strategy   string
	Seeds      []string
	StartedAt  time.Time
	FinishedAt time.Time
	Summary    Summary
}

// Fetcher acquires a single URL. Implementations must treat network errors,
// timeouts and non-2xx statuses as ordinary errors; the engine records them
// and moves on.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (FetchedPage, error)
}

// RobotsPolicy answers fetch-permission and pacing questions per URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
	CrawlDelay(ctx context.Context, rawURL string) (time.Duration, bool)
}

// HostLimiter enforces minimum spacing between requests to one host.
// minInterval raises the host's floor when robots.txt demands a stricter
// crawl-delay than the configured rate.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string, minInterval time.Duration) error
}

// Sink receives normalized documents with their accepted chunks, plus the
// final run record. Owned by the persistence collaborator.
type Sink interface {
	SaveDocument(ctx context.Context, runID string, doc normalize.Document, chunks []textsplit.Chunk) error
	SaveRun(ctx context.Context, run RunRecord) error
}

// ArtifactStore persists raw fetched payloads for audit. Optional.
type ArtifactStore interface {
	Save(ctx context.Context, objectName, contentType string, data []byte) (string, error)
}

// Publisher emits a notification after a document and its chunks have been
// accepted by the sink. Optional.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// SeedResolver expands seeds into a flat list of candidate page URLs. Used by
// the sitemap strategy, whose frontier is exhausted by the resolver.
type SeedResolver interface {
	Resolve(ctx context.Context, seeds []string, maxPages int) ([]string, error)
}

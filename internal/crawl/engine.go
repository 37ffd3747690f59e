package crawl

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicrag/webharvest/internal/dedup"
	"github.com/civicrag/webharvest/internal/metrics"
	"github.com/civicrag/webharvest/internal/normalize"
	"github.com/civicrag/webharvest/internal/textsplit"
)

// Deps are the collaborators an Engine drives. Fetcher, Robots, Limiter and
// Sink are required; Artifacts, Publisher and Resolver are optional (Resolver
// is required for the sitemap strategy).
type Deps struct {
	Fetcher   Fetcher
	Robots    RobotsPolicy
	Limiter   HostLimiter
	Sink      Sink
	Artifacts ArtifactStore
	Publisher Publisher
	Resolver  SeedResolver
	Logger    *zap.Logger
}

// Engine runs one crawl: seeds in, persisted documents and a summary out.
// An Engine is single-use; build a new one per invocation.
type Engine struct {
	job     Job
	deps    Deps
	filters *Filters
	logger  *zap.Logger

	frontier *frontier

	mu       sync.Mutex
	summary  Summary
	reserved int
}

// NewEngine validates the job, applies defaults and compiles URL filters.
func NewEngine(job Job, deps Deps) (*Engine, error) {
	job = job.WithDefaults()
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil || deps.Robots == nil || deps.Limiter == nil || deps.Sink == nil {
		return nil, fmt.Errorf("crawl: fetcher, robots, limiter and sink are required")
	}
	if job.Strategy == StrategySitemap && deps.Resolver == nil {
		return nil, fmt.Errorf("crawl: sitemap strategy requires a seed resolver")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	filters, err := NewFilters(job.AllowedDomains, job.IncludePatterns, job.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}

	return &Engine{
		job:      job,
		deps:     deps,
		filters:  filters,
		logger:   deps.Logger,
		frontier: newFrontier(),
	}, nil
}

// Run executes the crawl to completion or cancellation and always persists a
// run record before returning. The summary is returned even on error so
// partial progress is never silently lost.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	startedAt := time.Now().UTC()
	logger := e.logger.With(
		zap.String("run_id", runID),
		zap.String("strategy", string(e.job.Strategy)),
	)

	seeds, err := e.resolveSeeds(ctx)
	if err != nil {
		metrics.CrawlCompleted("error")
		return Summary{}, err
	}

	for _, seed := range seeds {
		e.frontier.Push(FrontierEntry{URL: seed, Depth: 0})
	}
	logger.Info("crawl starting",
		zap.Int("seeds", len(seeds)),
		zap.Int("max_depth", e.job.MaxDepth),
		zap.Int("max_pages", e.job.MaxPages),
		zap.Int("concurrency", e.job.Concurrency),
	)

	// Cancellation closes the frontier so blocked workers drain out.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.frontier.Close()
		case <-watchDone:
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < e.job.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx, runID, logger)
		}()
	}
	wg.Wait()
	close(watchDone)

	summary := e.snapshot()
	outcome := "ok"
	if ctx.Err() != nil {
		outcome = "canceled"
	}
	metrics.CrawlCompleted(outcome)

	record := RunRecord{
		ID:         runID,
		Strategy:   string(e.job.Strategy),
		Seeds:      seeds,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Summary:    summary,
	}
	// Persisting the record must survive cancellation of the crawl context.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.deps.Sink.SaveRun(saveCtx, record); err != nil {
		logger.Error("saving run record failed", zap.Error(err))
	}

	logger.Info("crawl finished",
		zap.String("outcome", outcome),
		zap.Int("pages_attempted", summary.PagesAttempted),
		zap.Int("pages_fetched", summary.PagesFetched),
		zap.Int64("bytes_fetched", summary.BytesFetched),
		zap.Int("chunks_emitted", summary.ChunksEmitted),
		zap.Int("robots_blocked", summary.RobotsBlocked),
		zap.Int("fetch_errors", summary.FetchErrors),
		zap.Int("dedup_removed", summary.DedupExactRemoved+summary.DedupNearRemoved),
	)

	if ctx.Err() != nil {
		return summary, fmt.Errorf("crawl: %w", ctx.Err())
	}
	return summary, nil
}

// resolveSeeds canonicalizes the configured seeds, expanding them through the
// resolver for the sitemap strategy.
func (e *Engine) resolveSeeds(ctx context.Context) ([]string, error) {
	if e.job.Strategy == StrategySitemap {
		pages, err := e.deps.Resolver.Resolve(ctx, e.job.Seeds, e.job.MaxPages)
		if err != nil {
			return nil, fmt.Errorf("crawl: resolve seeds: %w", err)
		}
		return pages, nil
	}
	seeds := make([]string, 0, len(e.job.Seeds))
	for _, s := range e.job.Seeds {
		seeds = append(seeds, Canonicalize(s, e.job.ForceHTTPS))
	}
	return seeds, nil
}

func (e *Engine) worker(ctx context.Context, runID string, logger *zap.Logger) {
	for {
		entry, ok := e.frontier.Next()
		if !ok {
			return
		}
		e.processEntry(ctx, runID, entry, logger)
		e.frontier.Done()
	}
}

// processEntry takes one frontier entry through the full pipeline: filter,
// robots, pacing, fetch, archive, normalize, split, dedup, persist, publish.
// Every path increments exactly one outcome counter.
func (e *Engine) processEntry(ctx context.Context, runID string, entry FrontierEntry, logger *zap.Logger) {
	e.count(func(s *Summary) { s.PagesAttempted++ })
	host := Host(entry.URL)

	if !e.filters.Allow(entry.URL) {
		e.count(func(s *Summary) { s.Filtered++ })
		return
	}
	if !e.deps.Robots.Allowed(ctx, entry.URL) {
		e.count(func(s *Summary) { s.RobotsBlocked++ })
		metrics.RobotsBlocked(host)
		logger.Debug("blocked by robots.txt", zap.String("url", entry.URL))
		return
	}

	var minInterval time.Duration
	if delay, ok := e.deps.Robots.CrawlDelay(ctx, entry.URL); ok {
		minInterval = delay
	}
	if err := e.deps.Limiter.Wait(ctx, entry.URL, minInterval); err != nil {
		e.count(func(s *Summary) { s.FetchErrors++ })
		return
	}

	// The page cap is enforced by reserving a slot before the fetch, so
	// concurrent workers can never overshoot it together.
	if !e.reserveSlot() {
		e.frontier.Close()
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.job.Timeout)
	page, err := e.deps.Fetcher.Fetch(fetchCtx, entry.URL)
	cancel()
	if err != nil {
		e.releaseSlot()
		e.count(func(s *Summary) { s.FetchErrors++ })
		metrics.FetchError(host)
		logger.Warn("fetch failed",
			zap.String("url", entry.URL),
			zap.Int("depth", entry.Depth),
			zap.Error(err),
		)
		return
	}

	e.count(func(s *Summary) {
		s.PagesFetched++
		s.BytesFetched += int64(len(page.Body))
	})
	metrics.PageFetched(host, strconv.Itoa(page.StatusCode))
	metrics.AddBytes(host, len(page.Body))

	e.archive(ctx, runID, page, logger)

	if e.job.DiscoversLinks() && entry.Depth < e.job.MaxDepth {
		for _, link := range page.Links {
			if e.filters.Allow(link) {
				e.frontier.Push(FrontierEntry{
					URL:            link,
					Depth:          entry.Depth + 1,
					DiscoveredFrom: page.URL,
				})
			}
		}
	}

	if page.Kind != KindHTML {
		e.count(func(s *Summary) { s.NonDocument++ })
		return
	}
	e.ingest(ctx, runID, page, logger)
}

// ingest normalizes, splits and deduplicates one HTML page, then hands the
// surviving chunks to the sink and notifies the publisher.
func (e *Engine) ingest(ctx context.Context, runID string, page FetchedPage, logger *zap.Logger) {
	title, text, err := normalize.Extract(string(page.Body), page.URL, normalize.Config{
		MainContent: e.job.MainContent,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		e.count(func(s *Summary) { s.NonDocument++ })
		logger.Debug("no extractable text", zap.String("url", page.URL), zap.Error(err))
		return
	}
	doc := normalize.Document{
		URL:         page.URL,
		Title:       title,
		Text:        text,
		Fingerprint: page.Fingerprint,
	}

	chunks := textsplit.Split(text, textsplit.Options{
		ChunkSize:         e.job.ChunkSize,
		Overlap:           e.job.ChunkOverlap,
		BoundaryWindow:    textsplit.DefaultOptions().BoundaryWindow,
		RespectParagraphs: true,
	})

	filter := dedup.New(dedup.Config{NearThreshold: e.job.NearDupThreshold})
	kept := chunks[:0]
	var exact, near int
	for _, c := range chunks {
		ok, reason := filter.Accept(c.Text)
		if ok {
			kept = append(kept, c)
			continue
		}
		switch reason {
		case dedup.ExactDuplicate:
			exact++
			metrics.DedupRemoved("exact")
		case dedup.NearDuplicate:
			near++
			metrics.DedupRemoved("near")
		}
	}
	// Positions are re-numbered after dedup so they stay dense per document.
	for i := range kept {
		kept[i].Position = i
	}
	e.count(func(s *Summary) {
		s.DedupExactRemoved += exact
		s.DedupNearRemoved += near
	})

	if len(kept) == 0 {
		e.count(func(s *Summary) { s.NonDocument++ })
		return
	}

	if err := e.deps.Sink.SaveDocument(ctx, runID, doc, kept); err != nil {
		e.count(func(s *Summary) { s.SinkErrors++ })
		logger.Error("saving document failed", zap.String("url", page.URL), zap.Error(err))
		return
	}
	e.count(func(s *Summary) { s.ChunksEmitted += len(kept) })
	metrics.ChunksEmitted(len(kept))

	e.publish(ctx, runID, doc, len(kept), logger)
}

// archive stores the raw payload when an artifact store is configured.
func (e *Engine) archive(ctx context.Context, runID string, page FetchedPage, logger *zap.Logger) {
	if e.deps.Artifacts == nil {
		return
	}
	ext, contentType := "html", "text/html; charset=utf-8"
	if page.Kind == KindPDF {
		ext, contentType = "pdf", "application/pdf"
	}
	objectName := fmt.Sprintf("%s/%s.%s", runID, page.Fingerprint, ext)
	if _, err := e.deps.Artifacts.Save(ctx, objectName, contentType, page.Body); err != nil {
		logger.Warn("archiving raw payload failed",
			zap.String("url", page.URL),
			zap.String("object", objectName),
			zap.Error(err),
		)
	}
}

// pageIngestedEvent is the payload published after a document lands in the
// sink.
type pageIngestedEvent struct {
	RunID       string    `json:"run_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Fingerprint string    `json:"fingerprint"`
	Chunks      int       `json:"chunks"`
	IngestedAt  time.Time `json:"ingested_at"`
}

func (e *Engine) publish(ctx context.Context, runID string, doc normalize.Document, chunks int, logger *zap.Logger) {
	if e.deps.Publisher == nil {
		return
	}
	event := pageIngestedEvent{
		RunID:       runID,
		URL:         doc.URL,
		Title:       doc.Title,
		Fingerprint: doc.Fingerprint,
		Chunks:      chunks,
		IngestedAt:  time.Now().UTC(),
	}
	if _, err := e.deps.Publisher.Publish(ctx, event); err != nil {
		logger.Warn("publishing ingest event failed", zap.String("url", doc.URL), zap.Error(err))
	}
}

// reserveSlot claims one of the MaxPages fetch slots. Failed fetches return
// their slot via releaseSlot so transient errors do not consume the budget.
func (e *Engine) reserveSlot() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reserved >= e.job.MaxPages {
		return false
	}
	e.reserved++
	return true
}

func (e *Engine) releaseSlot() {
	e.mu.Lock()
	e.reserved--
	e.mu.Unlock()
}

func (e *Engine) count(fn func(*Summary)) {
	e.mu.Lock()
	fn(&e.summary)
	e.mu.Unlock()
}

func (e *Engine) snapshot() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// MarshalSummary renders a summary as indented JSON for run records and CLI
// output.
func MarshalSummary(s Summary) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	return b, nil
}

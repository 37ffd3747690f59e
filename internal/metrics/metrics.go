// Package metrics exposes Prometheus collectors for the crawl pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_pages_total",
			Help: "Total pages fetched, labeled by host and status code.",
		},
		[]string{"host", "status"},
	)

	bytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_bytes_total",
			Help: "Total payload bytes fetched, labeled by host.",
		},
		[]string{"host"},
	)

	robotsBlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_robots_blocked_total",
			Help: "URLs skipped because robots.txt disallowed them.",
		},
		[]string{"host"},
	)

	fetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_fetch_errors_total",
			Help: "Fetch attempts that failed with a network error, timeout or bad status.",
		},
		[]string{"host"},
	)

	dedupRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_dedup_removed_total",
			Help: "Chunks rejected by the deduplicator, labeled exact or near.",
		},
		[]string{"kind"},
	)

	chunksEmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webharvest_chunks_emitted_total",
			Help: "Chunks accepted and handed to the sink.",
		},
	)

	crawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_crawls_total",
			Help: "Crawl runs completed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webharvest_rate_limit_delay_seconds",
			Help:    "Delay introduced by per-host pacing before a fetch.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"host"},
	)
)

// PageFetched records one successfully fetched page.
func PageFetched(host, status string) {
	pagesTotal.WithLabelValues(host, status).Inc()
}

// AddBytes accumulates payload size for a host.
func AddBytes(host string, n int) {
	bytesTotal.WithLabelValues(host).Add(float64(n))
}

// RobotsBlocked records a robots.txt denial.
func RobotsBlocked(host string) {
	robotsBlockedTotal.WithLabelValues(host).Inc()
}

// FetchError records a failed fetch attempt.
func FetchError(host string) {
	fetchErrorsTotal.WithLabelValues(host).Inc()
}

// DedupRemoved records a rejected chunk; kind is "exact" or "near".
func DedupRemoved(kind string) {
	dedupRemovedTotal.WithLabelValues(kind).Inc()
}

// ChunksEmitted records accepted chunks.
func ChunksEmitted(n int) {
	chunksEmittedTotal.Add(float64(n))
}

// CrawlCompleted records a finished run; outcome is "ok" or "canceled".
func CrawlCompleted(outcome string) {
	crawlsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records how long a worker waited for its host slot.
func ObserveRateLimitDelay(host string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

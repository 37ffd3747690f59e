package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	pubsubapi "cloud.google.com/go/pubsub"
	storageapi "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	artifactgcs "github.com/civicrag/webharvest/internal/artifact/gcs"
	"github.com/civicrag/webharvest/internal/config"
	"github.com/civicrag/webharvest/internal/crawl"
	"github.com/civicrag/webharvest/internal/fetch/rendered"
	"github.com/civicrag/webharvest/internal/fetch/sitemapfetch"
	"github.com/civicrag/webharvest/internal/fetch/static"
	"github.com/civicrag/webharvest/internal/logging"
	"github.com/civicrag/webharvest/internal/policy/ratelimit"
	"github.com/civicrag/webharvest/internal/policy/robots"
	pubsubpublisher "github.com/civicrag/webharvest/internal/publish/pubsub"
	"github.com/civicrag/webharvest/internal/sitemap"
	memorystore "github.com/civicrag/webharvest/internal/store/memory"
	"github.com/civicrag/webharvest/internal/store/postgres"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one crawl to completion",
		Long: `Runs a crawl using the seeds, strategy and politeness settings from the
configuration, persisting normalized documents and chunks as it goes.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := cfg.ToJob().WithDefaults()

	deps, cleanup, err := buildDeps(ctx, cfg, job, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := crawl.NewEngine(job, deps)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	summary, err := engine.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}

	out, err := crawl.MarshalSummary(summary)
	if err != nil {
		return err
	}
	cmd.Println(string(out))
	return nil
}

// buildDeps assembles the engine collaborators from configuration. The
// returned cleanup releases every resource that was actually created.
func buildDeps(ctx context.Context, cfg config.Config, job crawl.Job, logger *zap.Logger) (crawl.Deps, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	deps := crawl.Deps{
		Logger: logger,
		Robots: robots.New(robots.Config{
			Mode:              robots.Mode(job.RobotsMode),
			AllowListDomains:  job.RobotsAllowListDomains,
			UserAgent:         job.UserAgent,
			PermissiveOnError: job.RobotsPermissiveOnError,
			ForceHTTPS:        job.ForceHTTPS,
		}, logger.Named("robots")),
		Limiter: ratelimit.New(job.RatePerHost),
	}

	fetcher, fetchCleanup, err := buildFetcher(cfg, job, logger)
	if err != nil {
		cleanup()
		return crawl.Deps{}, nil, err
	}
	if fetchCleanup != nil {
		cleanups = append(cleanups, fetchCleanup)
	}
	deps.Fetcher = fetcher

	if job.Strategy == crawl.StrategySitemap {
		filters, err := crawl.NewFilters(job.AllowedDomains, job.IncludePatterns, job.ExcludePatterns)
		if err != nil {
			cleanup()
			return crawl.Deps{}, nil, fmt.Errorf("init sitemap filters: %w", err)
		}
		deps.Resolver = sitemap.New(sitemap.Config{
			UserAgent:  job.UserAgent,
			Timeout:    job.Timeout,
			ForceHTTPS: job.ForceHTTPS,
			Filters:    filters,
		}, logger.Named("sitemap"))
	}

	if cfg.DB.DSN != "" {
		store, err := postgres.NewStore(ctx, postgres.StoreConfig{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			cleanup()
			return crawl.Deps{}, nil, fmt.Errorf("init postgres store: %w", err)
		}
		cleanups = append(cleanups, store.Close)
		deps.Sink = store
	} else {
		logger.Info("no database configured; documents stay in memory")
		deps.Sink = memorystore.NewStore()
	}

	if cfg.Storage.GCSBucket != "" {
		client, err := storageapi.NewClient(ctx)
		if err != nil {
			cleanup()
			return crawl.Deps{}, nil, fmt.Errorf("init storage client: %w", err)
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		store, err := artifactgcs.New(client, artifactgcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			cleanup()
			return crawl.Deps{}, nil, fmt.Errorf("init artifact store: %w", err)
		}
		deps.Artifacts = store
	}

	if cfg.PubSub.TopicName != "" {
		client, err := pubsubapi.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			cleanup()
			return crawl.Deps{}, nil, fmt.Errorf("init pubsub client: %w", err)
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		publisher := pubsubpublisher.New(client.Topic(cfg.PubSub.TopicName))
		cleanups = append(cleanups, publisher.Stop)
		deps.Publisher = publisher
	}

	return deps, cleanup, nil
}

// buildFetcher picks the strategy implementation. The rendered fetcher owns a
// browser session; its Close is the returned cleanup.
func buildFetcher(cfg config.Config, job crawl.Job, logger *zap.Logger) (crawl.Fetcher, func(), error) {
	switch job.Strategy {
	case crawl.StrategyStatic:
		return static.New(static.Config{
			UserAgent:    job.UserAgent,
			Timeout:      job.Timeout,
			MaxRetries:   job.MaxRetries,
			MinHTMLBytes: job.MinHTMLBytes,
			ForceHTTPS:   job.ForceHTTPS,
		}, logger.Named("static")), nil, nil
	case crawl.StrategyRendered:
		fetcher, err := rendered.New(rendered.Config{
			UserAgent:    job.UserAgent,
			Timeout:      cfg.RenderTimeout(),
			MinHTMLBytes: job.MinHTMLBytes,
			ForceHTTPS:   job.ForceHTTPS,
			Options:      job.Render,
		}, logger.Named("rendered"))
		if err != nil {
			return nil, nil, fmt.Errorf("init rendered fetcher: %w", err)
		}
		return fetcher, fetcher.Close, nil
	case crawl.StrategySitemap:
		return sitemapfetch.New(sitemapfetch.Config{
			UserAgent:    job.UserAgent,
			Timeout:      job.Timeout,
			MinHTMLBytes: job.MinHTMLBytes,
			ForceHTTPS:   job.ForceHTTPS,
		}, logger.Named("sitemapfetch")), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", crawl.ErrInvalidStrategy, job.Strategy)
	}
}

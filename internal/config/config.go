// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/civicrag/webharvest/internal/crawl"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Robots    RobotsConfig    `mapstructure:"robots"`
	Render    RenderConfig    `mapstructure:"render"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Chunk     ChunkConfig     `mapstructure:"chunk"`
	DB        DBConfig        `mapstructure:"db"`
	Storage   StorageConfig   `mapstructure:"storage"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlConfig governs frontier and fetch behavior.
type CrawlConfig struct {
	Seeds           []string `mapstructure:"seeds"`
	Strategy        string   `mapstructure:"strategy"`
	MaxDepth        int      `mapstructure:"max_depth"`
	MaxPages        int      `mapstructure:"max_pages"`
	Concurrency     int      `mapstructure:"concurrency"`
	AllowedDomains  []string `mapstructure:"allowed_domains"`
	IncludePatterns []string `mapstructure:"include_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
	RatePerHost     float64  `mapstructure:"rate_per_host"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
	UserAgent       string   `mapstructure:"user_agent"`
	ForceHTTPS      bool     `mapstructure:"force_https"`
	MinHTMLBytes    int      `mapstructure:"min_html_bytes"`
	MaxRetries      int      `mapstructure:"max_retries"`
}

// RobotsConfig selects how robots.txt directives are applied.
type RobotsConfig struct {
	Mode              string   `mapstructure:"mode"`
	AllowListDomains  []string `mapstructure:"allow_list_domains"`
	PermissiveOnError bool     `mapstructure:"permissive_on_error"`
}

// RenderConfig tunes the headless-browser strategy.
type RenderConfig struct {
	WaitSelector   string `mapstructure:"wait_selector"`
	RenderWaitMs   int    `mapstructure:"render_wait_ms"`
	ScrollSteps    int    `mapstructure:"scroll_steps"`
	ScrollWaitMs   int    `mapstructure:"scroll_wait_ms"`
	WindowWidth    int    `mapstructure:"window_width"`
	WindowHeight   int    `mapstructure:"window_height"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// NormalizeConfig tunes HTML-to-text extraction.
type NormalizeConfig struct {
	// MainContent runs a readability pass before extraction so navigation
	// and promo blocks outside the article body are discarded.
	MainContent bool `mapstructure:"main_content"`
}

// ChunkConfig governs splitting and deduplication.
type ChunkConfig struct {
	Size             int     `mapstructure:"size"`
	Overlap          int     `mapstructure:"overlap"`
	NearDupThreshold float64 `mapstructure:"near_dup_threshold"`
}

// DBConfig controls access to the relational database; empty DSN selects the
// in-memory sink.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StorageConfig sets the bucket for raw payload archiving; empty disables it.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for ingest-event notifications; empty topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.strategy", string(crawl.StrategyStatic))
	v.SetDefault("crawl.max_depth", crawl.DefaultMaxDepth)
	v.SetDefault("crawl.max_pages", crawl.DefaultMaxPages)
	v.SetDefault("crawl.concurrency", crawl.DefaultConcurrency)
	v.SetDefault("crawl.rate_per_host", crawl.DefaultRatePerHost)
	v.SetDefault("crawl.timeout_seconds", 15)
	v.SetDefault("crawl.user_agent", crawl.DefaultUserAgent)
	v.SetDefault("crawl.min_html_bytes", crawl.DefaultMinHTMLBytes)
	v.SetDefault("crawl.max_retries", crawl.DefaultMaxRetries)
	v.SetDefault("robots.mode", string(crawl.RobotsStrict))
	v.SetDefault("robots.permissive_on_error", true)
	v.SetDefault("render.render_wait_ms", 3000)
	v.SetDefault("render.scroll_wait_ms", 500)
	v.SetDefault("render.window_width", 1366)
	v.SetDefault("render.window_height", 900)
	v.SetDefault("render.timeout_seconds", 45)
	v.SetDefault("normalize.main_content", false)
	v.SetDefault("chunk.size", crawl.DefaultChunkSize)
	v.SetDefault("chunk.overlap", crawl.DefaultChunkOverlap)
	v.SetDefault("chunk.near_dup_threshold", crawl.DefaultNearDup)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Crawl.Seeds) == 0 {
		return fmt.Errorf("crawl.seeds must not be empty")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawl.timeout_seconds must be > 0")
	}
	if c.Chunk.Size <= 0 {
		return fmt.Errorf("chunk.size must be > 0")
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("chunk.overlap must be in [0, chunk.size)")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// ToJob converts the loaded configuration into a crawl job.
func (c Config) ToJob() crawl.Job {
	return crawl.Job{
		Seeds:    c.Crawl.Seeds,
		Strategy: crawl.Strategy(c.Crawl.Strategy),

		MaxDepth:    c.Crawl.MaxDepth,
		MaxPages:    c.Crawl.MaxPages,
		Concurrency: c.Crawl.Concurrency,

		AllowedDomains:  c.Crawl.AllowedDomains,
		IncludePatterns: c.Crawl.IncludePatterns,
		ExcludePatterns: c.Crawl.ExcludePatterns,

		RobotsMode:              crawl.RobotsMode(c.Robots.Mode),
		RobotsAllowListDomains:  c.Robots.AllowListDomains,
		RobotsPermissiveOnError: c.Robots.PermissiveOnError,

		RatePerHost:  c.Crawl.RatePerHost,
		Timeout:      time.Duration(c.Crawl.TimeoutSeconds) * time.Second,
		UserAgent:    c.Crawl.UserAgent,
		ForceHTTPS:   c.Crawl.ForceHTTPS,
		MinHTMLBytes: c.Crawl.MinHTMLBytes,
		MaxRetries:   c.Crawl.MaxRetries,

		Render: crawl.RenderOptions{
			WaitSelector: c.Render.WaitSelector,
			RenderWait:   time.Duration(c.Render.RenderWaitMs) * time.Millisecond,
			ScrollSteps:  c.Render.ScrollSteps,
			ScrollWait:   time.Duration(c.Render.ScrollWaitMs) * time.Millisecond,
			WindowWidth:  c.Render.WindowWidth,
			WindowHeight: c.Render.WindowHeight,
		},

		MainContent: c.Normalize.MainContent,

		ChunkSize:        c.Chunk.Size,
		ChunkOverlap:     c.Chunk.Overlap,
		NearDupThreshold: c.Chunk.NearDupThreshold,
	}
}

// RenderTimeout returns the headless navigation budget.
func (c Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}

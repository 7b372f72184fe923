// Package config loads and validates QuantumBoom configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

// Source adapter types.
const (
	SourceTypeCSV   = "csv"
	SourceTypeArxiv = "arxiv"
	SourceTypeRSS   = "rss"
)

// arXiv adapter modes.
const (
	ArxivModeAPI     = "api"
	ArxivModeListing = "listing"
)

// Default endpoints used when no explicit sources are configured.
const (
	DefaultArxivEndpoint = "https://export.arxiv.org/api/query"
	DefaultArxivQuery    = `ti:"quantum computing"`
	DefaultNewsFeedURL   = "https://news.google.com/rss/search?q=quantum+computing"
)

// dotenvFiles are loaded into the process environment before Viper reads it.
var dotenvFiles = []string{".env"}

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Sources           []SourceConfig   `mapstructure:"sources" yaml:"sources"`
	ResearchSourceURL string           `mapstructure:"research_source_url" yaml:"research_source_url"`
	ArxivQuery        string           `mapstructure:"arxiv_query" yaml:"arxiv_query"`
	NewsFeedURL       string           `mapstructure:"news_feed_url" yaml:"news_feed_url"`
	MaxItemsPerSource int              `mapstructure:"max_items_per_source" yaml:"max_items_per_source"`
	HTTP              HTTPConfig       `mapstructure:"http" yaml:"http"`
	Summarizer        SummarizerConfig `mapstructure:"summarizer" yaml:"summarizer"`
	Output            OutputConfig     `mapstructure:"output" yaml:"output"`
	Archive           ArchiveConfig    `mapstructure:"archive" yaml:"archive"`
	Publish           PublishConfig    `mapstructure:"publish" yaml:"publish"`
	Notify            NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	Metrics           MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Logging           LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// SourceConfig describes one adapter instance.
type SourceConfig struct {
	ID             string             `mapstructure:"id" yaml:"id"`
	Kind           digest.SectionKind `mapstructure:"kind" yaml:"kind"`
	Label          string             `mapstructure:"label" yaml:"label"`
	Type           string             `mapstructure:"type" yaml:"type"`
	URL            string             `mapstructure:"url" yaml:"url"`
	Query          string             `mapstructure:"query" yaml:"query,omitempty"`
	Mode           string             `mapstructure:"mode" yaml:"mode,omitempty"`
	MaxItems       int                `mapstructure:"max_items" yaml:"max_items"`
	TimeoutSeconds int                `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	ExtractContent bool               `mapstructure:"extract_content" yaml:"extract_content,omitempty"`
}

// Timeout returns the per-adapter deadline.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// HTTPConfig configures the shared source fetcher.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent" yaml:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// SummarizerConfig controls the completion provider and its retry budget.
type SummarizerConfig struct {
	Provider          string          `mapstructure:"provider" yaml:"provider"`
	APIKey            string          `mapstructure:"api_key" yaml:"api_key"`
	Model             string          `mapstructure:"model" yaml:"model"`
	Endpoint          string          `mapstructure:"endpoint" yaml:"endpoint"`
	MaxInputChars     int             `mapstructure:"max_input_chars" yaml:"max_input_chars"`
	MaxOutputTokens   int             `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	Temperature       float64         `mapstructure:"temperature" yaml:"temperature"`
	MaxAttempts       int             `mapstructure:"max_attempts" yaml:"max_attempts"`
	BackoffInitialMs  int             `mapstructure:"backoff_initial_ms" yaml:"backoff_initial_ms"`
	BackoffMaxMs      int             `mapstructure:"backoff_max_ms" yaml:"backoff_max_ms"`
	MaxConcurrency    int             `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	RequestsPerSecond float64         `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	TimeoutSeconds    int             `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	FallbackChars     int             `mapstructure:"fallback_chars" yaml:"fallback_chars"`
	GroupSize         GroupSizeConfig `mapstructure:"group_size" yaml:"group_size"`
}

// GroupSizeConfig sets how many items share one completion call, per section kind.
type GroupSizeConfig struct {
	Research int `mapstructure:"research" yaml:"research"`
	Papers   int `mapstructure:"papers" yaml:"papers"`
	News     int `mapstructure:"news" yaml:"news"`
}

// For returns the group size for kind, never less than one.
func (g GroupSizeConfig) For(kind digest.SectionKind) int {
	var n int
	switch kind {
	case digest.KindResearch:
		n = g.Research
	case digest.KindPapers:
		n = g.Papers
	case digest.KindNews:
		n = g.News
	}
	if n < 1 {
		return 1
	}
	return n
}

// Timeout returns the per-call completion deadline.
func (s SummarizerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// OutputConfig places local artifacts.
type OutputConfig struct {
	Dir           string `mapstructure:"dir" yaml:"dir"`
	DeployDirName string `mapstructure:"deploy_dir_name" yaml:"deploy_dir_name"`
	ReleasesDir   string `mapstructure:"releases_dir" yaml:"releases_dir"`
	BackupPrefix  string `mapstructure:"backup_prefix" yaml:"backup_prefix"`
	SiteTitle     string `mapstructure:"site_title" yaml:"site_title"`
}

// ArchiveConfig selects where backup copies are mirrored.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Dir      string `mapstructure:"dir" yaml:"dir"`
	Bucket   string `mapstructure:"bucket" yaml:"bucket"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	Region   string `mapstructure:"region" yaml:"region"`
}

// PublishConfig holds deployment credentials and polling bounds.
type PublishConfig struct {
	Provider            string `mapstructure:"provider" yaml:"provider"`
	Token               string `mapstructure:"token" yaml:"token"`
	Target              string `mapstructure:"target" yaml:"target"`
	APIBase             string `mapstructure:"api_base" yaml:"api_base"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	PollTimeoutSeconds  int    `mapstructure:"poll_timeout_seconds" yaml:"poll_timeout_seconds"`
}

// NotifyConfig configures deploy notifications.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	Topic     string `mapstructure:"topic" yaml:"topic"`
}

// MetricsConfig configures the Pushgateway export at the end of a run.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `mapstructure:"job" yaml:"job"`
}

// LoggingConfig toggles zap development features and the run log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development" yaml:"development"`
	File        string `mapstructure:"file" yaml:"file"`
}

// Option adjusts the Viper instance after defaults and files are applied.
type Option func(v *viper.Viper)

// WithOverride forces key to value, taking precedence over files and environment.
func WithOverride(key string, value any) Option {
	return func(v *viper.Viper) {
		v.Set(key, value)
	}
}

// Load builds a Config from .env, disk, and the environment.
func Load(path string, opts ...Option) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("QUANTUMBOOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindFallbackEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for _, opt := range opts {
		opt(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotEnv() error {
	for _, file := range dotenvFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// bindFallbackEnv accepts the variable names the hosting and model providers document.
func bindFallbackEnv(v *viper.Viper) error {
	bindings := [][]string{
		{"summarizer.api_key", "QUANTUMBOOM_SUMMARIZER_API_KEY", "OPENAI_API_KEY"},
		{"publish.token", "QUANTUMBOOM_PUBLISH_TOKEN", "NETLIFY_ACCESS_TOKEN"},
		{"publish.target", "QUANTUMBOOM_PUBLISH_TARGET", "NETLIFY_SITE_ID"},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return fmt.Errorf("bind env %s: %w", b[0], err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("research_source_url", "")
	v.SetDefault("arxiv_query", DefaultArxivQuery)
	v.SetDefault("news_feed_url", DefaultNewsFeedURL)
	v.SetDefault("max_items_per_source", 10)
	v.SetDefault("http.user_agent", "quantumboom/1.0 (+https://quantumboom.netlify.app)")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("summarizer.provider", "openai")
	v.SetDefault("summarizer.api_key", "")
	v.SetDefault("summarizer.model", "gpt-3.5-turbo")
	v.SetDefault("summarizer.endpoint", "https://api.openai.com/v1")
	v.SetDefault("summarizer.max_input_chars", 4000)
	v.SetDefault("summarizer.max_output_tokens", 1500)
	v.SetDefault("summarizer.temperature", 0.3)
	v.SetDefault("summarizer.max_attempts", 3)
	v.SetDefault("summarizer.backoff_initial_ms", 250)
	v.SetDefault("summarizer.backoff_max_ms", 5000)
	v.SetDefault("summarizer.max_concurrency", 4)
	v.SetDefault("summarizer.requests_per_second", 2.0)
	v.SetDefault("summarizer.timeout_seconds", 60)
	v.SetDefault("summarizer.fallback_chars", 300)
	v.SetDefault("summarizer.group_size.research", 1)
	v.SetDefault("summarizer.group_size.papers", 1)
	v.SetDefault("summarizer.group_size.news", 1)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.deploy_dir_name", "deploy")
	v.SetDefault("output.releases_dir", "releases")
	v.SetDefault("output.backup_prefix", "digest_backup_")
	v.SetDefault("output.site_title", "QuantumBoom")
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "backups")
	v.SetDefault("archive.region", "")
	v.SetDefault("publish.provider", "netlify")
	v.SetDefault("publish.token", "")
	v.SetDefault("publish.target", "")
	v.SetDefault("publish.api_base", "https://api.netlify.com/api/v1")
	v.SetDefault("publish.timeout_seconds", 60)
	v.SetDefault("publish.poll_interval_seconds", 10)
	v.SetDefault("publish.poll_timeout_seconds", 300)
	v.SetDefault("notify.provider", "none")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "quantumboom-deploys")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "quantumboom")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "quantumboom.log")
}

// normalize expands the shortcut keys into sources and fills per-source defaults.
func (c *Config) normalize() {
	if len(c.Sources) == 0 {
		c.Sources = c.shortcutSources()
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Kind = digest.SectionKind(strings.ToLower(strings.TrimSpace(string(s.Kind))))
		if s.Type == "" {
			s.Type = defaultTypeFor(s.Kind)
		}
		if s.Type == SourceTypeArxiv && s.Mode == "" {
			s.Mode = ArxivModeAPI
		}
		if s.Type == SourceTypeArxiv && s.Mode == ArxivModeAPI && s.URL == "" {
			s.URL = DefaultArxivEndpoint
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("%s-%d", s.Kind, i+1)
		}
		if s.Label == "" {
			s.Label = s.Kind.DefaultHeading()
		}
		if s.MaxItems <= 0 {
			s.MaxItems = c.MaxItemsPerSource
		}
		if s.TimeoutSeconds <= 0 {
			s.TimeoutSeconds = c.HTTP.TimeoutSeconds
		}
	}
}

func (c Config) shortcutSources() []SourceConfig {
	var out []SourceConfig
	if c.ResearchSourceURL != "" {
		out = append(out, SourceConfig{ID: "research", Kind: digest.KindResearch, Type: SourceTypeCSV, URL: c.ResearchSourceURL})
	}
	if c.ArxivQuery != "" {
		out = append(out, SourceConfig{ID: "arxiv", Kind: digest.KindPapers, Type: SourceTypeArxiv, Query: c.ArxivQuery})
	}
	if c.NewsFeedURL != "" {
		out = append(out, SourceConfig{ID: "news", Kind: digest.KindNews, Type: SourceTypeRSS, URL: c.NewsFeedURL})
	}
	return out
}

func defaultTypeFor(kind digest.SectionKind) string {
	switch kind {
	case digest.KindResearch:
		return SourceTypeCSV
	case digest.KindPapers:
		return SourceTypeArxiv
	default:
		return SourceTypeRSS
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.MaxItemsPerSource <= 0 {
		return fmt.Errorf("max_items_per_source must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be configured")
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateSummarizer(); err != nil {
		return err
	}
	if c.Output.Dir == "" || c.Output.DeployDirName == "" {
		return fmt.Errorf("output.dir and output.deploy_dir_name are required")
	}
	switch c.Archive.Provider {
	case "", "none", "memory":
	case "local":
		if c.Archive.Dir == "" {
			return fmt.Errorf("archive.dir is required when archive.provider=local")
		}
	case "gcs", "s3":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archive.provider=%s", c.Archive.Provider)
		}
	default:
		return fmt.Errorf("archive.provider %q is not supported", c.Archive.Provider)
	}
	switch c.Publish.Provider {
	case "none":
	case "netlify":
		if c.Publish.Token == "" {
			return fmt.Errorf("publish.token is required when publish.provider=netlify")
		}
		if c.Publish.Target == "" {
			return fmt.Errorf("publish.target is required when publish.provider=netlify")
		}
		if c.Publish.PollIntervalSeconds <= 0 {
			return fmt.Errorf("publish.poll_interval_seconds must be > 0")
		}
	default:
		return fmt.Errorf("publish.provider %q is not supported", c.Publish.Provider)
	}
	switch c.Notify.Provider {
	case "", "none", "memory":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required when notify.provider=pubsub")
		}
	default:
		return fmt.Errorf("notify.provider %q is not supported", c.Notify.Provider)
	}
	return nil
}

func (c Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sources[%d].id %q is duplicated", i, s.ID)
		}
		seen[s.ID] = struct{}{}
		if !s.Kind.Valid() {
			return fmt.Errorf("sources[%d].kind %q must be research, papers, or news", i, s.Kind)
		}
		if s.MaxItems <= 0 {
			return fmt.Errorf("sources[%d].max_items must be > 0", i)
		}
		switch s.Type {
		case SourceTypeCSV, SourceTypeRSS:
			if s.URL == "" {
				return fmt.Errorf("sources[%d].url is required for type %s", i, s.Type)
			}
		case SourceTypeArxiv:
			switch s.Mode {
			case ArxivModeAPI:
				if s.Query == "" {
					return fmt.Errorf("sources[%d].query is required for arxiv api mode", i)
				}
			case ArxivModeListing:
				if s.URL == "" {
					return fmt.Errorf("sources[%d].url is required for arxiv listing mode", i)
				}
			default:
				return fmt.Errorf("sources[%d].mode %q is not supported", i, s.Mode)
			}
		default:
			return fmt.Errorf("sources[%d].type %q is not supported", i, s.Type)
		}
	}
	return nil
}

func (c Config) validateSummarizer() error {
	s := c.Summarizer
	switch s.Provider {
	case "none":
		return nil
	case "openai", "gemini", "cohere":
	default:
		return fmt.Errorf("summarizer.provider %q is not supported", s.Provider)
	}
	if s.APIKey == "" {
		return fmt.Errorf("summarizer.api_key is required when summarizer.provider=%s", s.Provider)
	}
	if s.MaxAttempts <= 0 {
		return fmt.Errorf("summarizer.max_attempts must be > 0")
	}
	if s.MaxConcurrency <= 0 {
		return fmt.Errorf("summarizer.max_concurrency must be > 0")
	}
	if s.MaxInputChars <= 0 || s.MaxOutputTokens <= 0 {
		return fmt.Errorf("summarizer.max_input_chars and summarizer.max_output_tokens must be > 0")
	}
	return nil
}

// Redacted returns a copy safe to print, with credentials masked.
func (c Config) Redacted() Config {
	out := c
	out.Sources = append([]SourceConfig(nil), c.Sources...)
	out.Summarizer.APIKey = mask(c.Summarizer.APIKey)
	out.Publish.Token = mask(c.Publish.Token)
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
max_items_per_source: 7
http:
  user_agent: qb-test
  timeout_seconds: 12
sources:
  - id: highlighted
    kind: research
    label: Highlighted Papers
    url: https://sheets.example.com/export?format=csv
    max_items: 3
  - id: technology
    kind: papers
    label: Technology Papers
    query: ti:"quantum computing"
  - id: company
    kind: papers
    label: Company Papers
    query: all:IBM AND all:quantum
    max_items: 8
  - id: listing
    kind: papers
    type: arxiv
    mode: listing
    url: https://arxiv.org/list/quant-ph/new
  - id: google-news
    kind: news
    url: https://news.google.com/rss/search?q=quantum+computing
    max_items: 15
    extract_content: true
summarizer:
  provider: gemini
  api_key: g-key
  model: gemini-2.0-flash
  max_concurrency: 2
  group_size:
    news: 5
output:
  dir: out
publish:
  provider: netlify
  token: tok
  target: site-123
  poll_interval_seconds: 5
archive:
  provider: gcs
  bucket: qb-backups
notify:
  provider: pubsub
  project_id: qb-project
  topic: deploys
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 5)
	assert.Equal(t, "Highlighted Papers", cfg.Sources[0].Label)
	assert.Equal(t, SourceTypeCSV, cfg.Sources[0].Type)
	assert.Equal(t, 3, cfg.Sources[0].MaxItems)
	assert.Equal(t, 12*time.Second, cfg.Sources[0].Timeout())

	tech := cfg.Sources[1]
	assert.Equal(t, digest.KindPapers, tech.Kind)
	assert.Equal(t, SourceTypeArxiv, tech.Type)
	assert.Equal(t, ArxivModeAPI, tech.Mode)
	assert.Equal(t, DefaultArxivEndpoint, tech.URL)
	assert.Equal(t, 7, tech.MaxItems)

	assert.Equal(t, ArxivModeListing, cfg.Sources[3].Mode)
	assert.True(t, cfg.Sources[4].ExtractContent)
	assert.Equal(t, SourceTypeRSS, cfg.Sources[4].Type)

	assert.Equal(t, "gemini", cfg.Summarizer.Provider)
	assert.Equal(t, 2, cfg.Summarizer.MaxConcurrency)
	assert.Equal(t, 5, cfg.Summarizer.GroupSize.For(digest.KindNews))
	assert.Equal(t, 1, cfg.Summarizer.GroupSize.For(digest.KindResearch))
	assert.Equal(t, 3, cfg.Summarizer.MaxAttempts)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, "deploy", cfg.Output.DeployDirName)
	assert.Equal(t, 300, cfg.Publish.PollTimeoutSeconds)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadShortcutSources(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
research_source_url: https://sheets.example.com/list.csv
max_items_per_source: 4
summarizer:
  provider: none
publish:
  provider: none
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 3)

	assert.Equal(t, "research", cfg.Sources[0].ID)
	assert.Equal(t, digest.KindResearch, cfg.Sources[0].Kind)
	assert.Equal(t, "Research", cfg.Sources[0].Label)
	assert.Equal(t, DefaultArxivQuery, cfg.Sources[1].Query)
	assert.Equal(t, DefaultNewsFeedURL, cfg.Sources[2].URL)
	for _, s := range cfg.Sources {
		assert.Equal(t, 4, s.MaxItems, s.ID)
	}
}

func TestLoadOverrideDisablesPublish(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("summarizer:\n  provider: none\n"), 0o600))

	_, err := Load(path, WithOverride("publish.token", ""), WithOverride("publish.target", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish.token")

	cfg, err := Load(path, WithOverride("publish.provider", "none"))
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.Publish.Provider)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadFallbackEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("NETLIFY_ACCESS_TOKEN", "nf-token")
	t.Setenv("NETLIFY_SITE_ID", "site-from-env")
	t.Setenv("QUANTUMBOOM_MAX_ITEMS_PER_SOURCE", "6")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Summarizer.APIKey)
	assert.Equal(t, "nf-token", cfg.Publish.Token)
	assert.Equal(t, "site-from-env", cfg.Publish.Target)
	assert.Equal(t, 6, cfg.MaxItemsPerSource)
	require.Len(t, cfg.Sources, 2)
}

func TestLoadNestedKeysFromEnv(t *testing.T) {
	t.Setenv("QUANTUMBOOM_SUMMARIZER_PROVIDER", "none")
	t.Setenv("QUANTUMBOOM_PUBLISH_PROVIDER", "none")
	t.Setenv("QUANTUMBOOM_ARCHIVE_PROVIDER", "gcs")
	t.Setenv("QUANTUMBOOM_ARCHIVE_BUCKET", "my-bucket")
	t.Setenv("QUANTUMBOOM_ARCHIVE_REGION", "us-east-1")
	t.Setenv("QUANTUMBOOM_ARCHIVE_DIR", "/var/backups")
	t.Setenv("QUANTUMBOOM_NOTIFY_PROVIDER", "pubsub")
	t.Setenv("QUANTUMBOOM_NOTIFY_PROJECT_ID", "qb-project")
	t.Setenv("QUANTUMBOOM_METRICS_PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ArchiveConfig{
		Provider: "gcs",
		Dir:      "/var/backups",
		Bucket:   "my-bucket",
		Prefix:   "backups",
		Region:   "us-east-1",
	}, cfg.Archive)
	assert.Equal(t, "qb-project", cfg.Notify.ProjectID)
	assert.Equal(t, "quantumboom-deploys", cfg.Notify.Topic)
	assert.Equal(t, "http://pushgateway:9091", cfg.Metrics.PushgatewayURL)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		MaxItemsPerSource: 5,
		HTTP:              HTTPConfig{TimeoutSeconds: 10},
		Sources: []SourceConfig{
			{ID: "news", Kind: digest.KindNews, Type: SourceTypeRSS, URL: "https://example.com/rss", MaxItems: 5},
		},
		Summarizer: SummarizerConfig{Provider: "none"},
		Output:     OutputConfig{Dir: "output", DeployDirName: "deploy"},
		Publish:    PublishConfig{Provider: "none"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"invalid max items", func(c *Config) { c.MaxItemsPerSource = 0 }, "max_items_per_source"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"no sources", func(c *Config) { c.Sources = nil }, "at least one source"},
		{"bad kind", func(c *Config) { c.Sources[0].Kind = "weather" }, "sources[0].kind"},
		{"missing url", func(c *Config) { c.Sources[0].URL = "" }, "sources[0].url"},
		{"bad type", func(c *Config) { c.Sources[0].Type = "json" }, "sources[0].type"},
		{
			"duplicate id",
			func(c *Config) { c.Sources = append(c.Sources, c.Sources[0]) },
			"duplicated",
		},
		{
			"arxiv missing query",
			func(c *Config) {
				c.Sources[0] = SourceConfig{ID: "a", Kind: digest.KindPapers, Type: SourceTypeArxiv, Mode: ArxivModeAPI, MaxItems: 1}
			},
			"query is required",
		},
		{"missing api key", func(c *Config) { c.Summarizer.Provider = "openai" }, "summarizer.api_key"},
		{"unknown provider", func(c *Config) { c.Summarizer.Provider = "llama" }, "summarizer.provider"},
		{"netlify token", func(c *Config) { c.Publish.Provider = "netlify" }, "publish.token"},
		{"archive bucket", func(c *Config) { c.Archive.Provider = "s3" }, "archive.bucket"},
		{"pubsub topic", func(c *Config) { c.Notify.Provider = "pubsub" }, "notify.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Sources = append([]SourceConfig(nil), base.Sources...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Summarizer: SummarizerConfig{APIKey: "sk-1234567890"},
		Publish:    PublishConfig{Token: "abc"},
	}
	red := cfg.Redacted()
	assert.Equal(t, "****7890", red.Summarizer.APIKey)
	assert.Equal(t, "****", red.Publish.Token)
	assert.Equal(t, "sk-1234567890", cfg.Summarizer.APIKey)
}

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Quantum Wire</title>
<item><title>Neutral atoms hit 1,000 qubits - Physics Daily</title><link>https://example.com/atoms</link>
<guid>atoms</guid><pubDate>Sun, 04 May 2025 05:00:00 GMT</pubDate>
<description>A neutral-atom array passed one thousand qubits.</description></item>
</channel></rss>`

// clearProviderEnv keeps developer credentials from leaking into config loading.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "NETLIFY_ACCESS_TOKEN", "NETLIFY_SITE_ID",
		"QUANTUMBOOM_SUMMARIZER_API_KEY", "QUANTUMBOOM_PUBLISH_TOKEN", "QUANTUMBOOM_PUBLISH_TARGET"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func baseConfig(dir, feedURL, publish string) string {
	return fmt.Sprintf(`
sources:
  - id: wire
    kind: news
    type: rss
    url: %s
    max_items: 5
summarizer:
  provider: none
output:
  dir: %s
logging:
  development: false
  file: %s
%s`, feedURL, filepath.Join(dir, "output"), filepath.Join(dir, "run.log"), publish)
}

func TestRunCommandWritesDigest(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	srv := feedServer(t)
	path := writeConfig(t, dir, baseConfig(dir, srv.URL, "publish:\n  provider: none\n"))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"run", "--config", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "1 of 1 sources returned content")

	page, err := os.ReadFile(filepath.Join(dir, "output", "deploy", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "Neutral atoms hit 1,000 qubits")
	assert.Contains(t, string(page), "Physics Daily")

	runLog, err := os.ReadFile(filepath.Join(dir, "run.log"))
	require.NoError(t, err)
	assert.Contains(t, string(runLog), "1 of 1 sources returned content")
	assert.Contains(t, string(runLog), `"msg":"Run finished"`)
}

func TestRunCommandPublishFailureExitsNonZero(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	feed := feedServer(t)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"message":"Access Denied"}`))
	}))
	defer api.Close()

	publish := fmt.Sprintf("publish:\n  provider: netlify\n  token: nf-token\n  target: site-1\n  api_base: %s\n", api.URL)
	path := writeConfig(t, dir, baseConfig(dir, feed.URL, publish))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"run", "--config", path}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "status 401")

	_, err := os.Stat(filepath.Join(dir, "output", "deploy", "index.html"))
	require.NoError(t, err)
	backups, err := filepath.Glob(filepath.Join(dir, "output", "digest_backup_*.html"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestRunCommandDryRun(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	feed := feedServer(t)
	publish := "publish:\n  provider: netlify\n  token: nf-token\n  target: site-1\n  api_base: http://127.0.0.1:1\n"
	path := writeConfig(t, dir, baseConfig(dir, feed.URL, publish))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"run", "--dry-run", "--config", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.NotContains(t, stdout.String(), "Published:")
}

func TestPreviewCommandWithoutServe(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	feed := feedServer(t)
	path := writeConfig(t, dir, baseConfig(dir, feed.URL, "publish:\n  provider: none\n"))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"preview", "--config", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Preview: "+filepath.Join(dir, "output", "deploy"))
}

func TestLocalCommandsNeedNoPublishCredentials(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "preview", args: []string{"preview"}, want: "Preview: "},
		{name: "dry run", args: []string{"run", "--dry-run"}, want: "Digest: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearProviderEnv(t)
			dir := t.TempDir()
			feed := feedServer(t)
			path := writeConfig(t, dir, baseConfig(dir, feed.URL, ""))

			var stdout, stderr bytes.Buffer
			code := execute(context.Background(), append(tt.args, "--config", path), &stdout, &stderr)
			require.Equal(t, 0, code, stderr.String())
			assert.Contains(t, stdout.String(), tt.want)
			assert.NotContains(t, stdout.String(), "Published:")
		})
	}
}

func TestRunWithoutPublishCredentialsFails(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	feed := feedServer(t)
	path := writeConfig(t, dir, baseConfig(dir, feed.URL, ""))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"run", "--config", path}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "publish.token is required")
}

func TestConfigCommandRedactsSecrets(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, fmt.Sprintf(`
summarizer:
  provider: openai
  api_key: sk-secret-abcd
publish:
  provider: netlify
  token: nf-secret-wxyz
  target: site-1
logging:
  development: false
  file: %s
`, filepath.Join(dir, "run.log")))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"config", "--config", path}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "****abcd")
	assert.Contains(t, out, "****wxyz")
	assert.NotContains(t, out, "sk-secret")
	assert.NotContains(t, out, "nf-secret")
	assert.Contains(t, out, "target: site-1")
}

func TestMissingConfigFileFails(t *testing.T) {
	clearProviderEnv(t)
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"config", "--config", filepath.Join(t.TempDir(), "nope.yaml")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "load config")
}

func TestScheduleRejectsBadTimezone(t *testing.T) {
	clearProviderEnv(t)
	dir := t.TempDir()
	path := writeConfig(t, dir, baseConfig(dir, "http://127.0.0.1:1/rss", "publish:\n  provider: none\n"))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"schedule", "--tz", "Mars/Olympus", "--config", path}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "invalid timezone")
}

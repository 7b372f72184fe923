// Package netlify deploys a rendered directory to Netlify as a single zip
// upload and waits for the deploy to go live.
package netlify

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/metrics"
)

// DefaultAPIBase is the public Netlify API.
const DefaultAPIBase = "https://api.netlify.com/api/v1"

const maxErrorBody = 2 << 10

// Deploy states reported by the API.
const (
	StateReady  = "ready"
	StateError  = "error"
	StateFailed = "failed"
)

// Config identifies the site and bounds the calls.
type Config struct {
	Token        string
	SiteID       string
	APIBase      string
	Timeout      time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Publisher uploads deploy bundles.
type Publisher struct {
	fs     afero.Fs
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Publisher that authenticates every request with cfg.Token.
func New(ctx context.Context, fs afero.Fs, cfg Config, logger *zap.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("netlify access token is required")
	}
	if strings.TrimSpace(cfg.SiteID) == "" {
		return nil, errors.New("netlify site id is required")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.PollTimeout < 0 {
		cfg.PollTimeout = 0
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}))
	client.Timeout = cfg.Timeout
	return &Publisher{fs: fs, cfg: cfg, client: client, logger: logger}, nil
}

type deployResponse struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	URL          string `json:"url"`
	SSLURL       string `json:"ssl_url"`
	DeploySSLURL string `json:"deploy_ssl_url"`
	ErrorMessage string `json:"error_message"`
}

func (r deployResponse) siteURL() string {
	if r.SSLURL != "" {
		return r.SSLURL
	}
	return r.URL
}

// Publish zips dir, uploads it and polls until the deploy is ready.
func (p *Publisher) Publish(ctx context.Context, dir string) (digest.Deployment, error) {
	deployment, err := p.publish(ctx, dir)
	if err != nil {
		metrics.ObservePublish("error")
		return digest.Deployment{}, err
	}
	metrics.ObservePublish("ok")
	return deployment, nil
}

func (p *Publisher) publish(ctx context.Context, dir string) (digest.Deployment, error) {
	archive, files, err := ZipDir(p.fs, dir)
	if err != nil {
		return digest.Deployment{}, &digest.PublishError{Reason: "package deploy dir", Err: err}
	}
	if files == 0 {
		return digest.Deployment{}, &digest.PublishError{Reason: fmt.Sprintf("deploy dir %s is empty", dir)}
	}

	endpoint := fmt.Sprintf("%s/sites/%s/deploys", p.cfg.APIBase, p.cfg.SiteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(archive))
	if err != nil {
		return digest.Deployment{}, &digest.PublishError{Reason: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/zip")

	p.logger.Info("Uploading deploy", zap.String("site", p.cfg.SiteID), zap.Int("files", files), zap.Int("bytes", len(archive)))
	resp, err := p.client.Do(req)
	if err != nil {
		return digest.Deployment{}, &digest.PublishError{Reason: "network", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return digest.Deployment{}, statusError(resp)
	}
	var created deployResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return digest.Deployment{}, &digest.PublishError{StatusCode: resp.StatusCode, Reason: "decode deploy response", Err: err}
	}

	deployment := digest.Deployment{ID: created.ID, URL: created.siteURL(), State: created.State}
	p.logger.Info("Deploy created", zap.String("deploy_id", deployment.ID), zap.String("url", deployment.URL))

	state, err := p.wait(ctx, created.ID)
	if err != nil {
		return digest.Deployment{}, err
	}
	if state != "" {
		deployment.State = state
	}
	return deployment, nil
}

// wait polls the deploy until it is ready or failed. Timeouts and status
// check failures are logged and treated as success; the upload was accepted.
func (p *Publisher) wait(ctx context.Context, id string) (string, error) {
	if id == "" || p.cfg.PollTimeout == 0 {
		return "", nil
	}
	deadline := time.Now().Add(p.cfg.PollTimeout)
	last := ""
	for {
		info, status, err := p.status(ctx, id)
		switch {
		case err != nil:
			p.logger.Warn("Could not check deploy status", zap.String("deploy_id", id), zap.Error(err))
			return last, nil
		case status != http.StatusOK:
			p.logger.Warn("Could not check deploy status", zap.String("deploy_id", id), zap.Int("status", status))
			return last, nil
		}
		last = info.State
		switch info.State {
		case StateReady:
			p.logger.Info("Deploy is live", zap.String("deploy_id", id))
			return last, nil
		case StateError, StateFailed:
			return last, &digest.PublishError{Reason: fmt.Sprintf("deploy %s ended in state %s: %s", id, info.State, info.ErrorMessage)}
		}
		p.logger.Info("Deploy in progress", zap.String("deploy_id", id), zap.String("state", info.State))

		if time.Now().Add(p.cfg.PollInterval).After(deadline) {
			p.logger.Warn("Deploy status check timed out; deploy may still complete", zap.String("deploy_id", id), zap.String("state", last))
			return last, nil
		}
		timer := time.NewTimer(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Warn("Deploy status check canceled", zap.String("deploy_id", id), zap.Error(ctx.Err()))
			return last, nil
		case <-timer.C:
		}
	}
}

func (p *Publisher) status(ctx context.Context, id string) (deployResponse, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/deploys/%s", p.cfg.APIBase, id), nil)
	if err != nil {
		return deployResponse{}, 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return deployResponse{}, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	if resp.StatusCode != http.StatusOK {
		return deployResponse{}, resp.StatusCode, nil
	}
	var info deployResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return deployResponse{}, resp.StatusCode, err
	}
	return info, resp.StatusCode, nil
}

func statusError(resp *http.Response) *digest.PublishError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	reason := http.StatusText(resp.StatusCode)
	var parsed struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Message != "" {
		reason = parsed.Message
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) < 200 {
		reason = text
	}
	return &digest.PublishError{StatusCode: resp.StatusCode, Reason: reason}
}

// ZipDir packs every regular file under dir, with slash-separated relative
// names, and returns the archive and the file count.
func ZipDir(fs afero.Fs, dir string) ([]byte, int, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	count, err := addDir(fs, zw, dir, "")
	if err != nil {
		_ = zw.Close()
		return nil, 0, err
	}
	if err := zw.Close(); err != nil {
		return nil, 0, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), count, nil
}

func addDir(fs afero.Fs, zw *zip.Writer, dir, prefix string) (int, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}
	count := 0
	for _, e := range entries {
		name := path.Join(prefix, e.Name())
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			n, err := addDir(fs, zw, full, name)
			if err != nil {
				return count, err
			}
			count += n
			continue
		}
		if !e.Mode().IsRegular() || strings.HasSuffix(e.Name(), ".tmp") {
			continue
		}
		data, err := afero.ReadFile(fs, full)
		if err != nil {
			return count, fmt.Errorf("read %s: %w", full, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return count, fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return count, fmt.Errorf("write %s: %w", name, err)
		}
		count++
	}
	return count, nil
}

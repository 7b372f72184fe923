// Package arxiv adapts arXiv paper metadata into items, either from the Atom
// query API or from an HTML listing page.
package arxiv

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

// Adapter modes.
const (
	ModeAPI     = "api"
	ModeListing = "listing"
)

const arxivBaseURL = "https://arxiv.org"

// Config identifies one arXiv source.
type Config struct {
	ID string
	// URL is the API endpoint in api mode and the listing page in listing mode.
	URL      string
	Query    string
	Mode     string
	MaxItems int
}

// Adapter fetches papers from arXiv.
type Adapter struct {
	cfg     Config
	fetcher digest.Fetcher
	logger  *zap.Logger
}

// New builds an Adapter.
func New(cfg Config, fetcher digest.Fetcher, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAPI
	}
	return &Adapter{cfg: cfg, fetcher: fetcher, logger: logger}
}

// ID returns the configured source id.
func (a *Adapter) ID() string { return a.cfg.ID }

// Kind reports the papers section.
func (a *Adapter) Kind() digest.SectionKind { return digest.KindPapers }

// Fetch runs the configured query or listing scrape.
func (a *Adapter) Fetch(ctx context.Context) ([]digest.RawItem, error) {
	switch a.cfg.Mode {
	case ModeAPI:
		target, err := BuildQueryURL(a.cfg.URL, a.cfg.Query, a.cfg.MaxItems)
		if err != nil {
			return nil, err
		}
		resp, err := a.fetcher.Fetch(ctx, digest.FetchRequest{
			URL:     target,
			Headers: map[string][]string{"Accept": {"application/atom+xml"}},
		})
		if err != nil {
			return nil, fmt.Errorf("fetch arxiv %s: %w", a.cfg.ID, err)
		}
		return ParseFeed(resp.Body, a.cfg.ID, a.cfg.MaxItems, a.logger)
	case ModeListing:
		resp, err := a.fetcher.Fetch(ctx, digest.FetchRequest{
			URL:     a.cfg.URL,
			Headers: map[string][]string{"Accept": {"text/html"}},
		})
		if err != nil {
			return nil, fmt.Errorf("fetch arxiv listing %s: %w", a.cfg.ID, err)
		}
		return ParseListing(resp.Body, a.cfg.ID, a.cfg.MaxItems, a.logger)
	default:
		return nil, fmt.Errorf("arxiv source %s: unsupported mode %q", a.cfg.ID, a.cfg.Mode)
	}
}

// BuildQueryURL composes an arXiv API query sorted by most recent update.
func BuildQueryURL(endpoint, query string, maxResults int) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid arxiv endpoint %s: %w", endpoint, err)
	}
	if query == "" {
		return "", fmt.Errorf("arxiv query is required")
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	q := parsed.Query()
	q.Set("search_query", query)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "lastUpdatedDate")
	q.Set("sortOrder", "descending")
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

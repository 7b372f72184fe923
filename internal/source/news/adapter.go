// Package news adapts an RSS or Atom news feed into items. Articles can
// optionally be enriched with their full readable text.
package news

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/hash/sha256"
	"github.com/JakeFAU/quantumboom/internal/textutil"
)

const (
	defaultExtractWorkers = 4
	maxExtractedChars     = 8000
)

// Config identifies one news feed.
type Config struct {
	ID             string
	URL            string
	MaxItems       int
	ExtractContent bool
	ExtractWorkers int
}

// Adapter fetches a news feed.
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
	if cfg.ExtractWorkers <= 0 {
		cfg.ExtractWorkers = defaultExtractWorkers
	}
	return &Adapter{cfg: cfg, fetcher: fetcher, logger: logger}
}

// ID returns the configured source id.
func (a *Adapter) ID() string { return a.cfg.ID }

// Kind reports the news section.
func (a *Adapter) Kind() digest.SectionKind { return digest.KindNews }

// Fetch downloads and parses the feed, then enriches the items when configured.
func (a *Adapter) Fetch(ctx context.Context) ([]digest.RawItem, error) {
	resp, err := a.fetcher.Fetch(ctx, digest.FetchRequest{
		URL:     a.cfg.URL,
		Headers: map[string][]string{"Accept": {"application/rss+xml", "application/atom+xml", "text/xml;q=0.9"}},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch news %s: %w", a.cfg.ID, err)
	}
	items, err := ParseFeed(resp.Body, a.cfg.ID, a.cfg.MaxItems, a.logger)
	if err != nil {
		return nil, err
	}
	if a.cfg.ExtractContent && len(items) > 0 {
		a.enrich(ctx, items)
	}
	return items, nil
}

// ParseFeed converts an RSS or Atom document into RawItems.
func ParseFeed(body []byte, sourceID string, maxItems int, logger *zap.Logger) ([]digest.RawItem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []digest.RawItem{}, nil
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse news feed: %w", err)
	}
	feedTitle := textutil.CollapseSpace(feed.Title)

	items := make([]digest.RawItem, 0)
	for i, entry := range feed.Items {
		if maxItems > 0 && len(items) >= maxItems {
			break
		}
		if entry == nil {
			continue
		}
		title, publisher := splitPublisher(textutil.HTMLToText(entry.Title))
		if title == "" {
			logger.Warn("Skipping news entry without title", zap.String("source", sourceID), zap.Int("entry", i))
			continue
		}
		if author := authorName(entry); author != "" {
			publisher = author
		}
		if publisher == "" {
			publisher = feedTitle
		}
		text := textutil.HTMLToText(entry.Description)
		if text == "" {
			text = textutil.HTMLToText(entry.Content)
		}
		items = append(items, digest.RawItem{
			SourceID:    sourceID,
			Title:       title,
			URL:         strings.TrimSpace(entry.Link),
			RawText:     text,
			PublishedAt: publishedAt(entry),
			Publisher:   publisher,
			Identifier:  identifier(entry),
		})
	}
	return items, nil
}

// splitPublisher separates the " - Publisher" suffix that aggregators append
// to headlines.
func splitPublisher(title string) (string, string) {
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return title, ""
	}
	head := strings.TrimSpace(title[:idx])
	tail := strings.TrimSpace(title[idx+3:])
	if head == "" || tail == "" {
		return title, ""
	}
	return head, tail
}

func authorName(entry *gofeed.Item) string {
	if entry.Author != nil {
		if name := textutil.CollapseSpace(entry.Author.Name); name != "" {
			return name
		}
	}
	for _, a := range entry.Authors {
		if a != nil {
			if name := textutil.CollapseSpace(a.Name); name != "" {
				return name
			}
		}
	}
	return ""
}

func publishedAt(entry *gofeed.Item) *time.Time {
	var t *time.Time
	switch {
	case entry.PublishedParsed != nil:
		t = entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		t = entry.UpdatedParsed
	default:
		return nil
	}
	utc := t.UTC()
	return &utc
}

func identifier(entry *gofeed.Item) string {
	if guid := strings.TrimSpace(entry.GUID); guid != "" {
		return guid
	}
	link := strings.TrimSpace(entry.Link)
	if link == "" {
		link = entry.Title
	}
	return sha256.Short([]byte(link), 16)
}

// enrich replaces feed descriptions with readable article text. Failures keep
// the description.
func (a *Adapter) enrich(ctx context.Context, items []digest.RawItem) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.ExtractWorkers)
	for i := range items {
		if items[i].URL == "" {
			continue
		}
		g.Go(func() error {
			text, err := a.extract(gctx, items[i].URL)
			if err != nil {
				a.logger.Debug("Article extraction failed",
					zap.String("source", a.cfg.ID), zap.String("url", items[i].URL), zap.Error(err))
				return nil
			}
			if text != "" {
				items[i].RawText = text
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (a *Adapter) extract(ctx context.Context, rawURL string) (string, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid article url: %w", err)
	}
	resp, err := a.fetcher.Fetch(ctx, digest.FetchRequest{
		URL:     rawURL,
		Headers: map[string][]string{"Accept": {"text/html"}},
	})
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(bytes.NewReader(resp.Body), pageURL)
	if err != nil {
		return "", fmt.Errorf("extract content from %s: %w", rawURL, err)
	}
	return textutil.Truncate(article.TextContent, maxExtractedChars), nil
}

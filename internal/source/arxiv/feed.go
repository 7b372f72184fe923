package arxiv

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/textutil"
)

// ParseFeed converts an arXiv Atom response into RawItems.
func ParseFeed(body []byte, sourceID string, maxItems int, logger *zap.Logger) ([]digest.RawItem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []digest.RawItem{}, nil
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}

	count := len(feed.Items)
	if maxItems > 0 {
		count = min(count, maxItems)
	}
	items := make([]digest.RawItem, 0, count)
	for i, entry := range feed.Items {
		if maxItems > 0 && len(items) >= maxItems {
			break
		}
		if entry == nil {
			continue
		}
		// The API reports bad queries as a single entry under /api/errors.
		if strings.Contains(entry.GUID, "/api/errors") {
			return nil, fmt.Errorf("arxiv api error: %s", textutil.CollapseSpace(entry.Description))
		}
		title := textutil.CollapseSpace(entry.Title)
		if title == "" {
			logger.Warn("Skipping arxiv entry without title",
				zap.String("source", sourceID), zap.Int("entry", i), zap.String("id", entry.GUID))
			continue
		}
		abstract := textutil.CollapseSpace(entry.Description)
		if abstract == "" {
			abstract = textutil.HTMLToText(entry.Content)
		}
		items = append(items, digest.RawItem{
			SourceID:    sourceID,
			Title:       title,
			URL:         preferredLink(entry),
			RawText:     abstract,
			PublishedAt: publishedAt(entry),
			Authors:     joinAuthors(entry.Authors),
			Identifier:  identifierFromURL(entry.GUID),
		})
	}
	return items, nil
}

func preferredLink(entry *gofeed.Item) string {
	for _, l := range entry.Links {
		if strings.Contains(l, "/pdf/") {
			return l
		}
	}
	link := entry.Link
	if link == "" {
		link = entry.GUID
	}
	// gofeed keeps only alternate links, so the pdf link is rebuilt from the abs one.
	return strings.Replace(link, "/abs/", "/pdf/", 1)
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

func joinAuthors(people []*gofeed.Person) string {
	names := make([]string, 0, len(people))
	for _, p := range people {
		if p == nil {
			continue
		}
		if name := textutil.CollapseSpace(p.Name); name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// identifierFromURL extracts "2410.01234v1" from an abs or pdf URL.
func identifierFromURL(raw string) string {
	for _, marker := range []string{"/abs/", "/pdf/"} {
		if idx := strings.Index(raw, marker); idx >= 0 {
			return strings.TrimSuffix(raw[idx+len(marker):], ".pdf")
		}
	}
	return ""
}

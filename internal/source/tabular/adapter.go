// Package tabular adapts a CSV export (for example a published spreadsheet)
// into research items.
package tabular

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/textutil"
)

// Defaults substituted for blank cells.
const (
	DefaultTitle    = "Research Paper"
	DefaultAuthors  = "Research Team"
	DefaultAbstract = "Abstract not available"
)

// Config identifies one CSV source.
type Config struct {
	ID       string
	URL      string
	MaxItems int
}

// Adapter fetches and parses a CSV export.
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
	return &Adapter{cfg: cfg, fetcher: fetcher, logger: logger}
}

// ID returns the configured source id.
func (a *Adapter) ID() string { return a.cfg.ID }

// Kind reports the research section.
func (a *Adapter) Kind() digest.SectionKind { return digest.KindResearch }

// Fetch downloads the export and parses up to MaxItems rows.
func (a *Adapter) Fetch(ctx context.Context) ([]digest.RawItem, error) {
	resp, err := a.fetcher.Fetch(ctx, digest.FetchRequest{
		URL:     a.cfg.URL,
		Headers: map[string][]string{"Accept": {"text/csv", "text/plain;q=0.8"}},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch csv %s: %w", a.cfg.ID, err)
	}
	return Parse(bytes.NewReader(resp.Body), a.cfg.ID, a.cfg.MaxItems, a.logger)
}

// column indexes resolved from the header row; -1 means absent.
type columns struct {
	title, authors, abstract, link, date, arxivID int
}

var headerAliases = map[string][]string{
	"title":    {"title", "paper title"},
	"authors":  {"authors", "author"},
	"abstract": {"abstract", "description", "summary"},
	"link":     {"pdf link", "url", "link", "pdf"},
	"date":     {"submission date", "date", "published"},
	"arxiv":    {"arxiv id", "arxiv", "id"},
}

func resolveColumns(header []string) columns {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	find := func(key string) int {
		for _, alias := range headerAliases[key] {
			if i, ok := index[alias]; ok {
				return i
			}
		}
		return -1
	}
	return columns{
		title:    find("title"),
		authors:  find("authors"),
		abstract: find("abstract"),
		link:     find("link"),
		date:     find("date"),
		arxivID:  find("arxiv"),
	}
}

// Parse reads CSV rows into RawItems. Malformed rows are logged and skipped;
// an input with only a header, or nothing at all, yields no items.
func Parse(r io.Reader, sourceID string, maxItems int, logger *zap.Logger) ([]digest.RawItem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []digest.RawItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := resolveColumns(header)
	if cols.title < 0 && cols.abstract < 0 {
		return nil, fmt.Errorf("csv header has neither a title nor an abstract column: %v", header)
	}

	items := make([]digest.RawItem, 0)
	for row := 2; maxItems <= 0 || len(items) < maxItems; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			logger.Warn("Skipping malformed csv row",
				zap.String("source", sourceID), zap.Int("row", row), zap.Error(err))
			continue
		}
		if err != nil {
			return items, fmt.Errorf("read csv row %d: %w", row, err)
		}
		if len(record) != len(header) {
			logger.Warn("Skipping csv row with wrong field count",
				zap.String("source", sourceID), zap.Int("row", row),
				zap.Int("fields", len(record)), zap.Int("want", len(header)))
			continue
		}
		item, ok := rowToItem(record, cols, sourceID)
		if !ok {
			logger.Warn("Skipping empty csv row", zap.String("source", sourceID), zap.Int("row", row))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func rowToItem(record []string, cols columns, sourceID string) (digest.RawItem, bool) {
	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return record[i]
	}
	title, abstract, link := cell(cols.title), cell(cols.abstract), cell(cols.link)
	arxivID := strings.TrimSpace(cell(cols.arxivID))
	if textutil.Blank(arxivID) {
		arxivID = ""
	}
	if textutil.Blank(title) && textutil.Blank(abstract) && textutil.Blank(link) && arxivID == "" {
		return digest.RawItem{}, false
	}
	url := strings.TrimSpace(link)
	if textutil.Blank(url) {
		url = ""
		if arxivID != "" {
			url = "https://arxiv.org/abs/" + arxivID
		}
	}
	return digest.RawItem{
		SourceID:    sourceID,
		Title:       textutil.OrDefault(title, DefaultTitle),
		URL:         url,
		RawText:     textutil.OrDefault(abstract, DefaultAbstract),
		PublishedAt: parseDate(cell(cols.date)),
		Authors:     textutil.OrDefault(cell(cols.authors), DefaultAuthors),
		Identifier:  arxivID,
	}, true
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2 Jan 2006",
	"January 2, 2006",
}

func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if textutil.Blank(raw) {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

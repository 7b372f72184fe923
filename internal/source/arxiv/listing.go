package arxiv

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/textutil"
)

// ParseListing extracts papers from an arXiv listing page such as
// /list/quant-ph/new, where each paper is a dt/dd pair.
func ParseListing(body []byte, sourceID string, maxItems int, logger *zap.Logger) ([]digest.RawItem, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []digest.RawItem{}, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse arxiv listing: %w", err)
	}

	items := make([]digest.RawItem, 0)
	doc.Find("dl > dt").EachWithBreak(func(i int, dt *goquery.Selection) bool {
		if maxItems > 0 && len(items) >= maxItems {
			return false
		}
		item, ok := parseListingEntry(dt, dt.Next(), sourceID)
		if !ok {
			logger.Warn("Skipping arxiv listing entry", zap.String("source", sourceID), zap.Int("entry", i))
			return true
		}
		items = append(items, item)
		return true
	})
	return items, nil
}

func parseListingEntry(dt, dd *goquery.Selection, sourceID string) (digest.RawItem, bool) {
	absLink := dt.Find(`a[href*="/abs/"]`).First()
	href, _ := absLink.Attr("href")
	if pdf, ok := dt.Find(`a[href*="/pdf/"]`).First().Attr("href"); ok {
		href = pdf
	}
	href = absolute(href)

	id := strings.TrimSpace(absLink.Text())
	id = strings.TrimSpace(strings.TrimPrefix(id, "arXiv:"))
	if id == "" {
		id = identifierFromURL(href)
	}

	title := textutil.CollapseSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))
	if title == "" {
		return digest.RawItem{}, false
	}
	authors := textutil.CollapseSpace(dd.Find(".list-authors").First().Text())
	authors = strings.TrimSpace(strings.TrimPrefix(authors, "Authors:"))
	abstract := textutil.CollapseSpace(dd.Find("p.mathjax").First().Text())
	abstract = strings.TrimSpace(strings.TrimPrefix(abstract, "Abstract:"))

	return digest.RawItem{
		SourceID:   sourceID,
		Title:      title,
		URL:        href,
		RawText:    abstract,
		Authors:    authors,
		Identifier: id,
	}, true
}

func absolute(href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	base, _ := url.Parse(arxivBaseURL)
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

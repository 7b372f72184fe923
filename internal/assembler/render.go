package assembler

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

//go:embed templates/digest.html.tmpl
var templateFS embed.FS

var (
	pageTemplate = template.Must(template.ParseFS(templateFS, "templates/digest.html.tmpl"))
	htmlPolicy   = bluemonday.UGCPolicy()
)

const (
	dateLayout = "January 2, 2006"
	timeLayout = "15:04 MST"
)

var sectionIcons = map[digest.SectionKind]string{
	digest.KindResearch: "📚",
	digest.KindPapers:   "📄",
	digest.KindNews:     "📰",
}

type pageData struct {
	SiteTitle     string
	Fingerprint   string
	Date          string
	Time          string
	SourceSummary string
	Counts        []sectionCount
	Sections      []pageSection
}

type sectionCount struct {
	Heading string
	Items   int
}

type pageSection struct {
	SourceID string
	Kind     digest.SectionKind
	Icon     string
	Heading  string
	Items    []pageItem
}

type pageItem struct {
	Title   string
	URL     string
	Byline  string
	Date    string
	Summary template.HTML
	Excerpt bool
}

// Render executes the page template.
func Render(d digest.Digest, siteTitle, fingerprint string) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, newPageData(d, siteTitle, fingerprint)); err != nil {
		return nil, &digest.RenderError{Op: "template", Err: err}
	}
	return buf.Bytes(), nil
}

func newPageData(d digest.Digest, siteTitle, fingerprint string) pageData {
	data := pageData{
		SiteTitle:     siteTitle,
		Fingerprint:   fingerprint,
		Date:          d.GeneratedAt.Format(dateLayout),
		Time:          d.GeneratedAt.Format(timeLayout),
		SourceSummary: d.Stats.SourceSummary(),
		Sections:      make([]pageSection, 0, len(d.Sections)),
	}
	for _, s := range d.Sections {
		data.Counts = append(data.Counts, sectionCount{Heading: s.Heading, Items: len(s.Items)})
		section := pageSection{
			SourceID: s.SourceID,
			Kind:     s.Kind,
			Icon:     sectionIcons[s.Kind],
			Heading:  s.Heading,
			Items:    make([]pageItem, 0, len(s.Items)),
		}
		for _, it := range s.Items {
			section.Items = append(section.Items, newPageItem(s.Kind, it))
		}
		data.Sections = append(data.Sections, section)
	}
	return data
}

func newPageItem(kind digest.SectionKind, it digest.SummarizedItem) pageItem {
	item := pageItem{
		Title:   it.Item.Title,
		URL:     safeURL(it.Item.URL),
		Summary: template.HTML(htmlPolicy.Sanitize(it.SummaryHTML)), // #nosec G203 -- sanitized by bluemonday
		Excerpt: it.Outcome == digest.OutcomeFallbackUsed,
	}
	if kind == digest.KindNews {
		item.Byline = it.Item.Publisher
	} else {
		item.Byline = it.Item.Authors
	}
	if it.Item.PublishedAt != nil {
		item.Date = it.Item.PublishedAt.UTC().Format(dateLayout)
	}
	return item
}

// safeURL drops links that are not http(s).
func safeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return raw
	}
	return ""
}

// Fingerprint hashes the digest content with the run id and timestamp
// removed, so identical inputs give identical fingerprints.
func Fingerprint(d digest.Digest, hasher digest.Hasher) (string, error) {
	d.RunID = ""
	d.GeneratedAt = time.Time{}
	payload, err := json.Marshal(d)
	if err != nil {
		return "", &digest.RenderError{Op: "fingerprint", Err: err}
	}
	sum, err := hasher.Hash(payload)
	if err != nil {
		return "", &digest.RenderError{Op: "fingerprint", Err: err}
	}
	return sum, nil
}

func errorf(op, format string, args ...any) error {
	return &digest.RenderError{Op: op, Err: fmt.Errorf(format, args...)}
}

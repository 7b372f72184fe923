package digest

import (
	"fmt"
	"time"
)

// SectionKind classifies a source by the digest section it feeds.
type SectionKind string

// Section kinds in fixed render priority order.
const (
	KindResearch SectionKind = "research"
	KindPapers   SectionKind = "papers"
	KindNews     SectionKind = "news"
)

// SectionOrder lists kinds in the order they appear in a rendered digest.
var SectionOrder = []SectionKind{KindResearch, KindPapers, KindNews}

// Priority returns the render position of the kind, or -1 when unknown.
func (k SectionKind) Priority() int {
	for i, kind := range SectionOrder {
		if kind == k {
			return i
		}
	}
	return -1
}

// Valid reports whether k is one of the known section kinds.
func (k SectionKind) Valid() bool {
	return k.Priority() >= 0
}

// DefaultHeading returns the human-readable heading used when a source has no label.
func (k SectionKind) DefaultHeading() string {
	switch k {
	case KindResearch:
		return "Research"
	case KindPapers:
		return "Papers"
	case KindNews:
		return "News"
	default:
		return string(k)
	}
}

// RawItem is one normalized record produced by a source adapter.
type RawItem struct {
	SourceID    string     `json:"source_id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	RawText     string     `json:"raw_text"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Authors     string     `json:"authors,omitempty"`
	Publisher   string     `json:"publisher,omitempty"`
	Identifier  string     `json:"identifier,omitempty"`
}

// SummaryOutcome records how a summary was produced.
type SummaryOutcome string

// Summary outcomes.
const (
	OutcomeSummarized   SummaryOutcome = "summarized"
	OutcomeFallbackUsed SummaryOutcome = "fallback_used"
	OutcomeFailed       SummaryOutcome = "failed"
)

// SummarizedItem pairs a RawItem with its generated summary.
type SummarizedItem struct {
	Item        RawItem        `json:"item"`
	SummaryHTML string         `json:"summary_html"`
	Outcome     SummaryOutcome `json:"outcome"`
	// SharedSummary is set on the trailing members of a group whose single
	// summary is carried by the group's first item.
	SharedSummary bool `json:"shared_summary,omitempty"`
	Attempts      int  `json:"attempts"`
}

// Section is one source's block of summarized items.
type Section struct {
	SourceID string           `json:"source_id"`
	Kind     SectionKind      `json:"kind"`
	Heading  string           `json:"heading"`
	Items    []SummarizedItem `json:"items"`
}

// Stats aggregates per-run counts surfaced in logs and on the page.
type Stats struct {
	Sources         int                    `json:"sources"`
	SourcesWithData int                    `json:"sources_with_data"`
	Items           int                    `json:"items"`
	ItemsByKind     map[SectionKind]int    `json:"items_by_kind"`
	Outcomes        map[SummaryOutcome]int `json:"outcomes"`
}

// Digest is the ordered, summarized content for one run.
type Digest struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
	Stats       Stats     `json:"stats"`
}

// RenderedOutput describes the files written for one run.
type RenderedOutput struct {
	BackupPath  string `json:"backup_path"`
	ReleaseDir  string `json:"release_dir"`
	DeployDir   string `json:"deploy_dir"`
	Fingerprint string `json:"fingerprint"`
	Bytes       int    `json:"bytes"`
	ArchiveURI  string `json:"archive_uri,omitempty"`
}

// Deployment is the result of a successful publish.
type Deployment struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	State string `json:"state"`
}

// DeployEvent is announced after a successful publish.
type DeployEvent struct {
	RunID        string    `json:"run_id"`
	DeployID     string    `json:"deploy_id"`
	URL          string    `json:"url"`
	Fingerprint  string    `json:"fingerprint"`
	GeneratedAt  time.Time `json:"generated_at"`
	Items        int       `json:"items"`
	Sources      int       `json:"sources"`
	SourcesFound int       `json:"sources_found"`
}

// Prompt is a single completion request.
type Prompt struct {
	System          string
	User            string
	MaxOutputTokens int
	Temperature     float64
}

// SourceSummary renders the aggregate line used in logs and on the page.
func (s Stats) SourceSummary() string {
	return fmt.Sprintf("%d of %d sources returned content", s.SourcesWithData, s.Sources)
}

// Package assembler orders summarized sections into a Digest, renders it to
// HTML and writes the backup and deploy artifacts.
package assembler

import (
	"sort"
	"time"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

// SectionInput is one source's summarized items.
type SectionInput struct {
	SourceID string
	Kind     digest.SectionKind
	Heading  string
	Items    []digest.SummarizedItem
}

// BuildDigest orders inputs by section priority, keeping configuration order
// within a kind, and drops sources that returned nothing. Stats still count
// every input as a source.
func BuildDigest(runID string, generatedAt time.Time, inputs []SectionInput) digest.Digest {
	ordered := make([]SectionInput, len(inputs))
	copy(ordered, inputs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rank(ordered[i].Kind) < rank(ordered[j].Kind)
	})

	stats := digest.Stats{
		Sources:     len(inputs),
		ItemsByKind: make(map[digest.SectionKind]int),
		Outcomes:    make(map[digest.SummaryOutcome]int),
	}
	sections := make([]digest.Section, 0, len(ordered))
	for _, in := range ordered {
		if len(in.Items) == 0 {
			continue
		}
		heading := in.Heading
		if heading == "" {
			heading = in.Kind.DefaultHeading()
		}
		sections = append(sections, digest.Section{
			SourceID: in.SourceID,
			Kind:     in.Kind,
			Heading:  heading,
			Items:    in.Items,
		})
		stats.SourcesWithData++
		stats.Items += len(in.Items)
		stats.ItemsByKind[in.Kind] += len(in.Items)
		for _, item := range in.Items {
			stats.Outcomes[item.Outcome]++
		}
	}

	return digest.Digest{
		RunID:       runID,
		GeneratedAt: generatedAt.UTC(),
		Sections:    sections,
		Stats:       stats,
	}
}

// rank places unknown kinds after the known ones.
func rank(kind digest.SectionKind) int {
	if p := kind.Priority(); p >= 0 {
		return p
	}
	return len(digest.SectionOrder)
}

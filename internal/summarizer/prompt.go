package summarizer

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/textutil"
)

const baseInstructions = `You are an expert quantum computing researcher and science communicator.
Your task is to create concise, insightful summaries that highlight the most important information.`

const paperInstructions = baseInstructions + `

For research papers, focus on:
- Key findings and novel contributions
- Methodology innovations or improvements
- Practical implications for quantum computing
- Potential impact on the field

Format the answer as an HTML fragment:
- Use <p> for a 2-3 sentence summary
- Use <ul><li> for key points when appropriate
- Do not repeat the title or the author list
- Avoid boilerplate phrases like "This paper explores"

Keep each summary to 3-4 sentences maximum.`

const newsInstructions = baseInstructions + `

For news items, focus on:
- Major announcements or breakthroughs
- Market impacts and business developments
- Policy or regulatory changes
- Significant partnerships or investments

Format the answer as an HTML fragment:
- Use <p> for a 1-2 sentence summary
- Highlight the source in <em> tags
- Do not repeat the headline
- Focus on actionable insights

Keep each summary to 2-3 sentences maximum.`

const numberedInstructions = `

You will receive %d numbered items. Answer with exactly %d numbered parts in the same order,
each starting on its own line with its marker: [1], [2], and so on.`

// PromptOptions bounds a prompt.
type PromptOptions struct {
	MaxInputChars   int
	MaxOutputTokens int
	Temperature     float64
}

// SystemPrompt returns the framing for a section kind.
func SystemPrompt(kind digest.SectionKind) string {
	if kind == digest.KindNews {
		return newsInstructions
	}
	return paperInstructions
}

// BuildPrompt renders the request for one group of items. The raw text budget
// is shared across the group.
func BuildPrompt(kind digest.SectionKind, items []digest.RawItem, opts PromptOptions) digest.Prompt {
	system := SystemPrompt(kind)
	if len(items) > 1 {
		system += fmt.Sprintf(numberedInstructions, len(items), len(items))
	}

	budget := opts.MaxInputChars
	if budget > 0 && len(items) > 1 {
		budget /= len(items)
	}

	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if len(items) > 1 {
			fmt.Fprintf(&b, "[%d]\n", i+1)
		}
		writeItem(&b, kind, item, budget)
	}

	return digest.Prompt{
		System:          system,
		User:            b.String(),
		MaxOutputTokens: opts.MaxOutputTokens,
		Temperature:     opts.Temperature,
	}
}

func writeItem(b *strings.Builder, kind digest.SectionKind, item digest.RawItem, budget int) {
	text := textutil.Truncate(item.RawText, budget)
	if kind == digest.KindNews {
		fmt.Fprintf(b, "Headline: %s\n", item.Title)
		fmt.Fprintf(b, "Source: %s\n", textutil.OrDefault(item.Publisher, "Unknown"))
		if item.PublishedAt != nil {
			fmt.Fprintf(b, "Published: %s\n", item.PublishedAt.Format("January 2, 2006"))
		}
		if text != "" {
			fmt.Fprintf(b, "Summary: %s", text)
		}
		return
	}
	fmt.Fprintf(b, "Title: %s\n", item.Title)
	fmt.Fprintf(b, "Authors: %s\n", textutil.OrDefault(item.Authors, "N/A"))
	fmt.Fprintf(b, "Abstract: %s", textutil.OrDefault(text, "N/A"))
}

package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/quantumboom/internal/config"
	"github.com/JakeFAU/quantumboom/internal/digest"
)

type completerFunc func(ctx context.Context, prompt digest.Prompt) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt digest.Prompt) (string, error) {
	return f(ctx, prompt)
}

func fastPolicy(attempts int) *ExponentialRetryPolicy {
	return NewExponentialRetryPolicy(attempts, time.Millisecond, 2*time.Millisecond)
}

func testItems(n int) []digest.RawItem {
	items := make([]digest.RawItem, n)
	for i := range items {
		items[i] = digest.RawItem{
			SourceID: "arxiv",
			Title:    fmt.Sprintf("Paper %d", i),
			RawText:  fmt.Sprintf("Abstract number %d about qubits.", i),
		}
	}
	return items
}

func titleOf(prompt digest.Prompt) string {
	for _, line := range strings.Split(prompt.User, "\n") {
		if rest, ok := strings.CutPrefix(line, "Title: "); ok {
			return rest
		}
	}
	return ""
}

func TestSummarizeKeepsOrder(t *testing.T) {
	t.Parallel()

	completer := completerFunc(func(ctx context.Context, prompt digest.Prompt) (string, error) {
		title := titleOf(prompt)
		var n int
		_, _ = fmt.Sscanf(title, "Paper %d", &n)
		// Later items finish first.
		select {
		case <-time.After(time.Duration(10-n) * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "<p>SUMMARY:" + title + "</p>", nil
	})
	s := New(completer, fastPolicy(3), Config{MaxConcurrency: 4, MaxInputChars: 4000}, nil)

	items := testItems(8)
	out := s.Summarize(context.Background(), digest.KindPapers, items)
	require.Len(t, out, 8)
	for i, got := range out {
		assert.Equal(t, items[i], got.Item)
		assert.Equal(t, digest.OutcomeSummarized, got.Outcome)
		assert.Equal(t, fmt.Sprintf("<p>SUMMARY:Paper %d</p>", i), got.SummaryHTML)
		assert.Equal(t, 1, got.Attempts)
	}
}

func TestSummarizeRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	completer := completerFunc(func(context.Context, digest.Prompt) (string, error) {
		if calls.Add(1) == 1 {
			return "", &digest.APIError{Category: digest.CategoryRateLimit, StatusCode: 429}
		}
		return "<p>ok</p>", nil
	})
	s := New(completer, fastPolicy(3), Config{}, nil)

	out := s.Summarize(context.Background(), digest.KindPapers, testItems(1))
	require.Len(t, out, 1)
	assert.Equal(t, digest.OutcomeSummarized, out[0].Outcome)
	assert.Equal(t, 2, out[0].Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSummarizeFallsBackWhenRetriesRunOut(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	var calls atomic.Int32
	completer := completerFunc(func(context.Context, digest.Prompt) (string, error) {
		calls.Add(1)
		return "", &digest.APIError{Category: digest.CategoryServer, StatusCode: 503}
	})
	s := New(completer, fastPolicy(3), Config{FallbackChars: 16}, zap.New(core))

	items := []digest.RawItem{
		{SourceID: "news", Title: "A", RawText: "Quantum <b>error</b> correction & friends reach new milestones today"},
		{SourceID: "news", Title: "B", RawText: "  nan "},
	}
	out := s.Summarize(context.Background(), digest.KindNews, items)
	require.Len(t, out, 2)

	assert.Equal(t, digest.OutcomeFallbackUsed, out[0].Outcome)
	assert.Equal(t, "<p>Quantum error...</p>", out[0].SummaryHTML)
	assert.Equal(t, 3, out[0].Attempts)

	assert.Equal(t, digest.OutcomeFailed, out[1].Outcome)
	assert.Empty(t, out[1].SummaryHTML)

	assert.Equal(t, int32(6), calls.Load())
	entries := logs.FilterMessage("summarization batch").All()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, zap.WarnLevel, e.Level)
		assert.Contains(t, e.ContextMap()["error"], digest.ErrSummarizationFailed.Error())
	}
}

func TestSummarizeDoesNotRetryAuth(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	completer := completerFunc(func(context.Context, digest.Prompt) (string, error) {
		calls.Add(1)
		return "", &digest.APIError{Category: digest.CategoryAuth, StatusCode: 401}
	})
	out := New(completer, fastPolicy(5), Config{}, nil).Summarize(context.Background(), digest.KindPapers, testItems(1))
	assert.Equal(t, digest.OutcomeFallbackUsed, out[0].Outcome)
	assert.Equal(t, 1, out[0].Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSummarizeWithoutCompleter(t *testing.T) {
	t.Parallel()

	out := New(nil, nil, Config{}, nil).Summarize(context.Background(), digest.KindResearch, testItems(3))
	require.Len(t, out, 3)
	for i, got := range out {
		assert.Equal(t, digest.OutcomeFallbackUsed, got.Outcome)
		assert.Equal(t, fmt.Sprintf("<p>Abstract number %d about qubits.</p>", i), got.SummaryHTML)
		assert.Zero(t, got.Attempts)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	out := New(nil, nil, Config{}, nil).Summarize(context.Background(), digest.KindNews, nil)
	assert.Empty(t, out)
}

func TestSummarizeSanitizesReplies(t *testing.T) {
	t.Parallel()

	completer := completerFunc(func(context.Context, digest.Prompt) (string, error) {
		return `<p onclick="x()">Fine</p><script>alert(1)</script>`, nil
	})
	out := New(completer, fastPolicy(1), Config{}, nil).Summarize(context.Background(), digest.KindNews, testItems(1))
	assert.Equal(t, "<p>Fine</p>", out[0].SummaryHTML)

	empty := completerFunc(func(context.Context, digest.Prompt) (string, error) {
		return `<script>alert(1)</script>`, nil
	})
	out = New(empty, fastPolicy(1), Config{}, nil).Summarize(context.Background(), digest.KindNews, testItems(1))
	assert.Equal(t, digest.OutcomeFallbackUsed, out[0].Outcome)
}

func TestSummarizeGroupsSplitReplies(t *testing.T) {
	t.Parallel()

	var prompts atomic.Int32
	completer := completerFunc(func(_ context.Context, prompt digest.Prompt) (string, error) {
		prompts.Add(1)
		if strings.Contains(prompt.User, "Paper 4") {
			return "<p>Only one part for the tail group</p>", nil
		}
		return "[1] <p>first</p>\n[2] <p>second</p>", nil
	})
	grouped := func(digest.SectionKind) int { return 2 }
	s := New(completer, fastPolicy(1), Config{MaxConcurrency: 2, GroupSize: grouped}, nil)

	out := s.Summarize(context.Background(), digest.KindPapers, testItems(5))
	require.Len(t, out, 5)
	assert.Equal(t, int32(3), prompts.Load())

	assert.Equal(t, "<p>first</p>", out[0].SummaryHTML)
	assert.Equal(t, "<p>second</p>", out[1].SummaryHTML)
	assert.Equal(t, "<p>first</p>", out[2].SummaryHTML)
	assert.False(t, out[1].SharedSummary)
	assert.Equal(t, "<p>Only one part for the tail group</p>", out[4].SummaryHTML)
}

func TestSummarizeGroupsShareUnsplittableReply(t *testing.T) {
	t.Parallel()

	completer := completerFunc(func(context.Context, digest.Prompt) (string, error) {
		return "<p>A combined overview.</p>", nil
	})
	grouped := func(digest.SectionKind) int { return 3 }
	out := New(completer, fastPolicy(1), Config{GroupSize: grouped}, nil).Summarize(context.Background(), digest.KindNews, testItems(3))
	require.Len(t, out, 3)
	assert.Equal(t, "<p>A combined overview.</p>", out[0].SummaryHTML)
	assert.False(t, out[0].SharedSummary)
	for _, got := range out[1:] {
		assert.True(t, got.SharedSummary)
		assert.Empty(t, got.SummaryHTML)
		assert.Equal(t, digest.OutcomeSummarized, got.Outcome)
	}
}

func TestSummarizeCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completer := completerFunc(func(ctx context.Context, _ digest.Prompt) (string, error) {
		return "", ctx.Err()
	})
	out := New(completer, fastPolicy(3), Config{RequestsPerSecond: 1}, nil).Summarize(ctx, digest.KindPapers, testItems(2))
	require.Len(t, out, 2)
	for _, got := range out {
		assert.Equal(t, digest.OutcomeFallbackUsed, got.Outcome)
	}
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	s := FromConfig(nil, config.SummarizerConfig{
		Provider:       "openai",
		MaxAttempts:    3,
		MaxConcurrency: 2,
		GroupSize:      config.GroupSizeConfig{News: 4},
	}, nil)
	assert.Equal(t, "none", s.cfg.Provider)
	assert.Equal(t, 4, s.groupSize(digest.KindNews))
	assert.Equal(t, 1, s.groupSize(digest.KindPapers))
	assert.Equal(t, 3, s.retry.MaxAttempts())
}

func TestNewCompleter(t *testing.T) {
	t.Parallel()

	c, err := NewCompleter(context.Background(), config.SummarizerConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = NewCompleter(context.Background(), config.SummarizerConfig{Provider: "openai", APIKey: "sk"})
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = NewCompleter(context.Background(), config.SummarizerConfig{Provider: "openai"})
	require.Error(t, err)

	_, err = NewCompleter(context.Background(), config.SummarizerConfig{Provider: "bard"})
	require.Error(t, err)
}

func TestSplitNumbered(t *testing.T) {
	t.Parallel()

	parts, ok := SplitNumbered("Intro\n[1] one\n[2] two\n", 2)
	require.True(t, ok)
	assert.Equal(t, []string{"one", "two"}, parts)

	parts, ok = SplitNumbered("<p>[1] alpha</p>\n<p>[2] beta</p>", 2)
	require.True(t, ok)
	assert.Equal(t, []string{"<p>alpha</p>", "<p>beta</p>"}, parts)

	parts, ok = SplitNumbered("**[1]** bold\n**[2]** text", 2)
	require.True(t, ok)
	assert.Equal(t, []string{"bold", "text"}, parts)

	_, ok = SplitNumbered("[1] one\n[3] three", 2)
	assert.False(t, ok)
	_, ok = SplitNumbered("[1] one", 2)
	assert.False(t, ok)
	_, ok = SplitNumbered("[1]\n[2] two", 2)
	assert.False(t, ok)
	_, ok = SplitNumbered("see [1] and [2] inline", 2)
	assert.False(t, ok)
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	published := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	news := BuildPrompt(digest.KindNews, []digest.RawItem{{
		Title: "IBM ships", Publisher: "Quantum Weekly", PublishedAt: &published, RawText: strings.Repeat("word ", 100),
	}}, PromptOptions{MaxInputChars: 50, MaxOutputTokens: 1500, Temperature: 0.3})
	assert.Contains(t, news.System, "For news items")
	assert.NotContains(t, news.System, "numbered items")
	assert.Contains(t, news.User, "Headline: IBM ships")
	assert.Contains(t, news.User, "Source: Quantum Weekly")
	assert.Contains(t, news.User, "Published: October 16, 2026")
	assert.Contains(t, news.User, "...")
	assert.Equal(t, 1500, news.MaxOutputTokens)

	papers := BuildPrompt(digest.KindPapers, testItems(2), PromptOptions{MaxInputChars: 4000})
	assert.Contains(t, papers.System, "For research papers")
	assert.Contains(t, papers.System, "2 numbered items")
	assert.True(t, strings.HasPrefix(papers.User, "[1]\nTitle: Paper 0"))
	assert.Contains(t, papers.User, "\n\n[2]\nTitle: Paper 1")
	assert.Contains(t, papers.User, "Authors: N/A")
}

func TestRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewExponentialRetryPolicy(3, 100*time.Millisecond, 300*time.Millisecond)
	assert.False(t, p.ShouldRetry(nil, 1))
	assert.True(t, p.ShouldRetry(&digest.APIError{Category: digest.CategoryRateLimit}, 1))
	assert.True(t, p.ShouldRetry(&digest.APIError{Category: digest.CategoryServer}, 2))
	assert.False(t, p.ShouldRetry(&digest.APIError{Category: digest.CategoryServer}, 3))
	assert.False(t, p.ShouldRetry(&digest.APIError{Category: digest.CategoryAuth}, 1))
	assert.False(t, p.ShouldRetry(&digest.APIError{Category: digest.CategoryBadRequest}, 1))
	assert.False(t, p.ShouldRetry(context.Canceled, 1))
	assert.True(t, p.ShouldRetry(errors.New("connection reset"), 1))

	for attempt := 0; attempt < 5; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}

	defaults := NewExponentialRetryPolicy(0, 0, 0)
	assert.Equal(t, 3, defaults.MaxAttempts())
}

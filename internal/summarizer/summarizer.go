package summarizer

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/metrics"
	"github.com/JakeFAU/quantumboom/internal/textutil"
)

// Config tunes a Summarizer.
type Config struct {
	// Provider labels metrics and logs.
	Provider          string
	MaxInputChars     int
	MaxOutputTokens   int
	Temperature       float64
	MaxConcurrency    int
	RequestsPerSecond float64
	// Timeout bounds a single completion call.
	Timeout       time.Duration
	FallbackChars int
	// GroupSize returns how many items share one call for a kind.
	GroupSize func(digest.SectionKind) int
}

// Summarizer produces one SummarizedItem per RawItem.
type Summarizer struct {
	completer digest.Completer
	retry     RetryPolicy
	limiter   *rate.Limiter
	policy    *bluemonday.Policy
	cfg       Config
	logger    *zap.Logger
}

// New builds a Summarizer. A nil completer sends every item to the fallback.
func New(completer digest.Completer, retry RetryPolicy, cfg Config, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry == nil {
		retry = NewExponentialRetryPolicy(0, 0, 0)
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.FallbackChars <= 0 {
		cfg.FallbackChars = 300
	}
	if cfg.Provider == "" {
		cfg.Provider = "none"
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Summarizer{
		completer: completer,
		retry:     retry,
		limiter:   rate.NewLimiter(limit, cfg.MaxConcurrency),
		policy:    bluemonday.UGCPolicy(),
		cfg:       cfg,
		logger:    logger,
	}
}

func (s *Summarizer) groupSize(kind digest.SectionKind) int {
	if s.cfg.GroupSize == nil {
		return 1
	}
	if n := s.cfg.GroupSize(kind); n > 1 {
		return n
	}
	return 1
}

// Summarize summarizes items of one source. The result has the same length
// and order as items.
func (s *Summarizer) Summarize(ctx context.Context, kind digest.SectionKind, items []digest.RawItem) []digest.SummarizedItem {
	out := make([]digest.SummarizedItem, len(items))
	if len(items) == 0 {
		return out
	}
	size := s.groupSize(kind)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrency)
	for start, group := 0, 0; start < len(items); start, group = start+size, group+1 {
		end := min(start+size, len(items))
		g.Go(func() error {
			s.summarizeGroup(gctx, kind, group, items[start:end], out[start:end])
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range out {
		metrics.ObserveSummary(string(kind), string(item.Outcome))
	}
	return out
}

// summarizeGroup fills dst, which has the same length as items.
func (s *Summarizer) summarizeGroup(ctx context.Context, kind digest.SectionKind, group int, items []digest.RawItem, dst []digest.SummarizedItem) {
	sourceID := items[0].SourceID
	fields := []zap.Field{
		zap.String("source", sourceID),
		zap.String("kind", string(kind)),
		zap.Int("group", group),
		zap.Int("items", len(items)),
	}

	if s.completer == nil {
		s.fallback(items, dst, 0)
		s.logger.Info("summarization batch", append(fields,
			zap.String("outcome", string(dst[0].Outcome)), zap.Int("attempts", 0))...)
		return
	}

	prompt := BuildPrompt(kind, items, PromptOptions{
		MaxInputChars:   s.cfg.MaxInputChars,
		MaxOutputTokens: s.cfg.MaxOutputTokens,
		Temperature:     s.cfg.Temperature,
	})
	reply, attempts, err := s.complete(ctx, prompt)
	if err == nil {
		reply = strings.TrimSpace(s.policy.Sanitize(reply))
		if reply == "" {
			err = &digest.APIError{Category: digest.CategoryServer, Message: "empty completion"}
		}
	}
	if err != nil {
		s.fallback(items, dst, attempts)
		s.logger.Warn("summarization batch", append(fields,
			zap.String("outcome", string(dst[0].Outcome)),
			zap.Int("attempts", attempts),
			zap.Error(fmt.Errorf("%w: %w", digest.ErrSummarizationFailed, err)))...)
		return
	}

	s.assign(items, dst, reply, attempts)
	s.logger.Info("summarization batch", append(fields,
		zap.String("outcome", string(digest.OutcomeSummarized)),
		zap.Int("attempts", attempts),
		zap.Bool("shared", len(items) > 1 && dst[len(dst)-1].SharedSummary))...)
}

// assign distributes a successful reply over the group.
func (s *Summarizer) assign(items []digest.RawItem, dst []digest.SummarizedItem, reply string, attempts int) {
	if len(items) == 1 {
		dst[0] = digest.SummarizedItem{Item: items[0], SummaryHTML: reply, Outcome: digest.OutcomeSummarized, Attempts: attempts}
		return
	}
	if parts, ok := SplitNumbered(reply, len(items)); ok {
		for i := range items {
			dst[i] = digest.SummarizedItem{
				Item:        items[i],
				SummaryHTML: strings.TrimSpace(s.policy.Sanitize(parts[i])),
				Outcome:     digest.OutcomeSummarized,
				Attempts:    attempts,
			}
		}
		return
	}
	for i := range items {
		dst[i] = digest.SummarizedItem{Item: items[i], Outcome: digest.OutcomeSummarized, Attempts: attempts}
		if i == 0 {
			dst[i].SummaryHTML = reply
		} else {
			dst[i].SharedSummary = true
		}
	}
}

func (s *Summarizer) fallback(items []digest.RawItem, dst []digest.SummarizedItem, attempts int) {
	for i, item := range items {
		dst[i] = Fallback(item, s.cfg.FallbackChars)
		dst[i].Attempts = attempts
	}
}

// Fallback builds the deterministic excerpt summary for item.
func Fallback(item digest.RawItem, limit int) digest.SummarizedItem {
	text := textutil.HTMLToText(item.RawText)
	if textutil.Blank(text) {
		return digest.SummarizedItem{Item: item, Outcome: digest.OutcomeFailed}
	}
	excerpt := html.EscapeString(textutil.Truncate(text, limit))
	return digest.SummarizedItem{
		Item:        item,
		SummaryHTML: "<p>" + excerpt + "</p>",
		Outcome:     digest.OutcomeFallbackUsed,
	}
}

// complete calls the completer under the retry policy and returns the reply
// and the number of attempts made.
func (s *Summarizer) complete(ctx context.Context, prompt digest.Prompt) (string, int, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return "", attempt - 1, lastErr
		}

		callCtx, cancel := s.callContext(ctx)
		start := time.Now()
		reply, err := s.completer.Complete(callCtx, prompt)
		cancel()

		if err == nil {
			metrics.ObserveCompletion(s.cfg.Provider, "ok", time.Since(start))
			return reply, attempt, nil
		}
		lastErr = err
		metrics.ObserveCompletion(s.cfg.Provider, string(digest.CategoryOf(err)), time.Since(start))

		if ctx.Err() != nil || !s.retry.ShouldRetry(err, attempt) {
			return "", attempt, err
		}
		wait := s.retry.Backoff(attempt - 1)
		s.logger.Debug("retrying completion",
			zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", attempt, errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}

func (s *Summarizer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

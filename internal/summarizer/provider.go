package summarizer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/config"
	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/summarizer/cohere"
	"github.com/JakeFAU/quantumboom/internal/summarizer/gemini"
	"github.com/JakeFAU/quantumboom/internal/summarizer/openai"
)

// NewCompleter returns the configured provider, or nil for provider "none".
func NewCompleter(ctx context.Context, cfg config.SummarizerConfig) (digest.Completer, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		c, err := openai.New(openai.Config{
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Endpoint: cfg.Endpoint,
			Timeout:  cfg.Timeout(),
		}, nil)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "gemini":
		c, err := gemini.New(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "cohere":
		c, err := cohere.New(cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported summarizer provider %q", cfg.Provider)
	}
}

// FromConfig wires a Summarizer around completer using cfg.
func FromConfig(completer digest.Completer, cfg config.SummarizerConfig, logger *zap.Logger) *Summarizer {
	policy := NewExponentialRetryPolicy(
		cfg.MaxAttempts,
		time.Duration(cfg.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.BackoffMaxMs)*time.Millisecond,
	)
	provider := cfg.Provider
	if completer == nil {
		provider = "none"
	}
	return New(completer, policy, Config{
		Provider:          provider,
		MaxInputChars:     cfg.MaxInputChars,
		MaxOutputTokens:   cfg.MaxOutputTokens,
		Temperature:       cfg.Temperature,
		MaxConcurrency:    cfg.MaxConcurrency,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Timeout:           cfg.Timeout(),
		FallbackChars:     cfg.FallbackChars,
		GroupSize:         cfg.GroupSize.For,
	}, logger)
}

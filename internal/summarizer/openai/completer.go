// Package openai implements digest.Completer over the OpenAI chat
// completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

const (
	// DefaultEndpoint is the public API base.
	DefaultEndpoint = "https://api.openai.com/v1"
	// DefaultModel matches the model the digest prompts were tuned on.
	DefaultModel = "gpt-3.5-turbo"

	maxErrorBody = 4 << 10
)

// Config configures the client.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// Completer calls POST {endpoint}/chat/completions.
type Completer struct {
	cfg    Config
	client *http.Client
}

// New builds a Completer. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Completer{cfg: cfg, client: client}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete sends one chat completion.
func (c *Completer) Complete(ctx context.Context, prompt digest.Prompt) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt.User})

	payload, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   prompt.MaxOutputTokens,
		Temperature: prompt.Temperature,
	})
	if err != nil {
		return "", &digest.APIError{Category: digest.CategoryBadRequest, Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", &digest.APIError{Category: digest.CategoryBadRequest, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	// #nosec G107 -- endpoint comes from operator config.
	resp, err := c.client.Do(req)
	if err != nil {
		return "", &digest.APIError{Category: digest.CategoryNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &digest.APIError{Category: digest.CategoryServer, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", &digest.APIError{Category: digest.CategoryServer, StatusCode: resp.StatusCode, Message: "no choices returned"}
	}
	return parsed.Choices[0].Message.Content, nil
}

func statusError(resp *http.Response) *digest.APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := http.StatusText(resp.StatusCode)
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	return &digest.APIError{
		Category:   digest.CategoryForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    msg,
		Err:        fmt.Errorf("openai status %d", resp.StatusCode),
	}
}

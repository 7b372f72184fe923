// Package cohere implements digest.Completer with the Cohere chat API.
package cohere

import (
	"context"
	"errors"
	"strings"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

// DefaultModel is used when none is configured.
const DefaultModel = "command-r"

type chatFunc func(ctx context.Context, req *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error)

// Completer sends each prompt as a single chat turn.
type Completer struct {
	chat  chatFunc
	model string
}

// New builds a Completer authenticated with apiKey.
func New(apiKey, model string) (*Completer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("cohere api key is required")
	}
	client := cohereclient.NewClient(cohereclient.WithToken(apiKey))
	return newWithChat(func(ctx context.Context, req *cohere.ChatRequest) (*cohere.NonStreamedChatResponse, error) {
		return client.Chat(ctx, req)
	}, model), nil
}

func newWithChat(chat chatFunc, model string) *Completer {
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = DefaultModel
	}
	return &Completer{chat: chat, model: model}
}

// Complete sends one chat request.
func (c *Completer) Complete(ctx context.Context, prompt digest.Prompt) (string, error) {
	req := &cohere.ChatRequest{
		Message:     prompt.User,
		Model:       &c.model,
		Temperature: &prompt.Temperature,
	}
	if prompt.System != "" {
		req.Preamble = &prompt.System
	}
	if prompt.MaxOutputTokens > 0 {
		req.MaxTokens = &prompt.MaxOutputTokens
	}

	resp, err := c.chat(ctx, req)
	if err != nil {
		var apiErr *core.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
			return "", &digest.APIError{
				Category:   digest.CategoryForStatus(apiErr.StatusCode),
				StatusCode: apiErr.StatusCode,
				Message:    "cohere chat failed",
				Err:        err,
			}
		}
		return "", &digest.APIError{Category: digest.CategoryNetwork, Message: "cohere chat failed", Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return "", &digest.APIError{Category: digest.CategoryServer, Message: "empty cohere response"}
	}
	return resp.Text, nil
}

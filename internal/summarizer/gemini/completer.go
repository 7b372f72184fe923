// Package gemini implements digest.Completer with the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

// DefaultModel is used when none is configured.
const DefaultModel = "gemini-2.0-flash"

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Completer calls Models.GenerateContent.
type Completer struct {
	models generator
	model  string
}

// New connects to the Gemini API with apiKey.
func New(ctx context.Context, apiKey, model string) (*Completer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newWithGenerator(client.Models, model), nil
}

func newWithGenerator(models generator, model string) *Completer {
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = DefaultModel
	}
	return &Completer{models: models, model: model}
}

// Complete generates one reply.
func (c *Completer) Complete(ctx context.Context, prompt digest.Prompt) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(prompt.Temperature)),
	}
	if prompt.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(prompt.MaxOutputTokens) // #nosec G115 -- bounded by config
	}
	if prompt.System != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	resp, err := c.models.GenerateContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(prompt.User, genai.RoleUser)}, config)
	if err != nil {
		return "", classify(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &digest.APIError{Category: digest.CategoryServer, Message: "empty gemini response"}
	}
	return text, nil
}

func classify(err error) *digest.APIError {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}
	if code == 0 {
		return &digest.APIError{Category: digest.CategoryNetwork, Message: "gemini request failed", Err: err}
	}
	return &digest.APIError{
		Category:   digest.CategoryForStatus(code),
		StatusCode: code,
		Message:    "gemini request failed",
		Err:        err,
	}
}

package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return f.resp, f.err
}

func TestComplete(t *testing.T) {
	t.Parallel()

	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText("<p>Summary</p>", genai.RoleModel)}},
	}}
	c := newWithGenerator(fake, "gpt-3.5-turbo")

	reply, err := c.Complete(context.Background(), digest.Prompt{System: "sys", User: "body", MaxOutputTokens: 500, Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "<p>Summary</p>", reply)
	assert.Equal(t, DefaultModel, fake.model)
	require.Len(t, fake.contents, 1)
	assert.Equal(t, "body", fake.contents[0].Parts[0].Text)
	assert.Equal(t, int32(500), fake.config.MaxOutputTokens)
	require.NotNil(t, fake.config.SystemInstruction)
	assert.Equal(t, "sys", fake.config.SystemInstruction.Parts[0].Text)
}

func TestCompleteErrors(t *testing.T) {
	t.Parallel()

	c := newWithGenerator(&fakeModels{err: genai.APIError{Code: 429, Message: "quota"}}, "gemini-2.0-flash")
	_, err := c.Complete(context.Background(), digest.Prompt{User: "x"})
	assert.Equal(t, digest.CategoryRateLimit, digest.CategoryOf(err))

	c = newWithGenerator(&fakeModels{err: errors.New("dial tcp")}, "")
	_, err = c.Complete(context.Background(), digest.Prompt{User: "x"})
	assert.Equal(t, digest.CategoryNetwork, digest.CategoryOf(err))

	c = newWithGenerator(&fakeModels{resp: &genai.GenerateContentResponse{}}, "")
	_, err = c.Complete(context.Background(), digest.Prompt{User: "x"})
	assert.Equal(t, digest.CategoryServer, digest.CategoryOf(err))
}

func TestNewRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "", "")
	require.Error(t, err)
}

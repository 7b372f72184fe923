package digest

import (
	"context"
	"io"
	"time"
)

// Source fetches and normalizes items from one configured endpoint.
type Source interface {
	ID() string
	Kind() SectionKind
	Fetch(ctx context.Context) ([]RawItem, error)
}

// Completer sends a prompt to a language-model API and returns the reply text.
// Failures should be reported as *APIError so callers can decide on retries.
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Fetcher downloads a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// FetchRequest describes one download.
type FetchRequest struct {
	URL     string
	Headers map[string][]string
	Timeout time.Duration
}

// FetchResponse carries the downloaded body and metadata.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// DeployPublisher uploads a rendered directory to a hosting target.
type DeployPublisher interface {
	Publish(ctx context.Context, dir string) (Deployment, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

package digest

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSourceUnavailable marks an adapter that produced no items because of a network or parse failure.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrSummarizationFailed marks a completion that exhausted its retries.
	ErrSummarizationFailed = errors.New("summarization failed")
)

// ErrorCategory buckets completion API failures.
type ErrorCategory string

// Completion error categories.
const (
	CategoryAuth       ErrorCategory = "auth"
	CategoryRateLimit  ErrorCategory = "rate_limit"
	CategoryServer     ErrorCategory = "server"
	CategoryNetwork    ErrorCategory = "network"
	CategoryBadRequest ErrorCategory = "bad_request"
)

// Retryable reports whether a failure in this category may succeed on a later attempt.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryRateLimit, CategoryServer, CategoryNetwork:
		return true
	default:
		return false
	}
}

// CategoryForStatus maps an HTTP status code onto an ErrorCategory.
func CategoryForStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuth
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status == http.StatusRequestTimeout:
		return CategoryNetwork
	case status >= http.StatusInternalServerError:
		return CategoryServer
	case status >= http.StatusBadRequest:
		return CategoryBadRequest
	default:
		return CategoryServer
	}
}

// APIError is returned by Completer implementations.
type APIError struct {
	Category   ErrorCategory
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("completion %s error (status %d): %s", e.Category, e.StatusCode, msg)
	}
	return fmt.Sprintf("completion %s error: %s", e.Category, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// CategoryOf extracts the category of err, defaulting to network for unclassified failures.
func CategoryOf(err error) ErrorCategory {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return CategoryNetwork
}

// RenderError is fatal to a run: there is nothing to publish.
type RenderError struct {
	Op  string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// PublishError reports a failed deployment. Local artifacts are kept.
type PublishError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *PublishError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Err != nil:
		return fmt.Sprintf("publish failed (status %d %s): %v", e.StatusCode, e.Reason, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("publish failed (status %d): %s", e.StatusCode, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("publish failed: %s: %v", e.Reason, e.Err)
	default:
		return fmt.Sprintf("publish failed: %s", e.Reason)
	}
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

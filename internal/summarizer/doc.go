// Package summarizer turns raw items into short HTML summaries through a
// language-model Completer.
//
// Calls run concurrently up to a cap and are paced by a token bucket. Each
// call is retried with jittered exponential backoff on rate-limit, server and
// network failures. When retries run out, or no Completer is configured, an
// excerpt of the raw text is used instead, so every item always receives an
// outcome. Results are returned in input order.
package summarizer

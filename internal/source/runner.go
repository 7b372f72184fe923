// Package source runs the configured adapters and collects their items.
//
// Every adapter runs concurrently under its own deadline. A failed adapter
// contributes an empty result carrying digest.ErrSourceUnavailable; it never
// cancels or fails the others.
package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/metrics"
)

// Spec binds an adapter to its presentation and deadline.
type Spec struct {
	Source  digest.Source
	Kind    digest.SectionKind
	Label   string
	Timeout time.Duration
}

func (s Spec) kind() digest.SectionKind {
	if s.Kind != "" {
		return s.Kind
	}
	return s.Source.Kind()
}

// Result is the outcome of one adapter.
type Result struct {
	SourceID string
	Kind     digest.SectionKind
	Label    string
	Items    []digest.RawItem
	Duration time.Duration
	// Err wraps digest.ErrSourceUnavailable when the adapter failed.
	Err error
}

// Runner fetches every source in parallel.
type Runner struct {
	logger *zap.Logger
}

// NewRunner builds a Runner.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Run fetches all sources and returns one Result per spec, in spec order.
func (r *Runner) Run(ctx context.Context, specs []Spec) []Result {
	results := make([]Result, len(specs))
	var g errgroup.Group
	for i, spec := range specs {
		g.Go(func() error {
			results[i] = r.fetchOne(ctx, spec)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) fetchOne(ctx context.Context, spec Spec) Result {
	id := spec.Source.ID()
	res := Result{SourceID: id, Kind: spec.kind(), Label: spec.Label, Items: []digest.RawItem{}}

	fetchCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	start := time.Now()
	items, err := spec.Source.Fetch(fetchCtx)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: %s: %w", digest.ErrSourceUnavailable, id, err)
		metrics.ObserveSource(id, "error", 0)
		r.logger.Warn("source unavailable",
			zap.String("source", id),
			zap.String("kind", string(res.Kind)),
			zap.Duration("duration", res.Duration),
			zap.Error(err),
		)
		return res
	}
	if items != nil {
		res.Items = items
	}
	status := "ok"
	if len(res.Items) == 0 {
		status = "empty"
	}
	metrics.ObserveSource(id, status, len(res.Items))
	r.logger.Info("source fetched",
		zap.String("source", id),
		zap.String("kind", string(res.Kind)),
		zap.Int("items", len(res.Items)),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// CountWithData reports how many results returned at least one item.
func CountWithData(results []Result) int {
	n := 0
	for _, r := range results {
		if len(r.Items) > 0 {
			n++
		}
	}
	return n
}

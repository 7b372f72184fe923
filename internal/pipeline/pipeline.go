// Package pipeline runs one digest build end to end: fetch every source,
// summarize, render and publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/assembler"
	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/metrics"
	"github.com/JakeFAU/quantumboom/internal/source"
)

// State is a run stage.
type State string

// Run states in the order a healthy run visits them.
const (
	StateFetching    State = "fetching"
	StateSummarizing State = "summarizing"
	StateRendering   State = "rendering"
	StatePublishing  State = "publishing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// EventDeployed names the notification sent after a successful publish.
const EventDeployed = "digest.deployed"

// Fetcher runs the configured sources.
type Fetcher interface {
	Run(ctx context.Context, specs []source.Spec) []source.Result
}

// Summarizer turns raw items into summaries; it never fails.
type Summarizer interface {
	Summarize(ctx context.Context, kind digest.SectionKind, items []digest.RawItem) []digest.SummarizedItem
}

// Assembler builds and writes the digest.
type Assembler interface {
	Assemble(ctx context.Context, runID string, now time.Time, inputs []assembler.SectionInput) (digest.Digest, digest.RenderedOutput, error)
}

// Deps wires the pipeline. Deployer and Notifier may be nil.
type Deps struct {
	Sources    []source.Spec
	Fetcher    Fetcher
	Summarizer Summarizer
	Assembler  Assembler
	Deployer   digest.DeployPublisher
	Notifier   digest.Publisher
	Clock      digest.Clock
	IDs        digest.IDGenerator
	Logger     *zap.Logger
}

// Options adjust a run.
type Options struct {
	// SkipPublish stops after rendering.
	SkipPublish bool
	// PushgatewayURL, when set, receives the metrics registry after the run.
	PushgatewayURL string
	PushJob        string
}

// Report summarizes a finished run.
type Report struct {
	RunID      string                  `json:"run_id"`
	State      State                   `json:"state"`
	Stats      digest.Stats            `json:"stats"`
	Output     digest.RenderedOutput   `json:"output"`
	Deployment *digest.Deployment      `json:"deployment,omitempty"`
	Sources    []SourceReport          `json:"sources"`
	Durations  map[State]time.Duration `json:"durations"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

// SourceReport is one adapter outcome.
type SourceReport struct {
	ID    string `json:"id"`
	Items int    `json:"items"`
	Error string `json:"error,omitempty"`
}

// Pipeline executes runs.
type Pipeline struct {
	deps Deps
	opts Options
}

// New validates deps and returns a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Summarizer == nil:
		return nil, errors.New("pipeline: summarizer is required")
	case deps.Assembler == nil:
		return nil, errors.New("pipeline: assembler is required")
	case deps.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	case deps.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.PushJob == "" {
		opts.PushJob = "quantumboom"
	}
	return &Pipeline{deps: deps, opts: opts}, nil
}

type run struct {
	p      *Pipeline
	report Report
	logger *zap.Logger
	stage  time.Time
}

// Run executes one pass. Partial source or summarizer failures degrade the
// digest; render and publish failures fail the run. The report is populated
// as far as the run got.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Report{State: StateFailed}, fmt.Errorf("generate run id: %w", err)
	}
	r := &run{
		p:      p,
		logger: p.deps.Logger.With(zap.String("run_id", runID)),
		report: Report{
			RunID:     runID,
			Durations: make(map[State]time.Duration),
			StartedAt: time.Now(),
		},
	}
	err = r.execute(ctx)
	r.finish(ctx, err)
	return r.report, err
}

func (r *run) execute(ctx context.Context) error {
	deps := r.p.deps

	r.enter(StateFetching)
	results := deps.Fetcher.Run(ctx, deps.Sources)
	withData := source.CountWithData(results)
	for _, res := range results {
		sr := SourceReport{ID: res.SourceID, Items: len(res.Items)}
		if res.Err != nil {
			sr.Error = res.Err.Error()
		}
		r.report.Sources = append(r.report.Sources, sr)
	}
	r.logger.Info(fmt.Sprintf("%d of %d sources returned content", withData, len(results)),
		zap.Int("sources_with_data", withData), zap.Int("sources", len(results)))

	r.enter(StateSummarizing)
	inputs := make([]assembler.SectionInput, 0, len(results))
	for _, res := range results {
		in := assembler.SectionInput{SourceID: res.SourceID, Kind: res.Kind, Heading: res.Label}
		if len(res.Items) > 0 {
			in.Items = deps.Summarizer.Summarize(ctx, res.Kind, res.Items)
		}
		inputs = append(inputs, in)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled: %w", err)
	}

	r.enter(StateRendering)
	d, out, err := deps.Assembler.Assemble(ctx, r.report.RunID, deps.Clock.Now(), inputs)
	r.report.Stats = d.Stats
	r.report.Output = out
	if err != nil {
		return err
	}
	r.logger.Info("Digest rendered",
		zap.Int("items", d.Stats.Items),
		zap.Int("sections", len(d.Sections)),
		zap.String("deploy_dir", out.DeployDir),
		zap.String("backup", out.BackupPath))

	if r.p.opts.SkipPublish || deps.Deployer == nil {
		r.logger.Info("Publishing skipped", zap.String("deploy_dir", out.DeployDir))
		return nil
	}

	r.enter(StatePublishing)
	dep, err := deps.Deployer.Publish(ctx, out.DeployDir)
	if err != nil {
		r.logger.Error("Publish failed; local artifacts kept",
			zap.String("deploy_dir", out.DeployDir),
			zap.String("backup", out.BackupPath),
			zap.Error(err))
		return err
	}
	r.report.Deployment = &dep
	r.logger.Info("Published", zap.String("deploy_id", dep.ID), zap.String("url", dep.URL))
	r.notify(ctx, d, out, dep)
	return nil
}

func (r *run) notify(ctx context.Context, d digest.Digest, out digest.RenderedOutput, dep digest.Deployment) {
	if r.p.deps.Notifier == nil {
		return
	}
	event := digest.DeployEvent{
		RunID:        r.report.RunID,
		DeployID:     dep.ID,
		URL:          dep.URL,
		Fingerprint:  out.Fingerprint,
		GeneratedAt:  d.GeneratedAt,
		Items:        d.Stats.Items,
		Sources:      d.Stats.Sources,
		SourcesFound: d.Stats.SourcesWithData,
	}
	id, err := r.p.deps.Notifier.Publish(ctx, EventDeployed, event)
	if err != nil {
		r.logger.Warn("Deploy notification failed", zap.Error(err))
		return
	}
	r.logger.Debug("Deploy notification sent", zap.String("message_id", id))
}

// enter closes the timing of the current stage and logs the transition.
func (r *run) enter(next State) {
	r.closeStage()
	r.logger.Info("Stage started", zap.String("from", string(r.report.State)), zap.String("state", string(next)))
	r.report.State = next
	r.stage = time.Now()
}

func (r *run) closeStage() {
	if r.report.State != "" && !r.stage.IsZero() {
		r.report.Durations[r.report.State] += time.Since(r.stage)
	}
}

func (r *run) finish(ctx context.Context, err error) {
	r.closeStage()
	r.report.FinishedAt = time.Now()
	failedAt := r.report.State
	if err != nil {
		r.report.State = StateFailed
	} else {
		r.report.State = StateDone
	}
	total := r.report.FinishedAt.Sub(r.report.StartedAt)
	metrics.ObserveRun(string(r.report.State), total, r.report.FinishedAt)

	if err != nil {
		r.logger.Error("Run failed", zap.String("stage", string(failedAt)), zap.Duration("duration", total), zap.Error(err))
	} else {
		r.logger.Info("Run finished", zap.Duration("duration", total), zap.String("summary", r.report.Stats.SourceSummary()))
	}

	if r.p.opts.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if perr := metrics.Push(pushCtx, r.p.opts.PushgatewayURL, r.p.opts.PushJob); perr != nil {
			r.logger.Warn("Metrics push failed", zap.Error(perr))
		}
	}
}

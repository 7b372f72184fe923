// Package app initializes and holds the services one invocation needs,
// acting as a small dependency injection container for the CLI.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/assembler"
	"github.com/JakeFAU/quantumboom/internal/clock/system"
	"github.com/JakeFAU/quantumboom/internal/config"
	"github.com/JakeFAU/quantumboom/internal/deploy"
	"github.com/JakeFAU/quantumboom/internal/digest"
	collyfetcher "github.com/JakeFAU/quantumboom/internal/fetcher/colly"
	"github.com/JakeFAU/quantumboom/internal/hash/sha256"
	"github.com/JakeFAU/quantumboom/internal/id/uuid"
	"github.com/JakeFAU/quantumboom/internal/pipeline"
	"github.com/JakeFAU/quantumboom/internal/publisher"
	"github.com/JakeFAU/quantumboom/internal/source"
	"github.com/JakeFAU/quantumboom/internal/storage"
	"github.com/JakeFAU/quantumboom/internal/summarizer"
)

// App holds the shared services for one CLI invocation.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	fs        afero.Fs
	deps      pipeline.Deps
	deployDir string
	closers   []func() error
}

// Option adjusts Build.
type Option func(*options)

type options struct {
	fs        afero.Fs
	completer digest.Completer
	fetcher   digest.Fetcher
	deployer  digest.DeployPublisher
}

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithCompleter replaces the configured completion provider.
func WithCompleter(c digest.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithFetcher replaces the colly fetcher.
func WithFetcher(f digest.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithDeployer replaces the configured deploy target.
func WithDeployer(d digest.DeployPublisher) Option {
	return func(o *options) { o.deployer = d }
}

// Build creates every service from cfg. It fails fast on the first service
// that cannot be initialized.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	a := &App{cfg: cfg, logger: logger, fs: o.fs}
	logger.Info("Initializing application services", zap.Int("sources", len(cfg.Sources)),
		zap.String("summarizer", cfg.Summarizer.Provider), zap.String("publish", cfg.Publish.Provider))

	fetcher := o.fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   seconds(cfg.HTTP.TimeoutSeconds),
		})
	}
	specs, err := source.Build(cfg.Sources, fetcher, logger)
	if err != nil {
		return nil, err
	}

	completer := o.completer
	if completer == nil {
		completer, err = summarizer.NewCompleter(ctx, cfg.Summarizer)
		if err != nil {
			return nil, fmt.Errorf("summarizer: %w", err)
		}
	}
	sum := summarizer.FromConfig(completer, cfg.Summarizer, logger)

	archive, closeArchive, err := storage.New(ctx, cfg.Archive, o.fs)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeArchive)

	asm := assembler.New(o.fs, assembler.Config{
		OutputDir:     cfg.Output.Dir,
		DeployDirName: cfg.Output.DeployDirName,
		ReleasesDir:   cfg.Output.ReleasesDir,
		BackupPrefix:  cfg.Output.BackupPrefix,
		SiteTitle:     cfg.Output.SiteTitle,
	}, sha256.New(), archive, logger)
	a.deployDir = asm.DeployDir()

	deployer := o.deployer
	if deployer == nil {
		deployer, err = deploy.New(ctx, cfg.Publish, o.fs, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	notifier, closeNotifier, err := publisher.New(ctx, cfg.Notify)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeNotifier)

	a.deps = pipeline.Deps{
		Sources:    specs,
		Fetcher:    source.NewRunner(logger),
		Summarizer: sum,
		Assembler:  asm,
		Deployer:   deployer,
		Notifier:   notifier,
		Clock:      system.New(),
		IDs:        uuid.New(),
		Logger:     logger,
	}
	return a, nil
}

// Pipeline returns a pipeline over the built services.
func (a *App) Pipeline(skipPublish bool) (*pipeline.Pipeline, error) {
	return pipeline.New(a.deps, pipeline.Options{
		SkipPublish:    skipPublish,
		PushgatewayURL: a.cfg.Metrics.PushgatewayURL,
		PushJob:        a.cfg.Metrics.Job,
	})
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the effective configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Fs returns the filesystem artifacts are written to.
func (a *App) Fs() afero.Fs {
	return a.fs
}

// DeployDir returns the directory a preview server should serve.
func (a *App) DeployDir() string {
	return filepath.Clean(a.deployDir)
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

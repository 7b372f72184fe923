// Package cmd defines and implements the CLI commands for the quantumboom executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/app"
	"github.com/JakeFAU/quantumboom/internal/config"
	"github.com/JakeFAU/quantumboom/internal/logging"
)

// envKeyType is the key for storing the runtime in the context.
type envKeyType string

const envKey envKeyType = "env"

// annotationLocal marks commands that render locally and never publish.
const annotationLocal = "quantumboom/local"

// env is what PersistentPreRunE prepares for subcommands.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	closeLog func()
}

// newApp is the application factory. It's a variable so tests can inject
// fakes for the network-facing services.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.Build(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. The returned func
// flushes and closes the logger; it runs even when a subcommand fails.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile string
		current *env
	)
	cmd := &cobra.Command{
		Use:   "quantumboom",
		Short: "Builds and publishes the daily quantum computing digest.",
		Long: `quantumboom pulls research picks, arXiv papers and industry news,
summarizes them with a language model and publishes a single static page.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Loads config and the logger once for every subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, loadOptions(cmd)...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closeLog, err := logging.NewWithFile(cfg.Logging.Development, cfg.Logging.File)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			current = &env{cfg: cfg, logger: logger, closeLog: closeLog}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, current))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); defaults and QUANTUMBOOM_* env vars apply without one")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPreviewCmd())
	cmd.AddCommand(newScheduleCmd())
	cmd.AddCommand(newConfigCmd())

	cleanup := func() {
		if current != nil {
			current.close()
		}
	}
	return cmd, cleanup
}

// loadOptions turns publishing off for local-only commands so they load
// without deploy credentials.
func loadOptions(cmd *cobra.Command) []config.Option {
	local := cmd.Annotations[annotationLocal] == "true"
	if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Value.String() == "true" {
		local = true
	}
	if !local {
		return nil
	}
	return []config.Option{config.WithOverride("publish.provider", "none")}
}

func (e *env) close() {
	_ = e.logger.Sync()
	if e.closeLog != nil {
		e.closeLog()
		e.closeLog = nil
	}
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not initialized")
	}
	return e, nil
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root, cleanup := newRootCmd()
	defer cleanup()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand: one full pipeline pass.
func newRunCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, summarize, render and publish one digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render locally without publishing")
	return cmd
}

func runOnce(cmd *cobra.Command, skipPublish bool) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()

	p, err := a.Pipeline(skipPublish)
	if err != nil {
		return err
	}
	report, err := p.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run %s failed: %w", report.RunID, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", report.Stats.SourceSummary())
	fmt.Fprintf(out, "Digest: %s\n", report.Output.BackupPath)
	if report.Deployment != nil {
		fmt.Fprintf(out, "Published: %s\n", report.Deployment.URL)
	}
	e.logger.Debug("Run command finished", zap.String("run_id", report.RunID))
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/quantumboom/internal/preview"
)

// newPreviewCmd creates the 'preview' subcommand: render without publishing
// and optionally serve the result.
func newPreviewCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a digest locally without publishing",
		Long: `Runs the fetch, summarize and render stages and leaves the result in
the deploy directory. With --serve the directory is served over HTTP until
interrupted.`,
		Annotations: map[string]string{annotationLocal: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer a.Close()

			p, err := a.Pipeline(true)
			if err != nil {
				return err
			}
			report, err := p.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("preview run failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nPreview: %s\n", report.Stats.SourceSummary(), a.DeployDir())

			if addr == "" {
				return nil
			}
			srv := preview.NewServer(a.Fs(), a.DeployDir(), e.logger)
			srv.SetReport(report)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "serve", "", "serve the deploy dir on this address, e.g. :8080")
	return cmd
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/quantumboom/internal/preview"
	"github.com/JakeFAU/quantumboom/internal/schedule"
)

// newScheduleCmd creates the 'schedule' subcommand: repeated runs on a cron
// expression.
func newScheduleCmd() *cobra.Command {
	var (
		spec     string
		timezone string
		runNow   bool
		addr     string
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("invalid timezone %q: %w", timezone, err)
			}
			a, err := newApp(cmd.Context(), e.cfg, e.logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			defer a.Close()

			p, err := a.Pipeline(false)
			if err != nil {
				return err
			}

			var srv *preview.Server
			if addr != "" {
				srv = preview.NewServer(a.Fs(), a.DeployDir(), e.logger)
				go func() {
					if err := srv.ListenAndServe(cmd.Context(), addr); err != nil {
						e.logger.Sugar().Errorw("Preview server failed", "error", err)
					}
				}()
			}

			job := func(ctx context.Context) error {
				report, err := p.Run(ctx)
				if srv != nil {
					srv.SetReport(report)
				}
				return err
			}
			return schedule.New(loc, e.logger).Run(cmd.Context(), spec, runNow, job)
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "0 6 * * *", "cron expression (minute hour dom month dow)")
	cmd.Flags().StringVar(&timezone, "tz", "UTC", "time zone the cron expression is evaluated in")
	cmd.Flags().BoolVar(&runNow, "now", false, "also run once immediately")
	cmd.Flags().StringVar(&addr, "serve", "", "serve the deploy dir and /metrics on this address")
	return cmd
}

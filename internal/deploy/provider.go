// Package deploy selects the hosting target for rendered digests.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/config"
	"github.com/JakeFAU/quantumboom/internal/deploy/netlify"
	"github.com/JakeFAU/quantumboom/internal/digest"
)

// New builds the configured DeployPublisher. Provider "none" returns nil so
// the run stops after rendering.
func New(ctx context.Context, cfg config.PublishConfig, fs afero.Fs, logger *zap.Logger) (digest.DeployPublisher, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "netlify":
		p, err := netlify.New(ctx, fs, netlify.Config{
			Token:        cfg.Token,
			SiteID:       cfg.Target,
			APIBase:      cfg.APIBase,
			Timeout:      seconds(cfg.TimeoutSeconds),
			PollInterval: seconds(cfg.PollIntervalSeconds),
			PollTimeout:  seconds(cfg.PollTimeoutSeconds),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("netlify: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported publish provider %q", cfg.Provider)
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

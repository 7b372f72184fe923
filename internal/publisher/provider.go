// Package publisher selects the deploy notification backend.
package publisher

import (
	"context"
	"fmt"

	"github.com/JakeFAU/quantumboom/internal/config"
	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/publisher/memory"
	"github.com/JakeFAU/quantumboom/internal/publisher/pubsub"
)

// New builds the configured notifier. Provider "none" returns a nil
// publisher. The returned close function is always safe to call.
func New(ctx context.Context, cfg config.NotifyConfig) (digest.Publisher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Provider {
	case "", "none":
		return nil, noop, nil
	case "memory":
		return memory.New(), noop, nil
	case "pubsub":
		pub, closeFn, err := pubsub.Open(ctx, cfg.ProjectID, cfg.Topic)
		if err != nil {
			return nil, noop, err
		}
		return pub, closeFn, nil
	default:
		return nil, noop, fmt.Errorf("unsupported notify provider %q", cfg.Provider)
	}
}

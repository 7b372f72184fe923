// Package storage selects the archive BlobStore for rendered digests.
package storage

import (
	"context"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"github.com/spf13/afero"

	"github.com/JakeFAU/quantumboom/internal/config"
	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/storage/gcs"
	"github.com/JakeFAU/quantumboom/internal/storage/local"
	"github.com/JakeFAU/quantumboom/internal/storage/memory"
	"github.com/JakeFAU/quantumboom/internal/storage/s3"
)

// New builds the configured archive. Provider "none" returns a nil store. The
// returned close function is always safe to call.
func New(ctx context.Context, cfg config.ArchiveConfig, fs afero.Fs) (digest.BlobStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Provider {
	case "", "none":
		return nil, noop, nil
	case "memory":
		return memory.NewBlobStore(), noop, nil
	case "local":
		store, err := local.New(fs, local.Config{BaseDir: cfg.Dir, Prefix: cfg.Prefix})
		if err != nil {
			return nil, noop, fmt.Errorf("local archive: %w", err)
		}
		return store, noop, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("gcs archive: %w", err)
		}
		return store, client.Close, nil
	case "s3":
		store, err := s3.NewFromEnv(ctx, s3.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix, Region: cfg.Region})
		if err != nil {
			return nil, noop, fmt.Errorf("s3 archive: %w", err)
		}
		return store, noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported archive provider %q", cfg.Provider)
	}
}

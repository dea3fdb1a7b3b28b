// Package blobs selects the configured receipt image backend.
package blobs

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/storage"
	"github.com/angelmondragon/fueltax-backend/pkg/storage/bolt"
	"github.com/angelmondragon/fueltax-backend/pkg/storage/gcs"
)

// Store is a blob store that owns resources.
type Store interface {
	storage.BlobStore
	Close() error
}

// Open returns the GCS store, or the local bolt file when
// FUELTAX_BLOB_BACKEND=bolt.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Store, error) {
	if cfg.FeatureFlags.UsesBolt() {
		store, err := bolt.Open(cfg.Bolt.Path)
		if err != nil {
			return nil, fmt.Errorf("open bolt blob store: %w", err)
		}
		if logg != nil {
			logg.Info(logg.WithField(ctx, "path", cfg.Bolt.Path), "using bolt blob store")
		}
		return store, nil
	}
	client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return nil, fmt.Errorf("open gcs blob store: %w", err)
	}
	return client, nil
}

package storage

import (
	"context"
	"fmt"

	"github.com/ned1313/pdf-mirror/internal/config"
)

// NewFromConfig creates the archive backend described by cfg. It returns
// nil with no error when archiving is disabled.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "s3":
		return NewS3Storage(ctx, S3Config{
			Region:         cfg.Region,
			Bucket:         cfg.Bucket,
			Endpoint:       cfg.Endpoint,
			AccessKey:      cfg.AccessKey,
			SecretKey:      cfg.SecretKey,
			ForcePathStyle: cfg.ForcePathStyle,
		})
	case "local":
		return NewLocalStorage(LocalConfig{
			BasePath: cfg.LocalPath,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: s3, local)", cfg.Type)
	}
}

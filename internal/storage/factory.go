package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"server/internal/infra"
)

// NewFromConfig builds the store named by STORAGE_TYPE.
func NewFromConfig(ctx context.Context, cfg *infra.Config) (Store, error) {
	switch cfg.StorageType {
	case "gcs":
		return NewGCSStore(ctx, GCSOptions{
			Bucket:          cfg.GCSBucket,
			PublicBaseURL:   cfg.StorageBaseURL,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
	case "local", "":
		base := cfg.StoragePath
		if base == "" {
			base = "./storage"
		}
		if !filepath.IsAbs(base) {
			if abs, err := filepath.Abs(base); err == nil {
				base = abs
			}
		}
		return NewFileStore(base, cfg.StorageBaseURL)
	default:
		return nil, fmt.Errorf("storage: unsupported type %q", cfg.StorageType)
	}
}

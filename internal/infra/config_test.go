package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_TYPE", "")
	t.Setenv("GENERATION_TIMEOUT_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageType != "local" {
		t.Fatalf("StorageType mismatch: got %q", cfg.StorageType)
	}
	if cfg.GenerationTimeout != 120*time.Second {
		t.Fatalf("GenerationTimeout mismatch: got %v", cfg.GenerationTimeout)
	}
	if cfg.WorkerConcurrency != 3 {
		t.Fatalf("WorkerConcurrency mismatch: got %d", cfg.WorkerConcurrency)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoadConfigRejectsUnknownStorageType(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_TYPE", "s3")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported storage type")
	}
}

func TestLoadConfigGCSRequiresBucket(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_TYPE", "gcs")
	t.Setenv("GCS_BUCKET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing bucket")
	}

	t.Setenv("GCS_BUCKET", "portraits")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.GCSBucket != "portraits" {
		t.Fatalf("GCSBucket mismatch: got %q", cfg.GCSBucket)
	}
}

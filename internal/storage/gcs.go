package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore persists artifacts in a Google Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
	// publicBaseURL, when set, fronts the bucket (CDN domain). Otherwise
	// the canonical storage.googleapis.com URL is returned.
	publicBaseURL string
}

// GCSOptions configures a GCSStore.
type GCSOptions struct {
	Bucket        string
	PublicBaseURL string
	// CredentialsFile is optional; ambient credentials are used when empty.
	CredentialsFile string
}

// NewGCSStore opens a storage client against the configured bucket.
func NewGCSStore(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	if opts.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: create gcs client: %w", err)
	}
	return &GCSStore{
		client:        client,
		bucket:        opts.Bucket,
		publicBaseURL: opts.PublicBaseURL,
	}, nil
}

// Upload writes data to the bucket under key.
func (s *GCSStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	w := s.client.Bucket(s.bucket).Object(cleanKey).NewWriter(ctx)
	w.ContentType = contentTypeForKey(cleanKey)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write object %q: %w", cleanKey, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalize object %q: %w", cleanKey, err)
	}
	return cleanKey, nil
}

// Download reads the object stored at key.
func (s *GCSStore) Download(ctx context.Context, key string) ([]byte, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	r, err := s.client.Bucket(s.bucket).Object(cleanKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("storage: %q: %w", cleanKey, os.ErrNotExist)
		}
		return nil, fmt.Errorf("storage: open object %q: %w", cleanKey, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: read object %q: %w", cleanKey, err)
	}
	return data, nil
}

// Delete removes the object at key. Missing objects are ignored.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(s.bucket).Object(cleanKey).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("storage: delete object %q: %w", cleanKey, err)
	}
	return nil
}

// PublicURL returns the externally reachable URL for key.
func (s *GCSStore) PublicURL(key string) string {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return key
	}
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + cleanKey
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, cleanKey)
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

var _ Store = (*GCSStore)(nil)

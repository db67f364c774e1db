// Package storage abstracts durable artifact storage by key. Two backends
// exist: a local filesystem store for development and test environments, and
// a GCS bucket store for production.
package storage

import "context"

// Store persists artifact bytes by key.
type Store interface {
	// Upload writes data at key and returns the canonical storage key.
	Upload(ctx context.Context, key string, data []byte) (string, error)
	// Download returns the bytes stored at key.
	Download(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
	// PublicURL returns a browser-reachable reference for key.
	PublicURL(key string) string
}

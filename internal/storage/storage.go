// Package storage abstracts the durable object store for artifacts.
package storage

import "context"

// ObjectStorage is the minimal surface the upload path needs. The engine
// behind it is opaque; only durability and public addressing matter here.
type ObjectStorage interface {
	// EnsureBucket creates the bucket if missing. Idempotent.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject stores one object.
	PutObject(ctx context.Context, bucket, path string, data []byte, contentType string) error

	// PublicURL returns the caller-visible URL for a stored object.
	PublicURL(bucket, path string) string
}

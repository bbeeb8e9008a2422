// Package filestore defines the object storage boundary xdb archives query
// logs through.
//
// Providers implement Store. Callers depend only on this package, never on a
// specific provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	info, err := store.PutObject(ctx, "xdb-querylog", key, r, size, "application/x-ndjson")
package filestore

import (
	"context"
	"io"
)

// Reader is the read half of a Store.
type Reader interface {
	// ListObjects returns the objects in bucket that match opts.
	// Virtual directory entries (common prefixes) are included when opts.Recursive is false.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)
}

// Writer is the write half of a Store.
type Writer interface {
	// PutObject uploads size bytes from r to key inside bucket.
	// size may be -1 when unknown.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)
}

// Store is the interface every file storage provider implements.
type Store interface {
	Reader
	Writer

	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// EnsureBucket creates bucket when it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	// Close releases any held resources.
	Close() error
}

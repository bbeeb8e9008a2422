package filestore

import (
	"io"
	"time"
)

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	// Key is the full object path within the bucket (e.g. "querylog/20261014T101500.ndjson").
	Key string `json:"key"`

	// Size is the byte size of the object. -1 if unknown.
	Size int64 `json:"size"`

	ContentType string `json:"content_type,omitempty"`

	// ETag is the object's entity tag, as returned by the backend.
	ETag string `json:"etag,omitempty"`

	LastModified time.Time `json:"last_modified"`

	// IsDir is true when the entry is a common prefix, not a stored object.
	IsDir bool `json:"is_dir,omitempty"`
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// ListOptions controls how ListObjects filters results.
type ListOptions struct {
	// Prefix restricts results to keys starting with this string.
	Prefix string

	// Recursive lists every object under Prefix instead of grouping by
	// virtual directories.
	Recursive bool

	// Limit caps the number of results. 0 means no cap.
	Limit int
}

package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by ObjectStorage.Download for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the interface for object storage operations
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// SubtitleStorage persists subtitle files for a tenant.
//
// Upload stores content under SubtitleKey(tenantID, fileName) and returns a
// public URL. Get and Delete take that same key.
type SubtitleStorage interface {
	// Upload stores the file and returns its public URL.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - content: subtitle text.
	//   - fileName: base name; ".srt" is appended unless it already has a subtitle extension.
	//   - tenantID: tenant scope used as a path prefix.
	// Returns:
	//   - string: publicly resolvable URL.
	//   - error: non-nil if the backend rejected the write.
	Upload(ctx context.Context, content, fileName, tenantID string) (string, error)

	// Get returns the stored content. found is false, with a nil error, when
	// the file does not exist.
	Get(ctx context.Context, key string) (content string, found bool, err error)

	// Delete removes the file. It returns true only when the backend confirmed
	// the deletion; a missing file or any failure yields false.
	Delete(ctx context.Context, key string) bool

	// Name identifies the backend in logs.
	Name() string
}

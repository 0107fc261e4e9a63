package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/timmy/subtitles/internal/domain"
	"github.com/timmy/subtitles/internal/storage"
)

// ObjectStorageResolver serves videos kept in the subtitle bucket. It is the
// only resolver that accepts uploads.
type ObjectStorageResolver struct {
	objects storage.ObjectStorage
	prefix  string
}

// NewObjectStorageResolver creates a resolver for videos stored under prefix.
func NewObjectStorageResolver(objects storage.ObjectStorage, prefix string) *ObjectStorageResolver {
	return &ObjectStorageResolver{objects: objects, prefix: strings.Trim(prefix, "/")}
}

func (r *ObjectStorageResolver) SourceType() domain.SourceType { return domain.SourceTypeObjectStorage }

func (r *ObjectStorageResolver) SupportsUpload() bool { return true }

// Resolve maps an object key to its public URL. Absolute URLs pass through.
func (r *ObjectStorageResolver) Resolve(_ context.Context, sourceURL string) (string, error) {
	ref := strings.TrimSpace(sourceURL)
	if ref == "" {
		return "", fmt.Errorf("%w: empty object key", domain.ErrInvalidSourceURL)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	return r.objects.GetURL(strings.TrimPrefix(ref, "/")), nil
}

// Upload stores the video under "{prefix}/{uuid}-{name}" and returns that key.
func (r *ObjectStorageResolver) Upload(ctx context.Context, name string, reader io.Reader, size int64) (string, error) {
	base := path.Base(name)
	if base == "." || base == "/" {
		base = "video.mp4"
	}
	key := path.Join(r.prefix, uuid.NewString()+"-"+base)
	if err := r.objects.Upload(ctx, key, reader, size, domain.VideoContentType(base)); err != nil {
		return "", fmt.Errorf("failed to upload video: %w", err)
	}
	return key, nil
}

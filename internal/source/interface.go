package source

import (
	"context"
	"io"

	"github.com/timmy/subtitles/internal/domain"
)

// Resolver turns a stored video reference into a URL that can be fetched
// directly with a plain HTTP GET. Each implementation handles one source type.
type Resolver interface {
	// SourceType returns the source type this resolver handles.
	// Parameters: none.
	// Returns:
	//   - domain.SourceType: the tag routed to this resolver.
	SourceType() domain.SourceType

	// Resolve returns a directly fetchable URL for sourceURL.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - sourceURL: reference as stored on the job.
	// Returns:
	//   - string: direct download URL.
	//   - error: non-nil if no URL can be derived.
	Resolve(ctx context.Context, sourceURL string) (string, error)

	// SupportsUpload returns true if Upload stores videos for this source type.
	// Parameters: none.
	// Returns:
	//   - bool: true when Upload is implemented.
	SupportsUpload() bool

	// Upload stores a video and returns the reference to save on a job.
	// Resolvers without upload support return domain.ErrUploadNotSupported.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - name: file name of the video.
	//   - reader: video bytes.
	//   - size: exact byte length of reader.
	// Returns:
	//   - string: source reference accepted by Resolve.
	//   - error: non-nil if the upload fails or is unsupported.
	Upload(ctx context.Context, name string, reader io.Reader, size int64) (string, error)
}

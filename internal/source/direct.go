package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/timmy/subtitles/internal/domain"
)

// DirectResolver handles plain HTTP(S) links; the URL is used as is.
type DirectResolver struct{}

// NewDirectResolver creates a resolver for direct URLs.
func NewDirectResolver() *DirectResolver {
	return &DirectResolver{}
}

func (r *DirectResolver) SourceType() domain.SourceType { return domain.SourceTypeDirectURL }

func (r *DirectResolver) SupportsUpload() bool { return false }

// Resolve returns sourceURL unchanged once it is known to be an absolute http(s) URL.
func (r *DirectResolver) Resolve(_ context.Context, sourceURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not an http(s) url", domain.ErrInvalidSourceURL, sourceURL)
	}
	return sourceURL, nil
}

func (r *DirectResolver) Upload(context.Context, string, io.Reader, int64) (string, error) {
	return "", fmt.Errorf("%s: %w", r.SourceType(), domain.ErrUploadNotSupported)
}

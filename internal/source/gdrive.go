package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/timmy/subtitles/internal/domain"
)

var driveFilePath = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)

// GoogleDriveResolver turns Google Drive share links into direct downloads.
type GoogleDriveResolver struct {
	downloadBase string
}

// NewGoogleDriveResolver creates a resolver for Google Drive share links.
func NewGoogleDriveResolver() *GoogleDriveResolver {
	return &GoogleDriveResolver{downloadBase: "https://drive.google.com/uc"}
}

func (r *GoogleDriveResolver) SourceType() domain.SourceType { return domain.SourceTypeGoogleDrive }

func (r *GoogleDriveResolver) SupportsUpload() bool { return false }

// Resolve extracts the file id from a ".../file/d/{id}/..." path or an "id="
// query parameter.
func (r *GoogleDriveResolver) Resolve(_ context.Context, sourceURL string) (string, error) {
	id := ExtractDriveFileID(sourceURL)
	if id == "" {
		return "", fmt.Errorf("%w: no Google Drive file id in %q", domain.ErrInvalidSourceURL, sourceURL)
	}
	q := url.Values{}
	q.Set("export", "download")
	q.Set("id", id)
	return r.downloadBase + "?" + q.Encode(), nil
}

func (r *GoogleDriveResolver) Upload(context.Context, string, io.Reader, int64) (string, error) {
	return "", fmt.Errorf("%s: %w", r.SourceType(), domain.ErrUploadNotSupported)
}

// ExtractDriveFileID returns the Drive file id in link, or "".
func ExtractDriveFileID(link string) string {
	link = strings.TrimSpace(link)
	if m := driveFilePath.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get("id")
}

package domain

import "fmt"

// SourceType tags where a talk's video lives and selects the resolver for it.
type SourceType string

const (
	SourceTypeDirectURL     SourceType = "direct_url"
	SourceTypeGoogleDrive   SourceType = "google_drive"
	SourceTypeObjectStorage SourceType = "object_storage"
)

// ParseSourceType accepts the canonical tag or a few common spellings.
func ParseSourceType(s string) (SourceType, error) {
	switch s {
	case "", "direct_url", "direct", "url", "DirectUrl":
		return SourceTypeDirectURL, nil
	case "google_drive", "gdrive", "drive", "GoogleDrive":
		return SourceTypeGoogleDrive, nil
	case "object_storage", "s3", "storage", "ObjectStorage":
		return SourceTypeObjectStorage, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedSourceType, s)
}

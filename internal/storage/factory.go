package storage

import (
	"fmt"
	"strings"

	"github.com/timmy/subtitles/internal/logger"
)

// NewStorage creates an S3-backed ObjectStorage based on the configuration.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, and bucket.
//
// Returns:
//   - *S3Storage: initialized storage client.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *S3Config) (*S3Storage, error) {
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}
	return NewS3Storage(cfg)
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "", strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	default:
		return StorageTypeS3Compatible
	}
}

// Subtitle storage providers.
const (
	ProviderS3     = "s3"
	ProviderGitHub = "github"
)

// NewSubtitleStorage selects the subtitle backend. objects is required for the
// s3 provider; gh is required for the github provider.
func NewSubtitleStorage(provider string, objects ObjectStorage, gh *GitHubConfig, log *logger.Logger) (SubtitleStorage, error) {
	switch provider {
	case ProviderS3:
		if objects == nil {
			return nil, fmt.Errorf("subtitle storage %q: object storage not configured", provider)
		}
		return NewObjectSubtitleStore(objects, log), nil
	case ProviderGitHub:
		if gh == nil {
			return nil, fmt.Errorf("subtitle storage %q: repository not configured", provider)
		}
		return NewGitHubSubtitleStore(gh, log), nil
	}
	return nil, fmt.Errorf("unknown subtitle storage provider %q", provider)
}

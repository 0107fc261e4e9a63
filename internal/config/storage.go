package config

import "fmt"

// Subtitle storage backends.
const (
	StorageProviderS3     = "s3"
	StorageProviderGitHub = "github"
)

// StorageConfig selects and configures the subtitle storage backend.
type StorageConfig struct {
	Provider string       `mapstructure:"provider"`
	S3       S3Config     `mapstructure:"s3"`
	GitHub   GitHubConfig `mapstructure:"github"`
}

// S3Config configures S3 or any S3-compatible endpoint (R2, MinIO, Wasabi, ...).
type S3Config struct {
	Type      string `mapstructure:"type"` // r2, s3, s3compatible; detected from endpoint when empty
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

// GitHubConfig configures the repository-backed subtitle store.
type GitHubConfig struct {
	Owner    string `mapstructure:"owner"`
	Repo     string `mapstructure:"repo"`
	Branch   string `mapstructure:"branch"`
	Token    string `mapstructure:"token"`
	BasePath string `mapstructure:"base_path"`
	APIURL   string `mapstructure:"api_url"`
}

// Validate returns an error describing the first missing setting of the selected provider.
func (c *StorageConfig) Validate() error {
	switch c.Provider {
	case StorageProviderS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("storage %q: bucket is required", c.Provider)
		}
	case StorageProviderGitHub:
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			return fmt.Errorf("storage %q: owner and repo are required", c.Provider)
		}
	default:
		return fmt.Errorf("storage: unknown provider %q", c.Provider)
	}
	return nil
}

package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/subtitles/internal/logger"
)

// GitHubConfig points the store at a repository branch.
type GitHubConfig struct {
	Owner    string
	Repo     string
	Branch   string
	Token    string
	BasePath string // directory inside the repository
	APIURL   string // defaults to https://api.github.com
	RawURL   string // defaults to https://raw.githubusercontent.com
}

// GitHubSubtitleStore keeps subtitle files in a GitHub repository through the
// contents API. Every write is a commit.
type GitHubSubtitleStore struct {
	client *resty.Client
	cfg    GitHubConfig
	logger *logger.Logger
}

type githubContent struct {
	Path        string `json:"path"`
	SHA         string `json:"sha"`
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	DownloadURL string `json:"download_url"`
}

type githubWriteRequest struct {
	Message string `json:"message"`
	Content string `json:"content,omitempty"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type githubWriteResponse struct {
	Content *githubContent `json:"content"`
}

type githubError struct {
	Message string `json:"message"`
}

// NewGitHubSubtitleStore creates a repository-backed SubtitleStorage.
func NewGitHubSubtitleStore(cfg *GitHubConfig, log *logger.Logger) *GitHubSubtitleStore {
	c := *cfg
	if c.APIURL == "" {
		c.APIURL = "https://api.github.com"
	}
	if c.RawURL == "" {
		c.RawURL = "https://raw.githubusercontent.com"
	}
	if c.Branch == "" {
		c.Branch = "main"
	}
	c.APIURL = strings.TrimSuffix(c.APIURL, "/")
	c.RawURL = strings.TrimSuffix(c.RawURL, "/")

	client := resty.New()
	client.SetBaseURL(c.APIURL)
	client.SetHeader("Accept", "application/vnd.github+json")
	client.SetHeader("X-GitHub-Api-Version", "2022-11-28")
	if c.Token != "" {
		client.SetAuthToken(c.Token)
	}
	client.SetTimeout(30 * time.Second)

	return &GitHubSubtitleStore{client: client, cfg: c, logger: log}
}

func (s *GitHubSubtitleStore) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// Name implements SubtitleStorage.
func (s *GitHubSubtitleStore) Name() string { return ProviderGitHub }

func (s *GitHubSubtitleStore) repoPath(key string) string {
	return path.Join(strings.Trim(s.cfg.BasePath, "/"), key)
}

func (s *GitHubSubtitleStore) contentsURL(repoPath string) string {
	segments := strings.Split(repoPath, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s",
		url.PathEscape(s.cfg.Owner), url.PathEscape(s.cfg.Repo), strings.Join(segments, "/"))
}

// fetch returns the file at repoPath, or nil when it does not exist.
func (s *GitHubSubtitleStore) fetch(ctx context.Context, repoPath string) (*githubContent, error) {
	var file githubContent
	var apiErr githubError
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("ref", s.cfg.Branch).
		SetResult(&file).
		SetError(&apiErr).
		Get(s.contentsURL(repoPath))
	if err != nil {
		return nil, fmt.Errorf("failed to call GitHub contents API: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GitHub contents API returned error: HTTP %d: %s", resp.StatusCode(), apiErr.Message)
	}
	return &file, nil
}

// Upload implements SubtitleStorage. An existing file is updated in place,
// which requires its current blob SHA.
func (s *GitHubSubtitleStore) Upload(ctx context.Context, content, fileName, tenantID string) (string, error) {
	repoPath := s.repoPath(SubtitleKey(tenantID, fileName))

	existing, err := s.fetch(ctx, repoPath)
	if err != nil {
		return "", err
	}

	req := githubWriteRequest{
		Message: fmt.Sprintf("Add subtitles %s", path.Base(repoPath)),
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		Branch:  s.cfg.Branch,
	}
	if existing != nil {
		req.SHA = existing.SHA
		req.Message = fmt.Sprintf("Update subtitles %s", path.Base(repoPath))
	}

	var result githubWriteResponse
	var apiErr githubError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&apiErr).
		Put(s.contentsURL(repoPath))
	if err != nil {
		return "", fmt.Errorf("failed to call GitHub contents API: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("GitHub contents API returned error: HTTP %d: %s", resp.StatusCode(), apiErr.Message)
	}

	if result.Content != nil && result.Content.DownloadURL != "" {
		return result.Content.DownloadURL, nil
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", s.cfg.RawURL, s.cfg.Owner, s.cfg.Repo, s.cfg.Branch, repoPath), nil
}

// Get implements SubtitleStorage.
func (s *GitHubSubtitleStore) Get(ctx context.Context, key string) (string, bool, error) {
	file, err := s.fetch(ctx, s.repoPath(key))
	if err != nil {
		return "", false, err
	}
	if file == nil {
		return "", false, nil
	}

	// The API wraps base64 content at 60 columns.
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
	if err != nil {
		return "", false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return string(data), true, nil
}

// Delete implements SubtitleStorage.
func (s *GitHubSubtitleStore) Delete(ctx context.Context, key string) bool {
	repoPath := s.repoPath(key)

	file, err := s.fetch(ctx, repoPath)
	if err != nil {
		s.log(ctx).WithError(err).WithField("key", key).Warn("Failed to look up subtitle before delete")
		return false
	}
	if file == nil {
		return false
	}

	var apiErr githubError
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(githubWriteRequest{
			Message: fmt.Sprintf("Delete subtitles %s", path.Base(repoPath)),
			SHA:     file.SHA,
			Branch:  s.cfg.Branch,
		}).
		SetError(&apiErr).
		Delete(s.contentsURL(repoPath))
	if err != nil {
		s.log(ctx).WithError(err).WithField("key", key).Warn("Failed to delete subtitle")
		return false
	}
	if resp.IsError() {
		s.log(ctx).WithFields(logger.Fields{
			"key":              key,
			logger.FieldStatus: resp.StatusCode(),
		}).Warnf("GitHub refused delete: %s", apiErr.Message)
		return false
	}
	return true
}

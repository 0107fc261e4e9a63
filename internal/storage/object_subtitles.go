package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/timmy/subtitles/internal/logger"
)

// ObjectSubtitleStore keeps subtitle files in an ObjectStorage bucket.
type ObjectSubtitleStore struct {
	objects ObjectStorage
	logger  *logger.Logger
}

// NewObjectSubtitleStore wraps objects as a SubtitleStorage.
func NewObjectSubtitleStore(objects ObjectStorage, log *logger.Logger) *ObjectSubtitleStore {
	return &ObjectSubtitleStore{objects: objects, logger: log}
}

func (s *ObjectSubtitleStore) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// Name implements SubtitleStorage.
func (s *ObjectSubtitleStore) Name() string { return ProviderS3 }

// Upload implements SubtitleStorage.
func (s *ObjectSubtitleStore) Upload(ctx context.Context, content, fileName, tenantID string) (string, error) {
	key := SubtitleKey(tenantID, fileName)
	if err := s.objects.Upload(ctx, key, strings.NewReader(content), int64(len(content)), subtitleContentType(key)); err != nil {
		return "", err
	}
	return s.objects.GetURL(key), nil
}

// Get implements SubtitleStorage.
func (s *ObjectSubtitleStore) Get(ctx context.Context, key string) (string, bool, error) {
	body, err := s.objects.Download(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Delete implements SubtitleStorage.
func (s *ObjectSubtitleStore) Delete(ctx context.Context, key string) bool {
	exists, err := s.objects.Exists(ctx, key)
	if err != nil {
		s.log(ctx).WithError(err).WithField("key", key).Warn("Failed to check subtitle before delete")
		return false
	}
	if !exists {
		return false
	}
	if err := s.objects.Delete(ctx, key); err != nil {
		s.log(ctx).WithError(err).WithField("key", key).Warn("Failed to delete subtitle")
		return false
	}
	return true
}

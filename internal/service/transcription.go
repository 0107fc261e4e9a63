package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/subtitles/internal/domain"
	"github.com/timmy/subtitles/internal/logger"
)

// TranscriptionService turns a fetchable video URL into timed words using an
// ElevenLabs-compatible speech-to-text API. The backend does not fetch
// external URLs, so the video is downloaded and submitted as an upload.
type TranscriptionService struct {
	download *resty.Client
	client   *resty.Client
	model    string
	endpoint string
	logger   *logger.Logger
}

// TranscriptionConfig holds configuration for the transcription service.
type TranscriptionConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewTranscriptionService creates a new transcription service.
// Parameters:
//   - cfg: backend configuration including model and API key.
//   - log: fallback logger when the context carries none.
//
// Returns:
//   - *TranscriptionService: initialized client wrapper.
func NewTranscriptionService(cfg *TranscriptionConfig, log *logger.Logger) *TranscriptionService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	client := resty.New()
	client.SetHeader("xi-api-key", cfg.APIKey)
	client.SetTimeout(timeout)

	download := resty.New()
	download.SetTimeout(timeout)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "scribe_v1"
	}

	return &TranscriptionService{
		download: download,
		client:   client,
		model:    model,
		endpoint: baseURL + "/speech-to-text",
		logger:   log,
	}
}

func (s *TranscriptionService) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

type transcriptResponse struct {
	LanguageCode string `json:"language_code"`
	Text         string `json:"text"`
	Words        []struct {
		Text  string  `json:"text"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Type  string  `json:"type"`
	} `json:"words"`
}

// Transcribe downloads the video and returns its word-level transcript.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - videoURL: directly fetchable video URL.
//
// Returns:
//   - []domain.TranscriptWord: words and audio events in order; spacing entries are dropped.
//   - string: raw backend response body.
//   - error: non-nil if the download is empty or fails, or the backend response is unusable.
func (s *TranscriptionService) Transcribe(ctx context.Context, videoURL string) ([]domain.TranscriptWord, string, error) {
	start := time.Now()

	dl, err := s.download.R().SetContext(ctx).Get(videoURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download video: %w", err)
	}
	if dl.IsError() {
		return nil, "", fmt.Errorf("failed to download video: HTTP %d", dl.StatusCode())
	}
	video := dl.Body()
	if len(video) == 0 {
		return nil, "", fmt.Errorf("downloaded video is empty: %s", videoURL)
	}

	name := videoFileName(videoURL)
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldSize: len(video),
		"file":           name,
	}).Info("Video downloaded, submitting for transcription")

	resp, err := s.client.R().
		SetContext(ctx).
		SetMultipartField("file", name, domain.VideoContentType(name), bytes.NewReader(video)).
		SetMultipartFormData(map[string]string{"model_id": s.model}).
		Post(s.endpoint)
	if err != nil {
		return nil, "", fmt.Errorf("failed to call transcription API: %w", err)
	}
	raw := string(resp.Body())
	if resp.IsError() {
		return nil, raw, fmt.Errorf("transcription API returned error: HTTP %d: %s", resp.StatusCode(), raw)
	}

	var parsed transcriptResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, raw, fmt.Errorf("failed to parse transcription response: %w", err)
	}

	words := make([]domain.TranscriptWord, 0, len(parsed.Words))
	for _, w := range parsed.Words {
		if w.Type == domain.WordTypeSpacing {
			continue
		}
		words = append(words, domain.TranscriptWord{
			Text:  w.Text,
			Type:  w.Type,
			Start: w.Start,
			End:   w.End,
		})
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(words),
		"language":        parsed.LanguageCode,
	}).WithDuration(start).Info(ctx, "Transcription finished")

	return words, raw, nil
}

// videoFileName derives an upload name from the URL path.
func videoFileName(videoURL string) string {
	name := "video.mp4"
	if u, err := url.Parse(videoURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			name = base
		}
	}
	if path.Ext(name) == "" {
		name += ".mp4"
	}
	return name
}

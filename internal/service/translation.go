package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/subtitles/internal/prompts"
)

// TranslationService translates SRT batches with an OpenAI-compatible chat model.
type TranslationService struct {
	client    *resty.Client
	model     string
	maxTokens int
	endpoint  string
}

// TranslationConfig holds configuration for the translation service.
type TranslationConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// NewTranslationService creates a new translation service.
// Parameters:
//   - cfg: model, API key and endpoint settings.
//
// Returns:
//   - *TranslationService: initialized chat client wrapper.
func NewTranslationService(cfg *TranslationConfig) *TranslationService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &TranslationService{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		endpoint:  baseURL + "/chat/completions",
	}
}

// GetModel returns the model name being used.
func (s *TranslationService) GetModel() string {
	return s.model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// TranslateBatch translates one batch of SRT blocks into language.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - srtBatch: SRT text of consecutive blocks.
//   - language: target language display name, e.g. "Spanish".
//
// Returns:
//   - string: translated SRT; the input unchanged if the model answered with nothing.
//   - error: non-nil if the API request fails or the response is unusable.
func (s *TranslationService) TranslateBatch(ctx context.Context, srtBatch, language string) (string, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.TranslationSystemPrompt},
			{Role: "user", Content: prompts.TranslationUserPrompt(language, srtBatch)},
		},
		MaxTokens:   s.maxTokens,
		Temperature: 0.2,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call translation API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", fmt.Errorf("translation API returned error: %s", errorMsg)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("translation API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in translation response (status: %d)", httpResp.StatusCode())
	}

	out := stripCodeFence(resp.Choices[0].Message.Content)
	if out == "" {
		return srtBatch, nil
	}
	return out, nil
}

// stripCodeFence unwraps a reply the model wrapped in a markdown code block.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

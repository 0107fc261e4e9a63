package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/subtitles/internal/domain"
	"github.com/timmy/subtitles/internal/logger"
)

// TenantHeader carries the caller's tenant; it is not authenticated here.
const TenantHeader = "X-Tenant-ID"

// SubtitleProcessor is the orchestrator surface the HTTP API drives.
type SubtitleProcessor interface {
	StartProcessing(ctx context.Context, tenantID, contentID, videoURL string, sourceType domain.SourceType, targetLanguages []string) (string, error)
	GetStatus(ctx context.Context, contentID string) (*domain.JobStatusView, error)
	CancelProcessing(ctx context.Context, contentID string) (bool, error)
	RetryFailedTranslations(ctx context.Context, contentID string) (string, error)
	GetSrtContent(ctx context.Context, contentID, languageCode string) (*string, error)
}

// ProgressStream hands out live progress subscriptions.
type ProgressStream interface {
	Subscribe(jobID string) (<-chan domain.ProgressSnapshot, func())
}

// SubtitleHandler handles subtitle job endpoints.
type SubtitleHandler struct {
	processor     SubtitleProcessor
	stream        ProgressStream
	defaultTenant string
	keepAlive     time.Duration
}

// NewSubtitleHandler creates a new subtitle handler.
// Parameters:
//   - processor: subtitle orchestrator.
//   - stream: progress subscriptions for the events endpoint.
//   - defaultTenant: tenant used when the request carries none.
// Returns:
//   - *SubtitleHandler: initialized handler.
func NewSubtitleHandler(processor SubtitleProcessor, stream ProgressStream, defaultTenant string) *SubtitleHandler {
	return &SubtitleHandler{
		processor:     processor,
		stream:        stream,
		defaultTenant: defaultTenant,
		keepAlive:     15 * time.Second,
	}
}

// StartRequest is the body of POST /contents/:contentId/subtitles.
type StartRequest struct {
	VideoURL        string   `json:"video_url" binding:"required"`
	SourceType      string   `json:"source_type"`
	TargetLanguages []string `json:"target_languages"`
}

// JobResponse names the job an accepted request acts on.
type JobResponse struct {
	JobID string `json:"job_id"`
}

func (h *SubtitleHandler) tenant(c *gin.Context) string {
	if t := strings.TrimSpace(c.GetHeader(TenantHeader)); t != "" {
		return t
	}
	return h.defaultTenant
}

// Start handles POST /api/v1/contents/:contentId/subtitles.
func (h *SubtitleHandler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	sourceType, err := domain.ParseSourceType(req.SourceType)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := logger.SetTenantID(c.Request.Context(), h.tenant(c))
	jobID, err := h.processor.StartProcessing(ctx, h.tenant(c), c.Param("contentId"), req.VideoURL, sourceType, req.TargetLanguages)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, JobResponse{JobID: jobID})
}

// Status handles GET /api/v1/contents/:contentId/subtitles/status.
func (h *SubtitleHandler) Status(c *gin.Context) {
	view, err := h.processor.GetStatus(c.Request.Context(), c.Param("contentId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No subtitle processing found for this content",
		})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Cancel handles POST /api/v1/contents/:contentId/subtitles/cancel.
func (h *SubtitleHandler) Cancel(c *gin.Context) {
	ok, err := h.processor.CancelProcessing(c.Request.Context(), c.Param("contentId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": ok})
}

// Retry handles POST /api/v1/contents/:contentId/subtitles/retry.
func (h *SubtitleHandler) Retry(c *gin.Context) {
	jobID, err := h.processor.RetryFailedTranslations(c.Request.Context(), c.Param("contentId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, JobResponse{JobID: jobID})
}

// Download handles GET /api/v1/contents/:contentId/subtitles/files/:languageCode.
func (h *SubtitleHandler) Download(c *gin.Context) {
	code := c.Param("languageCode")
	content, err := h.processor.GetSrtContent(c.Request.Context(), c.Param("contentId"), code)
	if err != nil {
		writeError(c, err)
		return
	}
	if content == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No completed subtitles for language " + code,
		})
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{
		"filename": c.Param("contentId") + "_" + code + domain.SubtitleExtension,
	})
	c.Header("Content-Disposition", disposition)
	c.Data(http.StatusOK, "application/x-subrip; charset=utf-8", []byte(*content))
}

// Events handles GET /api/v1/jobs/:jobId/events as a server-sent event stream.
// The stream ends after a terminal snapshot or when the client goes away.
func (h *SubtitleHandler) Events(c *gin.Context) {
	updates, cancel := h.stream.Subscribe(c.Param("jobId"))
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("progress", snap)
			return !snap.Status.IsTerminal()
		case t := <-ticker.C:
			c.SSEvent("ping", t.Unix())
			return true
		}
	})
}

// writeError maps orchestrator errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrContentNotFound), errors.Is(err, domain.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrJobAlreadyActive), errors.Is(err, domain.ErrJobNotCancellable):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNothingToRetry), errors.Is(err, domain.ErrEnglishSrtMissing):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnsupportedLanguage),
		errors.Is(err, domain.ErrUnsupportedSourceType),
		errors.Is(err, domain.ErrInvalidSourceURL):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).WithError(err).Error("Subtitle request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

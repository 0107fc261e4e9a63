package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsTotal,
		stageDuration,
		translationBatches,
		uploadsTotal,
		progressPublishFailures,
	)
}

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_jobs_total",
			Help: "Subtitle jobs reaching a terminal status.",
		},
		[]string{"status"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitle_stage_duration_seconds",
			Help:    "Duration of subtitle pipeline stages.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"stage"},
	)

	translationBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_translation_batches_total",
			Help: "Translation batches by result (translated or fallback).",
		},
		[]string{"language", "result"},
	)

	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_uploads_total",
			Help: "Subtitle file uploads per storage backend and outcome.",
		},
		[]string{"backend", "success"},
	)

	progressPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitle_progress_publish_failures_total",
			Help: "Progress snapshots that could not be delivered per transport.",
		},
		[]string{"transport"},
	)
)

// JobFinished counts a job reaching a terminal status.
func JobFinished(status string) {
	jobsTotal.WithLabelValues(norm(status)).Inc()
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(norm(stage)).Observe(time.Since(start).Seconds())
}

// TranslationBatch counts one batch; fallback marks batches that kept the source text.
func TranslationBatch(languageCode string, fallback bool) {
	result := "translated"
	if fallback {
		result = "fallback"
	}
	translationBatches.WithLabelValues(norm(languageCode), result).Inc()
}

// Upload counts one subtitle upload.
func Upload(backend string, success bool) {
	s := "true"
	if !success {
		s = "false"
	}
	uploadsTotal.WithLabelValues(norm(backend), s).Inc()
}

// ProgressPublishFailed counts one dropped progress snapshot.
func ProgressPublishFailed(transport string) {
	progressPublishFailures.WithLabelValues(norm(transport)).Inc()
}

func norm(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}

package domain

import "time"

// LanguageProgress is the per-language part of a progress snapshot.
type LanguageProgress struct {
	Language     string            `json:"language"`
	LanguageCode string            `json:"language_code"`
	Status       TranslationStatus `json:"status"`
	Percentage   int               `json:"percentage"`
	SrtURL       *string           `json:"srt_url,omitempty"`
}

// ProgressSnapshot is what the pipeline publishes after every step.
type ProgressSnapshot struct {
	JobID        string             `json:"job_id"`
	ContentID    string             `json:"content_id"`
	Status       JobStatus          `json:"status"`
	Percentage   int                `json:"percentage"`
	CurrentStep  string             `json:"current_step"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	Languages    []LanguageProgress `json:"languages"`
	Timestamp    time.Time          `json:"timestamp"`
}

// JobStatusView is the status projection returned to callers.
type JobStatusView struct {
	JobID          string             `json:"job_id"`
	ContentID      string             `json:"content_id"`
	Status         JobStatus          `json:"status"`
	Percentage     int                `json:"percentage"`
	CurrentStep    string             `json:"current_step"`
	TotalSubtitles int                `json:"total_subtitles"`
	EnglishSrtURL  *string            `json:"english_srt_url,omitempty"`
	ErrorMessage   *string            `json:"error_message,omitempty"`
	StartedAt      *time.Time         `json:"started_at,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	Languages      []LanguageProgress `json:"languages"`
}

// OverallPercentage derives job progress from its status; it is never stored.
// While translating, the 15..95 band is split evenly across target languages.
func OverallPercentage(job *ProcessingJob) int {
	switch job.Status {
	case JobStatusTranscribing:
		return 10
	case JobStatusUploading:
		return 95
	case JobStatusCompleted:
		return 100
	case JobStatusTranslating:
		total := job.TargetCount()
		if total == 0 {
			return 15
		}
		done := job.CountTranslations(TranslationStatusCompleted, false)
		return 15 + done*80/total
	}
	return 0
}

// DescribeStatus is the default current-step text for a job status.
func DescribeStatus(status JobStatus) string {
	switch status {
	case JobStatusPending:
		return "Waiting to start"
	case JobStatusTranscribing:
		return "Transcribing video"
	case JobStatusUploading:
		return "Uploading English subtitles"
	case JobStatusTranslating:
		return "Translating subtitles"
	case JobStatusCompleted:
		return "Subtitle processing completed"
	case JobStatusFailed:
		return "Subtitle processing failed"
	case JobStatusCancelled:
		return "Subtitle processing cancelled"
	}
	return string(status)
}

// LanguageProgressOf projects the translation rows in stored order.
func LanguageProgressOf(job *ProcessingJob) []LanguageProgress {
	out := make([]LanguageProgress, 0, len(job.Translations))
	for i := range job.Translations {
		t := &job.Translations[i]
		out = append(out, LanguageProgress{
			Language:     t.Language,
			LanguageCode: t.LanguageCode,
			Status:       t.Status,
			Percentage:   t.Percentage(),
			SrtURL:       t.SrtURL,
		})
	}
	return out
}

// NewSnapshot builds a progress snapshot; an empty step falls back to DescribeStatus.
func NewSnapshot(job *ProcessingJob, step string) ProgressSnapshot {
	if step == "" {
		step = DescribeStatus(job.Status)
	}
	return ProgressSnapshot{
		JobID:        job.ID,
		ContentID:    job.ContentID,
		Status:       job.Status,
		Percentage:   OverallPercentage(job),
		CurrentStep:  step,
		ErrorMessage: job.ErrorMessage,
		Languages:    LanguageProgressOf(job),
		Timestamp:    time.Now().UTC(),
	}
}

// NewStatusView projects a job and its translations for callers.
func NewStatusView(job *ProcessingJob) *JobStatusView {
	return &JobStatusView{
		JobID:          job.ID,
		ContentID:      job.ContentID,
		Status:         job.Status,
		Percentage:     OverallPercentage(job),
		CurrentStep:    DescribeStatus(job.Status),
		TotalSubtitles: job.TotalSubtitles,
		EnglishSrtURL:  job.EnglishSrtURL,
		ErrorMessage:   job.ErrorMessage,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
		CreatedAt:      job.CreatedAt,
		Languages:      LanguageProgressOf(job),
	}
}

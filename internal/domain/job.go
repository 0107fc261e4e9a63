package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus is the lifecycle state of a ProcessingJob.
//
//	pending -> transcribing -> uploading -> translating -> completed
//
// Any non-terminal state may move to failed or cancelled.
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusUploading    JobStatus = "uploading"
	JobStatusTranslating  JobStatus = "translating"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// IsTerminal reports whether no further pipeline work happens in this state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// TranslationStatus is the per-language state inside a job.
type TranslationStatus string

const (
	TranslationStatusPending    TranslationStatus = "pending"
	TranslationStatusInProgress TranslationStatus = "in_progress"
	TranslationStatusCompleted  TranslationStatus = "completed"
	TranslationStatusFailed     TranslationStatus = "failed"
)

// ProcessingJob is one subtitle pipeline run for one toolbox talk. It owns its
// Translation rows; they are always loaded and saved through the job.
type ProcessingJob struct {
	ID                string         `gorm:"type:text;primaryKey" json:"id"`
	TenantID          string         `gorm:"type:text;not null;index" json:"tenant_id"`
	ContentID         string         `gorm:"type:text;not null;index" json:"content_id"`
	SourceURL         string         `gorm:"type:text;not null" json:"source_url"`
	SourceType        SourceType     `gorm:"type:text;not null" json:"source_type"`
	Status            JobStatus      `gorm:"type:text;not null;default:pending;index" json:"status"`
	TotalSubtitles    int            `gorm:"default:0" json:"total_subtitles"`
	EnglishSrtContent *string        `gorm:"type:text" json:"-"`
	EnglishSrtURL     *string        `gorm:"type:text" json:"english_srt_url,omitempty"`
	ErrorMessage      *string        `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	Translations      []Translation  `gorm:"foreignKey:JobID;constraint:OnDelete:CASCADE" json:"translations"`
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// NewProcessingJob builds a Pending job owning an English row followed by one
// row per target language, in the given order.
func NewProcessingJob(tenantID, contentID, sourceURL string, sourceType SourceType, targets []Language) *ProcessingJob {
	job := &ProcessingJob{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		ContentID:  contentID,
		SourceURL:  sourceURL,
		SourceType: sourceType,
		Status:     JobStatusPending,
	}
	langs := append([]Language{{Name: EnglishName, Code: EnglishCode}}, targets...)
	for i, lang := range langs {
		job.Translations = append(job.Translations, Translation{
			ID:           uuid.NewString(),
			JobID:        job.ID,
			Language:     lang.Name,
			LanguageCode: lang.Code,
			Position:     i,
			Status:       TranslationStatusPending,
		})
	}
	return job
}

// TableName returns the database table name for ProcessingJob.
func (ProcessingJob) TableName() string {
	return "subtitle_processing_jobs"
}

// Translation returns the row for a language code, or nil.
func (j *ProcessingJob) Translation(code string) *Translation {
	for i := range j.Translations {
		if j.Translations[i].LanguageCode == code {
			return &j.Translations[i]
		}
	}
	return nil
}

// English returns the source-language row, or nil.
func (j *ProcessingJob) English() *Translation {
	return j.Translation(EnglishCode)
}

// CountTranslations counts rows in the given status; English is included when includeEnglish is set.
func (j *ProcessingJob) CountTranslations(status TranslationStatus, includeEnglish bool) int {
	n := 0
	for _, t := range j.Translations {
		if !includeEnglish && t.IsEnglish() {
			continue
		}
		if t.Status == status {
			n++
		}
	}
	return n
}

// TargetCount is the number of non-English rows.
func (j *ProcessingJob) TargetCount() int {
	n := 0
	for _, t := range j.Translations {
		if !t.IsEnglish() {
			n++
		}
	}
	return n
}

// Translation is the per-language unit of work of a ProcessingJob. The English
// row is a pass-through: it is uploaded, never translated.
type Translation struct {
	ID                 string            `gorm:"type:text;primaryKey" json:"id"`
	JobID              string            `gorm:"type:text;not null;uniqueIndex:idx_job_language" json:"job_id"`
	Language           string            `gorm:"type:text;not null" json:"language"`
	LanguageCode       string            `gorm:"type:text;not null;uniqueIndex:idx_job_language" json:"language_code"`
	Position           int               `gorm:"default:0" json:"-"`
	Status             TranslationStatus `gorm:"type:text;not null;default:pending" json:"status"`
	SubtitlesProcessed int               `gorm:"default:0" json:"subtitles_processed"`
	SubtitlesTotal     int               `gorm:"default:0" json:"subtitles_total"`
	SrtContent         *string           `gorm:"type:text" json:"-"`
	SrtURL             *string           `gorm:"type:text" json:"srt_url,omitempty"`
	ErrorMessage       *string           `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// TableName returns the database table name for Translation.
func (Translation) TableName() string {
	return "subtitle_translations"
}

// IsEnglish reports whether this is the source-language row.
func (t *Translation) IsEnglish() bool {
	return t.LanguageCode == EnglishCode
}

// Percentage is the share of subtitle blocks handled for this language.
func (t *Translation) Percentage() int {
	switch t.Status {
	case TranslationStatusCompleted:
		return 100
	case TranslationStatusInProgress:
		if t.SubtitlesTotal > 0 {
			return t.SubtitlesProcessed * 100 / t.SubtitlesTotal
		}
	}
	return 0
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

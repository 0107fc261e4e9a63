package domain

import (
	"errors"
	"fmt"
)

var (
	ErrContentNotFound       = errors.New("toolbox talk not found")
	ErrJobNotFound           = errors.New("processing job not found")
	ErrJobCancelled          = errors.New("processing job was cancelled")
	ErrJobAlreadyActive      = errors.New("subtitle processing already active")
	ErrJobNotCancellable     = errors.New("job cannot be cancelled")
	ErrNothingToRetry        = errors.New("no failed translations to retry")
	ErrEnglishSrtMissing     = errors.New("english subtitles unavailable, start a new processing job")
	ErrUnsupportedLanguage   = errors.New("unsupported language")
	ErrUnsupportedSourceType = errors.New("unsupported video source type")
	ErrUploadNotSupported    = errors.New("upload not supported")
	ErrInvalidSourceURL      = errors.New("invalid video source url")
)

// ActiveJobError names the non-terminal job that blocks a new one.
type ActiveJobError struct {
	JobID  string
	Status JobStatus
}

func (e *ActiveJobError) Error() string {
	return fmt.Sprintf("subtitle processing already active: job %s is %s", e.JobID, e.Status)
}

func (e *ActiveJobError) Is(target error) bool {
	return target == ErrJobAlreadyActive
}

// CancelError explains why a job in a terminal state cannot be cancelled.
type CancelError struct {
	JobID  string
	Status JobStatus
}

func (e *CancelError) Error() string {
	switch e.Status {
	case JobStatusCompleted:
		return fmt.Sprintf("cannot cancel a completed job (%s)", e.JobID)
	case JobStatusFailed:
		return fmt.Sprintf("cannot cancel a failed job (%s)", e.JobID)
	case JobStatusCancelled:
		return fmt.Sprintf("job %s is already cancelled", e.JobID)
	}
	return fmt.Sprintf("cannot cancel job %s in status %s", e.JobID, e.Status)
}

func (e *CancelError) Is(target error) bool {
	return target == ErrJobNotCancellable
}

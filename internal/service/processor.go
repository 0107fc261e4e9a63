package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/timmy/subtitles/internal/domain"
	"github.com/timmy/subtitles/internal/logger"
	"github.com/timmy/subtitles/internal/metrics"
	"github.com/timmy/subtitles/internal/scheduler"
	"github.com/timmy/subtitles/internal/srt"
	"github.com/timmy/subtitles/internal/storage"
)

const cancelledByUser = "Cancelled by user"

// JobStore persists the ProcessingJob aggregate.
type JobStore interface {
	CreateIfNoActive(ctx context.Context, job *domain.ProcessingJob) error
	GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error)
	LatestByContentID(ctx context.Context, contentID string) (*domain.ProcessingJob, error)
	Save(ctx context.Context, job *domain.ProcessingJob) error
	SaveIfNotCancelled(ctx context.Context, job *domain.ProcessingJob) error
}

// ContentStore looks up the toolbox talk a job belongs to.
type ContentStore interface {
	FindByID(ctx context.Context, id string) (*domain.ToolboxTalk, error)
}

// SourceResolver turns a stored video reference into a fetchable URL.
type SourceResolver interface {
	Resolve(ctx context.Context, sourceURL string, sourceType domain.SourceType) (string, error)
	Supports(sourceType domain.SourceType) bool
}

// Transcriber produces timed words for a fetchable video URL.
type Transcriber interface {
	Transcribe(ctx context.Context, videoURL string) ([]domain.TranscriptWord, string, error)
}

// Translator translates a batch of SRT blocks.
type Translator interface {
	TranslateBatch(ctx context.Context, srtBatch, language string) (string, error)
}

// ProgressReporter publishes snapshots; it never fails the caller.
type ProgressReporter interface {
	Publish(ctx context.Context, jobID string, snapshot domain.ProgressSnapshot)
}

// ProcessorConfig holds the processing knobs.
type ProcessorConfig struct {
	WordsPerBlock int
	BatchSize     int
}

// StageError is a fatal pipeline failure; its message is stored on the job.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// SubtitleProcessor drives a ProcessingJob from transcription to translated,
// stored subtitles. Every state change is persisted before the next stage and
// followed by a progress snapshot.
type SubtitleProcessor struct {
	jobs        JobStore
	contents    ContentStore
	sources     SourceResolver
	transcriber Transcriber
	translator  Translator
	storage     storage.SubtitleStorage
	progress    ProgressReporter
	scheduler   scheduler.Scheduler
	logger      *logger.Logger

	wordsPerBlock int
	batchSize     int
}

// NewSubtitleProcessor creates the orchestrator. The scheduler must route
// scheduler.TaskProcess to Process and scheduler.TaskProcessRetry to ProcessRetry.
func NewSubtitleProcessor(
	jobs JobStore,
	contents ContentStore,
	sources SourceResolver,
	transcriber Transcriber,
	translator Translator,
	subtitles storage.SubtitleStorage,
	progress ProgressReporter,
	sched scheduler.Scheduler,
	log *logger.Logger,
	cfg *ProcessorConfig,
) *SubtitleProcessor {
	if log == nil {
		log = logger.GetDefault()
	}
	p := &SubtitleProcessor{
		jobs:          jobs,
		contents:      contents,
		sources:       sources,
		transcriber:   transcriber,
		translator:    translator,
		storage:       subtitles,
		progress:      progress,
		scheduler:     sched,
		logger:        log,
		wordsPerBlock: 8,
		batchSize:     10,
	}
	if cfg != nil {
		if cfg.WordsPerBlock > 0 {
			p.wordsPerBlock = cfg.WordsPerBlock
		}
		if cfg.BatchSize > 0 {
			p.batchSize = cfg.BatchSize
		}
	}
	return p
}

func (p *SubtitleProcessor) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, p.logger)
}

// withLogger attaches the processor's logger unless ctx already carries one,
// so fields added later build on it.
func (p *SubtitleProcessor) withLogger(ctx context.Context) context.Context {
	return logger.EnsureContext(ctx, p.logger)
}

// StartProcessing creates a job for a toolbox talk and schedules Process.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - tenantID: owning tenant, used as the storage prefix.
//   - contentID: toolbox talk ID.
//   - videoURL: video reference understood by the resolver for sourceType.
//   - sourceType: how videoURL is resolved.
//   - targetLanguages: display names; English and duplicates are ignored.
//
// Returns:
//   - string: the new job ID.
//   - error: domain.ErrContentNotFound, *domain.ActiveJobError, domain.ErrUnsupportedLanguage,
//     domain.ErrUnsupportedSourceType, or a storage/scheduling error.
func (p *SubtitleProcessor) StartProcessing(
	ctx context.Context,
	tenantID, contentID, videoURL string,
	sourceType domain.SourceType,
	targetLanguages []string,
) (string, error) {
	ctx = logger.SetContentID(p.withLogger(ctx), contentID)

	talk, err := p.contents.FindByID(ctx, contentID)
	if err != nil {
		return "", err
	}
	if talk.IsDeleted {
		return "", domain.ErrContentNotFound
	}
	if !p.sources.Supports(sourceType) {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedSourceType, sourceType)
	}
	targets, err := domain.TargetLanguages(targetLanguages)
	if err != nil {
		return "", err
	}
	if tenantID == "" {
		tenantID = talk.TenantID
	}

	job := domain.NewProcessingJob(tenantID, contentID, videoURL, sourceType, targets)
	if err := p.jobs.CreateIfNoActive(ctx, job); err != nil {
		return "", err
	}
	ctx = logger.SetJobID(ctx, job.ID)

	p.log(ctx).WithFields(logger.Fields{
		logger.FieldTenantID: tenantID,
		logger.FieldCount:    len(targets),
		"source_type":        string(sourceType),
	}).Info("Subtitle job created")
	p.publish(ctx, job, "Queued for processing")

	if err := p.scheduler.Schedule(ctx, scheduler.TaskProcess, job.ID); err != nil {
		p.failUnscheduled(ctx, job.ID, err)
		return "", fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}
	return job.ID, nil
}

// Process runs the full pipeline for a job. Stage failures mark the job
// Failed and are not returned; an error means the failure could not be recorded.
func (p *SubtitleProcessor) Process(ctx context.Context, jobID string) (err error) {
	ctx = logger.SetComponent(logger.SetJobID(p.withLogger(ctx), jobID), "processor")

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		p.log(ctx).WithField(logger.FieldStatus, string(job.Status)).Info("Job already finished, skipping")
		return nil
	}

	defer p.recoverPanic(ctx, job, &err)
	return p.finish(ctx, job, p.runPipeline(ctx, job))
}

// ProcessRetry translates and uploads the rows RetryFailedTranslations reset
// to Pending. A Pending English row is uploaded again first.
func (p *SubtitleProcessor) ProcessRetry(ctx context.Context, jobID string) (err error) {
	ctx = logger.SetComponent(logger.SetJobID(p.withLogger(ctx), jobID), "processor")

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		p.log(ctx).WithField(logger.FieldStatus, string(job.Status)).Info("Job already finished, skipping retry")
		return nil
	}

	defer p.recoverPanic(ctx, job, &err)
	return p.finish(ctx, job, p.runRetry(ctx, job))
}

// Abandon fails a job whose scheduled task was discarded before it ran, for
// example when the worker pool shuts down. Unfinished rows are failed too, so
// the job no longer blocks new starts and can be retried.
func (p *SubtitleProcessor) Abandon(ctx context.Context, jobID string, cause error) error {
	ctx = logger.SetComponent(logger.SetJobID(p.withLogger(ctx), jobID), "processor")
	return p.failJobWith(ctx, jobID, &StageError{Stage: "schedule", Err: cause}, true)
}

// GetStatus returns the latest job for a content ID, or nil if it was never processed.
func (p *SubtitleProcessor) GetStatus(ctx context.Context, contentID string) (*domain.JobStatusView, error) {
	job, err := p.jobs.LatestByContentID(ctx, contentID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return domain.NewStatusView(job), nil
}

// CancelProcessing cancels the latest job for a content ID. It returns false
// when the content has no job, and a *domain.CancelError when the job is
// already terminal. A running pipeline stops at its next state change.
func (p *SubtitleProcessor) CancelProcessing(ctx context.Context, contentID string) (bool, error) {
	ctx = logger.SetContentID(p.withLogger(ctx), contentID)

	job, err := p.jobs.LatestByContentID(ctx, contentID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if job.Status.IsTerminal() {
		return false, &domain.CancelError{JobID: job.ID, Status: job.Status}
	}
	ctx = logger.SetJobID(ctx, job.ID)

	job.Status = domain.JobStatusCancelled
	job.ErrorMessage = domain.StringPtr(cancelledByUser)
	job.CompletedAt = domain.TimePtr(time.Now())
	for i := range job.Translations {
		t := &job.Translations[i]
		if t.Status == domain.TranslationStatusInProgress {
			t.Status = domain.TranslationStatusFailed
			t.ErrorMessage = domain.StringPtr(cancelledByUser)
		}
	}
	if err := p.jobs.Save(ctx, job); err != nil {
		return false, err
	}

	metrics.JobFinished(string(domain.JobStatusCancelled))
	p.log(ctx).Info("Subtitle job cancelled")
	p.publish(ctx, job, "")
	return true, nil
}

// RetryFailedTranslations resets the Failed rows of the latest job to Pending
// and schedules ProcessRetry.
// Returns:
//   - string: the job ID being retried.
//   - error: domain.ErrJobNotFound, *domain.ActiveJobError while the job still runs,
//     domain.ErrNothingToRetry, domain.ErrEnglishSrtMissing, or a storage/scheduling error.
func (p *SubtitleProcessor) RetryFailedTranslations(ctx context.Context, contentID string) (string, error) {
	ctx = logger.SetContentID(p.withLogger(ctx), contentID)

	job, err := p.jobs.LatestByContentID(ctx, contentID)
	if err != nil {
		return "", err
	}
	if !job.Status.IsTerminal() {
		return "", &domain.ActiveJobError{JobID: job.ID, Status: job.Status}
	}
	failed := job.CountTranslations(domain.TranslationStatusFailed, true)
	if failed == 0 {
		return "", fmt.Errorf("%w (job %s)", domain.ErrNothingToRetry, job.ID)
	}
	if job.EnglishSrtContent == nil || *job.EnglishSrtContent == "" {
		return "", fmt.Errorf("%w (job %s)", domain.ErrEnglishSrtMissing, job.ID)
	}
	ctx = logger.SetJobID(ctx, job.ID)

	for i := range job.Translations {
		t := &job.Translations[i]
		if t.Status == domain.TranslationStatusFailed {
			t.Status = domain.TranslationStatusPending
			t.ErrorMessage = nil
			t.SubtitlesProcessed = 0
		}
	}
	job.Status = domain.JobStatusTranslating
	job.CompletedAt = nil
	job.ErrorMessage = nil
	if err := p.jobs.Save(ctx, job); err != nil {
		return "", err
	}

	p.log(ctx).WithField(logger.FieldCount, failed).Info("Retrying failed translations")
	p.publish(ctx, job, "Queued for retry")

	if err := p.scheduler.Schedule(ctx, scheduler.TaskProcessRetry, job.ID); err != nil {
		p.failUnscheduled(ctx, job.ID, err)
		return "", fmt.Errorf("failed to schedule retry of job %s: %w", job.ID, err)
	}
	return job.ID, nil
}

// GetSrtContent returns the stored SRT of the latest job for a language, or
// nil unless that language's row is Completed.
func (p *SubtitleProcessor) GetSrtContent(ctx context.Context, contentID, languageCode string) (*string, error) {
	job, err := p.jobs.LatestByContentID(ctx, contentID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := job.Translation(strings.ToLower(strings.TrimSpace(languageCode)))
	if t == nil || t.Status != domain.TranslationStatusCompleted {
		return nil, nil
	}
	return t.SrtContent, nil
}

func (p *SubtitleProcessor) runPipeline(ctx context.Context, job *domain.ProcessingJob) error {
	title, err := p.title(ctx, job)
	if err != nil {
		return err
	}

	job.Status = domain.JobStatusTranscribing
	job.StartedAt = domain.TimePtr(time.Now())
	if err := p.save(ctx, job, "Resolving video source"); err != nil {
		return err
	}

	start := time.Now()
	videoURL, err := p.sources.Resolve(ctx, job.SourceURL, job.SourceType)
	metrics.ObserveStage("resolve", start)
	if err != nil {
		return &StageError{Stage: "resolve", Err: err}
	}

	start = time.Now()
	p.publish(ctx, job, "Transcribing video")
	words, _, err := p.transcriber.Transcribe(ctx, videoURL)
	metrics.ObserveStage("transcribe", start)
	if err != nil {
		return &StageError{Stage: "transcribe", Err: err}
	}
	if len(words) == 0 {
		return &StageError{Stage: "transcribe", Err: errors.New("transcript contains no words")}
	}

	english := srt.Generate(words, p.wordsPerBlock)
	total := srt.CountBlocks(english)
	job.TotalSubtitles = total
	job.EnglishSrtContent = domain.StringPtr(english)
	for i := range job.Translations {
		job.Translations[i].SubtitlesTotal = total
	}
	job.Status = domain.JobStatusUploading
	if err := p.save(ctx, job, ""); err != nil {
		return err
	}

	p.uploadEnglish(ctx, job, title)
	if err := p.save(ctx, job, ""); err != nil {
		return err
	}

	return p.translatePending(ctx, job, title)
}

func (p *SubtitleProcessor) runRetry(ctx context.Context, job *domain.ProcessingJob) error {
	if job.EnglishSrtContent == nil || *job.EnglishSrtContent == "" {
		return &StageError{Stage: "retry", Err: domain.ErrEnglishSrtMissing}
	}
	title, err := p.title(ctx, job)
	if err != nil {
		return err
	}

	if en := job.English(); en != nil && en.Status == domain.TranslationStatusPending {
		p.uploadEnglish(ctx, job, title)
		if err := p.save(ctx, job, ""); err != nil {
			return err
		}
	}
	return p.translatePending(ctx, job, title)
}

// translatePending translates every Pending target row in order, then completes the job.
func (p *SubtitleProcessor) translatePending(ctx context.Context, job *domain.ProcessingJob, title string) error {
	var pending []int
	for i := range job.Translations {
		t := &job.Translations[i]
		if !t.IsEnglish() && t.Status == domain.TranslationStatusPending {
			pending = append(pending, i)
		}
	}

	if len(pending) > 0 {
		job.Status = domain.JobStatusTranslating
		if err := p.save(ctx, job, ""); err != nil {
			return err
		}
		start := time.Now()
		for _, i := range pending {
			if err := p.translateLanguage(ctx, job, i, title); err != nil {
				return err
			}
		}
		metrics.ObserveStage("translate", start)
	}

	job.Status = domain.JobStatusCompleted
	job.CompletedAt = domain.TimePtr(time.Now())
	if err := p.save(ctx, job, ""); err != nil {
		return err
	}
	metrics.JobFinished(string(domain.JobStatusCompleted))
	p.log(ctx).WithField(logger.FieldCount, job.TotalSubtitles).Info("Subtitle job completed")
	return nil
}

// translateLanguage translates one row batch by batch. A failed batch keeps
// the English text; a failed upload is recorded on the row, which still
// completes.
func (p *SubtitleProcessor) translateLanguage(ctx context.Context, job *domain.ProcessingJob, idx int, title string) error {
	t := &job.Translations[idx]
	lctx := logger.WithField(ctx, logger.FieldLanguage, t.LanguageCode)

	t.Status = domain.TranslationStatusInProgress
	t.SubtitlesProcessed = 0
	t.ErrorMessage = nil
	if err := p.save(lctx, job, "Translating to "+t.Language); err != nil {
		return err
	}

	blocks := srt.SplitIntoBlocks(*job.EnglishSrtContent)
	batches := (len(blocks) + p.batchSize - 1) / p.batchSize
	translated := make([]string, 0, len(blocks))
	var batchErr error
	fallbacks := 0

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lo := b * p.batchSize
		hi := min(lo+p.batchSize, len(blocks))
		batch := blocks[lo:hi]

		out, err := p.translateBatch(lctx, batch, t.Language)
		if err != nil {
			fallbacks++
			batchErr = err
			metrics.TranslationBatch(t.LanguageCode, true)
			p.log(lctx).WithError(err).WithField(logger.FieldBatch, b+1).
				Warn("Translation batch failed, keeping English text")
			out = batch
		} else {
			metrics.TranslationBatch(t.LanguageCode, false)
		}
		translated = append(translated, out...)

		t.SubtitlesProcessed = hi
		if err := p.save(lctx, job, fmt.Sprintf("Translating to %s (batch %d of %d)", t.Language, b+1, batches)); err != nil {
			return err
		}
	}

	content := srt.JoinBlocks(translated)
	t.SrtContent = domain.StringPtr(content)
	if batchErr != nil {
		t.ErrorMessage = domain.StringPtr(fmt.Sprintf("%d of %d batches left untranslated: %v", fallbacks, batches, batchErr))
	}

	url, err := p.upload(lctx, content, domain.SubtitleFileName(title, t.LanguageCode), job.TenantID)
	if err != nil {
		// Target rows complete even when the upload fails; only the English row is failed by an upload.
		t.ErrorMessage = domain.StringPtr("upload failed: " + err.Error())
		p.log(lctx).WithError(err).Warn("Subtitle upload failed, translation kept in database")
	} else {
		t.SrtURL = domain.StringPtr(url)
	}
	t.Status = domain.TranslationStatusCompleted
	t.SubtitlesProcessed = len(blocks)
	return p.save(lctx, job, "")
}

// translateBatch returns the translated blocks, or an error when the model
// fails or changes the number of blocks.
func (p *SubtitleProcessor) translateBatch(ctx context.Context, batch []string, language string) ([]string, error) {
	out, err := p.translator.TranslateBatch(ctx, srt.JoinBlocks(batch), language)
	if err != nil {
		return nil, err
	}
	blocks := srt.SplitIntoBlocks(out)
	if len(blocks) != len(batch) {
		return nil, fmt.Errorf("translation returned %d blocks, want %d", len(blocks), len(batch))
	}
	return blocks, nil
}

// uploadEnglish stores the English SRT. An upload failure fails the English
// row only; the job continues.
func (p *SubtitleProcessor) uploadEnglish(ctx context.Context, job *domain.ProcessingJob, title string) {
	en := job.English()
	if en == nil {
		return
	}
	ctx = logger.WithField(ctx, logger.FieldLanguage, domain.EnglishCode)

	url, err := p.upload(ctx, *job.EnglishSrtContent, domain.SubtitleFileName(title, domain.EnglishCode), job.TenantID)
	if err != nil {
		en.Status = domain.TranslationStatusFailed
		en.ErrorMessage = domain.StringPtr("upload failed: " + err.Error())
		p.log(ctx).WithError(err).Warn("English subtitle upload failed")
		return
	}
	job.EnglishSrtURL = domain.StringPtr(url)
	en.Status = domain.TranslationStatusCompleted
	en.SrtContent = job.EnglishSrtContent
	en.SrtURL = domain.StringPtr(url)
	en.SubtitlesProcessed = job.TotalSubtitles
	en.ErrorMessage = nil
}

func (p *SubtitleProcessor) upload(ctx context.Context, content, fileName, tenantID string) (string, error) {
	start := time.Now()
	url, err := p.storage.Upload(ctx, content, fileName, tenantID)
	metrics.ObserveStage("upload", start)
	metrics.Upload(p.storage.Name(), err == nil)
	return url, err
}

func (p *SubtitleProcessor) title(ctx context.Context, job *domain.ProcessingJob) (string, error) {
	talk, err := p.contents.FindByID(ctx, job.ContentID)
	if err != nil {
		return "", &StageError{Stage: "load content", Err: err}
	}
	return talk.Title, nil
}

// save persists job unless it was cancelled meanwhile, then publishes a snapshot.
func (p *SubtitleProcessor) save(ctx context.Context, job *domain.ProcessingJob, step string) error {
	if err := p.jobs.SaveIfNotCancelled(ctx, job); err != nil {
		return err
	}
	p.publish(ctx, job, step)
	return nil
}

func (p *SubtitleProcessor) publish(ctx context.Context, job *domain.ProcessingJob, step string) {
	if p.progress == nil {
		return
	}
	p.progress.Publish(ctx, job.ID, domain.NewSnapshot(job, step))
}

// finish turns a pipeline error into the job's terminal state.
func (p *SubtitleProcessor) finish(ctx context.Context, job *domain.ProcessingJob, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrJobCancelled):
		p.log(ctx).Info("Job was cancelled, stopping pipeline")
		return nil
	}
	return p.failJob(ctx, job.ID, err)
}

// failJob marks the job Failed on top of its last persisted state, so rows
// keep whatever was committed before the failure.
func (p *SubtitleProcessor) failJob(ctx context.Context, jobID string, cause error) error {
	return p.failJobWith(ctx, jobID, cause, false)
}

// failJobWith is failJob; with failRows set, Pending and InProgress rows are
// failed as well because no run is left to finish them.
func (p *SubtitleProcessor) failJobWith(ctx context.Context, jobID string, cause error, failRows bool) error {
	// The run may have been stopped by ctx; record the failure regardless.
	ctx = context.WithoutCancel(ctx)

	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s to record failure %q: %w", jobID, cause, err)
	}
	if job.Status.IsTerminal() {
		return nil
	}

	job.Status = domain.JobStatusFailed
	job.ErrorMessage = domain.StringPtr(cause.Error())
	job.CompletedAt = domain.TimePtr(time.Now())
	if failRows {
		for i := range job.Translations {
			t := &job.Translations[i]
			if t.Status == domain.TranslationStatusPending || t.Status == domain.TranslationStatusInProgress {
				t.Status = domain.TranslationStatusFailed
				t.ErrorMessage = domain.StringPtr("not processed: " + cause.Error())
			}
		}
	}
	if err := p.jobs.SaveIfNotCancelled(ctx, job); err != nil {
		if errors.Is(err, domain.ErrJobCancelled) {
			return nil
		}
		return fmt.Errorf("failed to record failure of job %s: %w", jobID, err)
	}

	metrics.JobFinished(string(domain.JobStatusFailed))
	p.log(ctx).WithError(cause).Error("Subtitle job failed")
	p.publish(ctx, job, "")
	return nil
}

// failUnscheduled fails a job whose pipeline could not be queued so it does
// not block new jobs for the same content.
func (p *SubtitleProcessor) failUnscheduled(ctx context.Context, jobID string, cause error) {
	if err := p.failJobWith(ctx, jobID, &StageError{Stage: "schedule", Err: cause}, true); err != nil {
		p.log(ctx).WithError(err).Error("Failed to mark unscheduled job as failed")
	}
}

func (p *SubtitleProcessor) recoverPanic(ctx context.Context, job *domain.ProcessingJob, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	p.log(ctx).WithField("stack", string(debug.Stack())).Error("Pipeline panicked")
	*errp = p.failJob(ctx, job.ID, fmt.Errorf("internal error: %v", r))
}

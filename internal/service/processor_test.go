package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/timmy/subtitles/internal/config"
	"github.com/timmy/subtitles/internal/domain"
	"github.com/timmy/subtitles/internal/logger"
	"github.com/timmy/subtitles/internal/repository"
	"github.com/timmy/subtitles/internal/scheduler"
	"github.com/timmy/subtitles/internal/source"
	"github.com/timmy/subtitles/internal/srt"
	"github.com/timmy/subtitles/internal/storage"
)

const (
	testTenant  = "tenant-1"
	testContent = "talk-1"
	testVideo   = "https://cdn.example.com/talks/height.mp4"
)

type fakeTranscriber struct {
	words []domain.TranscriptWord
	err   error
	hook  func()
	calls int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string) ([]domain.TranscriptWord, string, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	if f.err != nil {
		return nil, "", f.err
	}
	return f.words, `{"text":"..."}`, nil
}

type fakeTranslator struct {
	mu    sync.Mutex
	calls map[string]int
	fail  func(language string, call int) error
	reply func(batch, language string) string
}

func (f *fakeTranslator) TranslateBatch(_ context.Context, batch, language string) (string, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[language]++
	call := f.calls[language]
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(language, call); err != nil {
			return "", err
		}
	}
	if f.reply != nil {
		return f.reply(batch, language), nil
	}
	return tagBlocks(batch, language), nil
}

// tagBlocks prefixes every text line with the language name.
func tagBlocks(batch, language string) string {
	blocks := srt.SplitIntoBlocks(batch)
	for i, b := range blocks {
		lines := strings.Split(b, "\n")
		for j := 2; j < len(lines); j++ {
			lines[j] = "[" + language + "] " + lines[j]
		}
		blocks[i] = strings.Join(lines, "\n")
	}
	return srt.JoinBlocks(blocks)
}

type memorySubtitles struct {
	mu    sync.Mutex
	files map[string]string
	fail  map[string]int
}

func newMemorySubtitles() *memorySubtitles {
	return &memorySubtitles{files: map[string]string{}, fail: map[string]int{}}
}

func (m *memorySubtitles) Upload(_ context.Context, content, fileName, tenantID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[fileName] > 0 {
		m.fail[fileName]--
		return "", errors.New("storage unavailable")
	}
	key := storage.SubtitleKey(tenantID, fileName)
	m.files[key] = content
	return "https://cdn.test/" + key, nil
}

func (m *memorySubtitles) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[key]
	return c, ok, nil
}

func (m *memorySubtitles) Delete(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[key]
	delete(m.files, key)
	return ok
}

func (m *memorySubtitles) Name() string { return "memory" }

type recordingReporter struct {
	mu        sync.Mutex
	snapshots []domain.ProgressSnapshot
}

func (r *recordingReporter) Publish(_ context.Context, _ string, s domain.ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recordingReporter) last() domain.ProgressSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[len(r.snapshots)-1]
}

// queueScheduler records tasks without running them.
type queueScheduler struct {
	tasks []string
	err   error
}

func (q *queueScheduler) Schedule(_ context.Context, task scheduler.Task, jobID string) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, string(task)+":"+jobID)
	return nil
}

type harness struct {
	proc        *SubtitleProcessor
	jobs        *repository.JobRepository
	contents    *repository.ContentRepository
	transcriber *fakeTranscriber
	translator  *fakeTranslator
	store       *memorySubtitles
	progress    *recordingReporter
}

func makeWords(n int) []domain.TranscriptWord {
	words := make([]domain.TranscriptWord, n)
	for i := range words {
		words[i] = domain.TranscriptWord{
			Text:  fmt.Sprintf("w%d", i+1),
			Type:  domain.WordTypeWord,
			Start: float64(i),
			End:   float64(i) + 0.5,
		}
	}
	return words
}

// newHarness wires a processor over sqlite with 2 words per block and 2
// blocks per batch. A nil sched runs tasks inline.
func newHarness(t *testing.T, sched scheduler.Scheduler) *harness {
	t.Helper()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "subtitles.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	h := &harness{
		jobs:        repository.NewJobRepository(db),
		contents:    repository.NewContentRepository(db),
		transcriber: &fakeTranscriber{words: makeWords(12)},
		translator:  &fakeTranslator{},
		store:       newMemorySubtitles(),
		progress:    &recordingReporter{},
	}

	inline := scheduler.NewInline()
	if sched == nil {
		sched = inline
	}
	h.proc = NewSubtitleProcessor(
		h.jobs,
		h.contents,
		source.NewRegistry(source.NewDirectResolver(), source.NewGoogleDriveResolver()),
		h.transcriber,
		h.translator,
		h.store,
		h.progress,
		sched,
		nil,
		&ProcessorConfig{WordsPerBlock: 2, BatchSize: 2},
	)
	inline.Handle(scheduler.TaskProcess, h.proc.Process)
	inline.Handle(scheduler.TaskProcessRetry, h.proc.ProcessRetry)

	talk := &domain.ToolboxTalk{ID: testContent, TenantID: testTenant, Title: "Working at Height"}
	if err := h.contents.Upsert(context.Background(), talk); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return h
}

func (h *harness) start(t *testing.T, languages ...string) *domain.ProcessingJob {
	t.Helper()
	ctx := context.Background()
	jobID, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, languages)
	if err != nil {
		t.Fatalf("StartProcessing() error = %v", err)
	}
	return h.load(t, jobID)
}

func (h *harness) load(t *testing.T, jobID string) *domain.ProcessingJob {
	t.Helper()
	job, err := h.jobs.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	return job
}

func TestProcessFullRun(t *testing.T) {
	h := newHarness(t, nil)
	job := h.start(t, "Spanish", "French")

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed (error: %v)", job.Status, job.ErrorMessage)
	}
	if len(job.Translations) != 3 {
		t.Fatalf("len(Translations) = %d, want 3", len(job.Translations))
	}
	for _, tr := range job.Translations {
		if tr.Status != domain.TranslationStatusCompleted {
			t.Errorf("%s status = %s, want completed", tr.LanguageCode, tr.Status)
		}
		if tr.SrtURL == nil {
			t.Errorf("%s SrtURL is nil", tr.LanguageCode)
		}
		if tr.SubtitlesTotal != job.TotalSubtitles || tr.SubtitlesProcessed != job.TotalSubtitles {
			t.Errorf("%s processed %d/%d, want %d", tr.LanguageCode, tr.SubtitlesProcessed, tr.SubtitlesTotal, job.TotalSubtitles)
		}
	}
	if job.EnglishSrtContent == nil {
		t.Fatal("EnglishSrtContent is nil")
	}
	if got := srt.CountBlocks(*job.EnglishSrtContent); got != job.TotalSubtitles || got != 6 {
		t.Errorf("TotalSubtitles = %d, blocks = %d, want 6", job.TotalSubtitles, got)
	}
	if job.EnglishSrtURL == nil || *job.EnglishSrtURL != "https://cdn.test/tenant-1/subtitles/working_at_height_en.srt" {
		t.Errorf("EnglishSrtURL = %v", job.EnglishSrtURL)
	}
	if job.StartedAt == nil || job.CompletedAt == nil {
		t.Errorf("StartedAt = %v, CompletedAt = %v", job.StartedAt, job.CompletedAt)
	}

	es, ok, _ := h.store.Get(context.Background(), "tenant-1/subtitles/working_at_height_es.srt")
	if !ok || !strings.Contains(es, "[Spanish] w1 w2") {
		t.Errorf("stored Spanish SRT = %q", es)
	}
	if _, err := srt.Parse(es, 0); err != nil {
		t.Errorf("stored Spanish SRT does not parse: %v", err)
	}

	last := h.progress.last()
	if last.Status != domain.JobStatusCompleted || last.Percentage != 100 {
		t.Errorf("last snapshot = %s %d%%, want completed 100%%", last.Status, last.Percentage)
	}
}

func TestProcessTranscriptionFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.transcriber.err = errors.New("speech-to-text quota exceeded")

	job := h.start(t, "Spanish")

	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.ErrorMessage == nil || !strings.Contains(*job.ErrorMessage, "speech-to-text quota exceeded") {
		t.Errorf("ErrorMessage = %v", job.ErrorMessage)
	}
	if job.EnglishSrtContent != nil {
		t.Errorf("EnglishSrtContent = %q, want nil", *job.EnglishSrtContent)
	}
	if job.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	for _, tr := range job.Translations {
		if tr.Status != domain.TranslationStatusPending {
			t.Errorf("%s status = %s, want pending", tr.LanguageCode, tr.Status)
		}
	}
	if len(h.store.files) != 0 {
		t.Errorf("uploaded %d files, want none", len(h.store.files))
	}
	if last := h.progress.last(); last.Status != domain.JobStatusFailed || last.ErrorMessage == nil {
		t.Errorf("last snapshot = %+v, want failed with message", last)
	}
}

func TestProcessResolveFailure(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	jobID, err := h.proc.StartProcessing(ctx, testTenant, testContent,
		"https://drive.google.com/drive/folders/abc", domain.SourceTypeGoogleDrive, nil)
	if err != nil {
		t.Fatal(err)
	}
	job := h.load(t, jobID)
	if job.Status != domain.JobStatusFailed || !strings.HasPrefix(*job.ErrorMessage, "resolve failed") {
		t.Errorf("job = %s %v, want resolve failure", job.Status, job.ErrorMessage)
	}
	if h.transcriber.calls != 0 {
		t.Errorf("transcriber called %d times, want 0", h.transcriber.calls)
	}
}

func TestProcessBatchFailureFallsBack(t *testing.T) {
	h := newHarness(t, nil)
	h.translator.fail = func(language string, call int) error {
		if language == "French" && call == 2 {
			return errors.New("HTTP 503")
		}
		return nil
	}

	job := h.start(t, "French", "Spanish")

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	fr := job.Translation("fr")
	if fr.Status != domain.TranslationStatusCompleted {
		t.Errorf("French status = %s, want completed", fr.Status)
	}
	if fr.ErrorMessage == nil || !strings.Contains(*fr.ErrorMessage, "HTTP 503") {
		t.Errorf("French ErrorMessage = %v", fr.ErrorMessage)
	}

	segments, err := srt.Parse(*fr.SrtContent, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 6 {
		t.Fatalf("len(segments) = %d, want 6", len(segments))
	}
	for i, seg := range segments {
		untranslated := i == 2 || i == 3
		tagged := strings.HasPrefix(seg.Text, "[French] ")
		if untranslated == tagged {
			t.Errorf("segment %d text = %q", i+1, seg.Text)
		}
		if seg.Index != i+1 {
			t.Errorf("segment %d index = %d", i+1, seg.Index)
		}
	}

	if es := job.Translation("es"); es.Status != domain.TranslationStatusCompleted || es.ErrorMessage != nil {
		t.Errorf("Spanish = %s %v, want completed without error", es.Status, es.ErrorMessage)
	}
}

func TestProcessRejectsReshapedBatch(t *testing.T) {
	h := newHarness(t, nil)
	h.translator.reply = func(batch, language string) string {
		blocks := srt.SplitIntoBlocks(tagBlocks(batch, language))
		return srt.JoinBlocks(blocks[:1])
	}

	job := h.start(t, "Polish")
	pl := job.Translation("pl")
	if pl.Status != domain.TranslationStatusCompleted {
		t.Fatalf("status = %s", pl.Status)
	}
	if srt.CountBlocks(*pl.SrtContent) != 6 || strings.Contains(*pl.SrtContent, "[Polish]") {
		t.Errorf("SrtContent = %q, want the 6 English blocks", *pl.SrtContent)
	}
}

func TestProcessUploadFailureAsymmetry(t *testing.T) {
	h := newHarness(t, nil)
	h.store.fail["working_at_height_en.srt"] = 1
	h.store.fail["working_at_height_es.srt"] = 1

	job := h.start(t, "Spanish", "French")

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	en := job.English()
	if en.Status != domain.TranslationStatusFailed || en.ErrorMessage == nil {
		t.Errorf("English = %s %v, want failed with message", en.Status, en.ErrorMessage)
	}
	if job.EnglishSrtURL != nil {
		t.Errorf("EnglishSrtURL = %q, want nil", *job.EnglishSrtURL)
	}
	es := job.Translation("es")
	if es.Status != domain.TranslationStatusCompleted || es.SrtURL != nil {
		t.Errorf("Spanish = %s url=%v, want completed without url", es.Status, es.SrtURL)
	}
	if es.ErrorMessage == nil || !strings.Contains(*es.ErrorMessage, "upload failed") {
		t.Errorf("Spanish ErrorMessage = %v", es.ErrorMessage)
	}
	if fr := job.Translation("fr"); fr.SrtURL == nil {
		t.Error("French SrtURL is nil")
	}
}

func TestProcessNoTargetLanguages(t *testing.T) {
	h := newHarness(t, nil)
	job := h.start(t, "English")

	if job.Status != domain.JobStatusCompleted || len(job.Translations) != 1 {
		t.Fatalf("job = %s with %d rows, want completed with English only", job.Status, len(job.Translations))
	}
	if len(h.translator.calls) != 0 {
		t.Errorf("translator called: %v", h.translator.calls)
	}
}

func TestProcessSkipsFinishedJob(t *testing.T) {
	h := newHarness(t, nil)
	job := h.start(t, "Spanish")

	if err := h.proc.Process(context.Background(), job.ID); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if h.transcriber.calls != 1 {
		t.Errorf("transcriber calls = %d, want 1", h.transcriber.calls)
	}
}

func TestProcessRecoversPanic(t *testing.T) {
	h := newHarness(t, nil)
	h.transcriber.hook = func() { panic("nil map") }

	job := h.start(t, "Spanish")
	if job.Status != domain.JobStatusFailed || !strings.Contains(*job.ErrorMessage, "nil map") {
		t.Errorf("job = %s %v, want failed with panic message", job.Status, job.ErrorMessage)
	}
}

func TestStartProcessingPreconditions(t *testing.T) {
	h := newHarness(t, &queueScheduler{})
	ctx := context.Background()

	deleted := &domain.ToolboxTalk{ID: "talk-deleted", TenantID: testTenant, Title: "Old", IsDeleted: true}
	if err := h.contents.Upsert(ctx, deleted); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		contentID  string
		sourceType domain.SourceType
		languages  []string
		want       error
	}{
		{"missing content", "nope", domain.SourceTypeDirectURL, nil, domain.ErrContentNotFound},
		{"deleted content", "talk-deleted", domain.SourceTypeDirectURL, nil, domain.ErrContentNotFound},
		{"unknown language", testContent, domain.SourceTypeDirectURL, []string{"Klingon"}, domain.ErrUnsupportedLanguage},
		{"unresolvable source", testContent, domain.SourceTypeObjectStorage, nil, domain.ErrUnsupportedSourceType},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.proc.StartProcessing(ctx, testTenant, tc.contentID, testVideo, tc.sourceType, tc.languages)
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestStartProcessingConflict(t *testing.T) {
	sched := &queueScheduler{}
	h := newHarness(t, sched)
	ctx := context.Background()

	first, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, []string{"Spanish"})
	if err != nil {
		t.Fatal(err)
	}
	if len(sched.tasks) != 1 || sched.tasks[0] != "subtitle.process:"+first {
		t.Errorf("scheduled = %v", sched.tasks)
	}

	_, err = h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, nil)
	if !errors.Is(err, domain.ErrJobAlreadyActive) || !strings.Contains(err.Error(), first) {
		t.Errorf("error = %v, want conflict naming %s", err, first)
	}

	view, err := h.proc.GetStatus(ctx, testContent)
	if err != nil || view == nil {
		t.Fatalf("GetStatus() = %v, %v", view, err)
	}
	if view.Status != domain.JobStatusPending || view.Percentage != 0 {
		t.Errorf("view = %s %d%%, want pending 0%%", view.Status, view.Percentage)
	}
}

func TestStartProcessingScheduleFailure(t *testing.T) {
	sched := &queueScheduler{err: scheduler.ErrQueueFull}
	h := newHarness(t, sched)
	ctx := context.Background()

	_, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, nil)
	if !errors.Is(err, scheduler.ErrQueueFull) {
		t.Fatalf("error = %v, want ErrQueueFull", err)
	}
	view, _ := h.proc.GetStatus(ctx, testContent)
	if view == nil || view.Status != domain.JobStatusFailed {
		t.Fatalf("view = %+v, want failed job", view)
	}

	sched.err = nil
	if _, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, nil); err != nil {
		t.Errorf("StartProcessing after schedule failure error = %v", err)
	}
}

func TestCancelProcessing(t *testing.T) {
	h := newHarness(t, &queueScheduler{})
	ctx := context.Background()

	ok, err := h.proc.CancelProcessing(ctx, testContent)
	if ok || err != nil {
		t.Fatalf("CancelProcessing(no job) = %v, %v, want false, nil", ok, err)
	}

	jobID, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, []string{"Spanish", "French"})
	if err != nil {
		t.Fatal(err)
	}
	job := h.load(t, jobID)
	job.Status = domain.JobStatusTranslating
	job.Translation("es").Status = domain.TranslationStatusInProgress
	if err := h.jobs.Save(ctx, job); err != nil {
		t.Fatal(err)
	}

	ok, err = h.proc.CancelProcessing(ctx, testContent)
	if !ok || err != nil {
		t.Fatalf("CancelProcessing() = %v, %v, want true, nil", ok, err)
	}

	job = h.load(t, jobID)
	if job.Status != domain.JobStatusCancelled || job.CompletedAt == nil {
		t.Errorf("job = %s completed_at=%v, want cancelled", job.Status, job.CompletedAt)
	}
	es := job.Translation("es")
	if es.Status != domain.TranslationStatusFailed || es.ErrorMessage == nil || *es.ErrorMessage != "Cancelled by user" {
		t.Errorf("Spanish = %s %v, want failed by cancel", es.Status, es.ErrorMessage)
	}
	if fr := job.Translation("fr"); fr.Status != domain.TranslationStatusPending {
		t.Errorf("French status = %s, want pending", fr.Status)
	}

	_, err = h.proc.CancelProcessing(ctx, testContent)
	var cancelErr *domain.CancelError
	if !errors.As(err, &cancelErr) || !strings.Contains(err.Error(), "already cancelled") {
		t.Errorf("second cancel error = %v, want already cancelled", err)
	}
}

func TestCancelTerminalJobs(t *testing.T) {
	tests := []struct {
		status domain.JobStatus
		want   string
	}{
		{domain.JobStatusCompleted, "cannot cancel a completed job"},
		{domain.JobStatusFailed, "cannot cancel a failed job"},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			h := newHarness(t, &queueScheduler{})
			ctx := context.Background()
			jobID, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, nil)
			if err != nil {
				t.Fatal(err)
			}
			job := h.load(t, jobID)
			job.Status = tc.status
			if err := h.jobs.Save(ctx, job); err != nil {
				t.Fatal(err)
			}

			ok, err := h.proc.CancelProcessing(ctx, testContent)
			if ok || !errors.Is(err, domain.ErrJobNotCancellable) || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("CancelProcessing() = %v, %v, want %q", ok, err, tc.want)
			}
		})
	}
}

func TestCancelDuringTranscriptionStopsPipeline(t *testing.T) {
	h := newHarness(t, nil)
	h.transcriber.hook = func() {
		if ok, err := h.proc.CancelProcessing(context.Background(), testContent); !ok || err != nil {
			t.Errorf("CancelProcessing() = %v, %v", ok, err)
		}
	}

	job := h.start(t, "Spanish")

	if job.Status != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", job.Status)
	}
	if job.EnglishSrtContent != nil || job.TotalSubtitles != 0 {
		t.Errorf("pipeline kept writing after cancel: total=%d", job.TotalSubtitles)
	}
	if len(h.store.files) != 0 || len(h.translator.calls) != 0 {
		t.Errorf("files=%d translator=%v, want no work after cancel", len(h.store.files), h.translator.calls)
	}
}

func TestRetryFailedTranslations(t *testing.T) {
	h := newHarness(t, nil)
	h.store.fail["working_at_height_en.srt"] = 1
	ctx := context.Background()

	job := h.start(t, "Spanish")
	if job.English().Status != domain.TranslationStatusFailed {
		t.Fatalf("English status = %s, want failed", job.English().Status)
	}

	jobID, err := h.proc.RetryFailedTranslations(ctx, testContent)
	if err != nil {
		t.Fatalf("RetryFailedTranslations() error = %v", err)
	}
	if jobID != job.ID {
		t.Errorf("retried job %s, want %s", jobID, job.ID)
	}

	job = h.load(t, jobID)
	if job.Status != domain.JobStatusCompleted || job.ErrorMessage != nil {
		t.Errorf("job = %s %v, want completed", job.Status, job.ErrorMessage)
	}
	if en := job.English(); en.Status != domain.TranslationStatusCompleted || en.SrtURL == nil {
		t.Errorf("English = %s url=%v, want re-uploaded", en.Status, en.SrtURL)
	}
	if job.EnglishSrtURL == nil {
		t.Error("EnglishSrtURL not set after retry")
	}
	if h.translator.calls["Spanish"] != 3 {
		t.Errorf("Spanish translated %d batches, want 3 (not repeated)", h.translator.calls["Spanish"])
	}

	if _, err := h.proc.RetryFailedTranslations(ctx, testContent); !errors.Is(err, domain.ErrNothingToRetry) {
		t.Errorf("second retry error = %v, want ErrNothingToRetry", err)
	}
}

func TestRetryAfterCancelResumesTranslation(t *testing.T) {
	h := newHarness(t, &queueScheduler{})
	ctx := context.Background()

	jobID, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, []string{"Spanish", "French"})
	if err != nil {
		t.Fatal(err)
	}
	job := h.load(t, jobID)
	english := srt.Generate(makeWords(4), 2)
	job.Status = domain.JobStatusTranslating
	job.EnglishSrtContent = domain.StringPtr(english)
	job.TotalSubtitles = 2
	job.English().Status = domain.TranslationStatusCompleted
	job.Translation("es").Status = domain.TranslationStatusInProgress
	if err := h.jobs.Save(ctx, job); err != nil {
		t.Fatal(err)
	}
	if _, err := h.proc.CancelProcessing(ctx, testContent); err != nil {
		t.Fatal(err)
	}

	if _, err := h.proc.RetryFailedTranslations(ctx, testContent); err != nil {
		t.Fatalf("RetryFailedTranslations() error = %v", err)
	}
	job = h.load(t, jobID)
	if job.Status != domain.JobStatusTranslating || job.CompletedAt != nil || job.ErrorMessage != nil {
		t.Errorf("job = %s completed_at=%v err=%v, want translating and cleared", job.Status, job.CompletedAt, job.ErrorMessage)
	}
	if es := job.Translation("es"); es.Status != domain.TranslationStatusPending || es.ErrorMessage != nil {
		t.Errorf("Spanish = %s %v, want pending", es.Status, es.ErrorMessage)
	}

	if err := h.proc.ProcessRetry(ctx, jobID); err != nil {
		t.Fatalf("ProcessRetry() error = %v", err)
	}
	job = h.load(t, jobID)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	// French was still pending when cancelled, so the retry picks it up too.
	for _, code := range []string{"es", "fr"} {
		if tr := job.Translation(code); tr.Status != domain.TranslationStatusCompleted {
			t.Errorf("%s status = %s, want completed", code, tr.Status)
		}
	}
	if h.transcriber.calls != 0 {
		t.Errorf("retry transcribed again")
	}
}

func TestRetryPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("no job", func(t *testing.T) {
		h := newHarness(t, &queueScheduler{})
		if _, err := h.proc.RetryFailedTranslations(ctx, testContent); !errors.Is(err, domain.ErrJobNotFound) {
			t.Errorf("error = %v, want ErrJobNotFound", err)
		}
	})

	t.Run("job still running", func(t *testing.T) {
		h := newHarness(t, &queueScheduler{})
		if _, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, nil); err != nil {
			t.Fatal(err)
		}
		if _, err := h.proc.RetryFailedTranslations(ctx, testContent); !errors.Is(err, domain.ErrJobAlreadyActive) {
			t.Errorf("error = %v, want ErrJobAlreadyActive", err)
		}
	})

	t.Run("english missing", func(t *testing.T) {
		h := newHarness(t, &queueScheduler{})
		jobID, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, []string{"Spanish"})
		if err != nil {
			t.Fatal(err)
		}
		job := h.load(t, jobID)
		job.Status = domain.JobStatusFailed
		job.Translation("es").Status = domain.TranslationStatusFailed
		if err := h.jobs.Save(ctx, job); err != nil {
			t.Fatal(err)
		}
		if _, err := h.proc.RetryFailedTranslations(ctx, testContent); !errors.Is(err, domain.ErrEnglishSrtMissing) {
			t.Errorf("error = %v, want ErrEnglishSrtMissing", err)
		}
	})

	t.Run("nothing failed", func(t *testing.T) {
		h := newHarness(t, nil)
		h.transcriber.err = errors.New("boom")
		h.start(t, "Spanish")
		if _, err := h.proc.RetryFailedTranslations(ctx, testContent); !errors.Is(err, domain.ErrNothingToRetry) {
			t.Errorf("error = %v, want ErrNothingToRetry", err)
		}
	})
}

func TestGetStatusAndSrtContent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	view, err := h.proc.GetStatus(ctx, testContent)
	if view != nil || err != nil {
		t.Fatalf("GetStatus(no job) = %v, %v, want nil, nil", view, err)
	}
	if got, err := h.proc.GetSrtContent(ctx, testContent, "en"); got != nil || err != nil {
		t.Fatalf("GetSrtContent(no job) = %v, %v", got, err)
	}

	job := h.start(t, "Spanish")

	view, err = h.proc.GetStatus(ctx, testContent)
	if err != nil {
		t.Fatal(err)
	}
	if view.JobID != job.ID || view.Percentage != 100 || len(view.Languages) != 2 {
		t.Errorf("view = %+v", view)
	}
	if view.Languages[0].LanguageCode != "en" || view.Languages[1].Percentage != 100 {
		t.Errorf("languages = %+v", view.Languages)
	}

	tests := []struct {
		code    string
		wantNil bool
	}{
		{"en", false},
		{"es", false},
		{"ES", false},
		{"fr", true},
	}
	for _, tc := range tests {
		got, err := h.proc.GetSrtContent(ctx, testContent, tc.code)
		if err != nil {
			t.Fatalf("GetSrtContent(%s) error = %v", tc.code, err)
		}
		if (got == nil) != tc.wantNil {
			t.Errorf("GetSrtContent(%s) nil = %v, want %v", tc.code, got == nil, tc.wantNil)
		}
	}
}

func TestGetSrtContentRequiresCompletedRow(t *testing.T) {
	h := newHarness(t, &queueScheduler{})
	ctx := context.Background()

	jobID, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, []string{"Spanish"})
	if err != nil {
		t.Fatal(err)
	}
	job := h.load(t, jobID)
	es := job.Translation("es")
	es.Status = domain.TranslationStatusInProgress
	es.SrtContent = domain.StringPtr("partial")
	if err := h.jobs.Save(ctx, job); err != nil {
		t.Fatal(err)
	}

	if got, _ := h.proc.GetSrtContent(ctx, testContent, "es"); got != nil {
		t.Errorf("GetSrtContent(in progress) = %q, want nil", *got)
	}
}

func TestAbandonQueuedJobOnPoolStop(t *testing.T) {
	pool := scheduler.NewPool(1, 4, nil)
	h := newHarness(t, pool)
	pool.Handle(scheduler.TaskProcess, h.proc.Process)
	pool.OnDrop(func(ctx context.Context, _ scheduler.Task, jobID string) {
		if err := h.proc.Abandon(ctx, jobID, scheduler.ErrStopped); err != nil {
			t.Errorf("Abandon() error = %v", err)
		}
	})
	ctx := context.Background()

	// The pool is never started, so the job stays queued until Stop.
	jobID, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, []string{"Spanish"})
	if err != nil {
		t.Fatalf("StartProcessing() error = %v", err)
	}
	pool.Stop()

	job := h.load(t, jobID)
	if job.Status != domain.JobStatusFailed || job.CompletedAt == nil {
		t.Fatalf("status = %s completed_at=%v, want failed", job.Status, job.CompletedAt)
	}
	if job.ErrorMessage == nil || !strings.Contains(*job.ErrorMessage, scheduler.ErrStopped.Error()) {
		t.Errorf("error message = %v, want it to mention %q", job.ErrorMessage, scheduler.ErrStopped)
	}
	for _, tr := range job.Translations {
		if tr.Status != domain.TranslationStatusFailed {
			t.Errorf("%s status = %s, want failed", tr.LanguageCode, tr.Status)
		}
	}
	if h.transcriber.calls != 0 {
		t.Errorf("dropped job was transcribed")
	}
	if last := h.progress.last(); last.Status != domain.JobStatusFailed {
		t.Errorf("last snapshot status = %s, want failed", last.Status)
	}

	// The content is no longer blocked by an active job; only the stopped pool refuses.
	_, err = h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, nil)
	if errors.Is(err, domain.ErrJobAlreadyActive) || !errors.Is(err, scheduler.ErrStopped) {
		t.Errorf("StartProcessing after abandon error = %v, want %v", err, scheduler.ErrStopped)
	}
}

func TestAbandonedRetryCanBeRetriedAgain(t *testing.T) {
	h := newHarness(t, &queueScheduler{})
	ctx := context.Background()

	jobID, err := h.proc.StartProcessing(ctx, testTenant, testContent, testVideo, domain.SourceTypeDirectURL, []string{"Spanish", "French"})
	if err != nil {
		t.Fatal(err)
	}
	job := h.load(t, jobID)
	job.Status = domain.JobStatusFailed
	job.EnglishSrtContent = domain.StringPtr(srt.Generate(makeWords(4), 2))
	job.TotalSubtitles = 2
	job.English().Status = domain.TranslationStatusCompleted
	job.Translation("es").Status = domain.TranslationStatusFailed
	job.Translation("fr").Status = domain.TranslationStatusFailed
	if err := h.jobs.Save(ctx, job); err != nil {
		t.Fatal(err)
	}

	if _, err := h.proc.RetryFailedTranslations(ctx, testContent); err != nil {
		t.Fatalf("RetryFailedTranslations() error = %v", err)
	}
	if err := h.proc.Abandon(ctx, jobID, scheduler.ErrStopped); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}

	job = h.load(t, jobID)
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if en := job.English(); en.Status != domain.TranslationStatusCompleted {
		t.Errorf("English status = %s, want completed", en.Status)
	}
	for _, code := range []string{"es", "fr"} {
		tr := job.Translation(code)
		if tr.Status != domain.TranslationStatusFailed || tr.ErrorMessage == nil || !strings.HasPrefix(*tr.ErrorMessage, "not processed: ") {
			t.Errorf("%s = %s %v, want failed with not processed message", code, tr.Status, tr.ErrorMessage)
		}
	}

	if _, err := h.proc.RetryFailedTranslations(ctx, testContent); err != nil {
		t.Errorf("second RetryFailedTranslations() error = %v", err)
	}
}

func TestAbandonIgnoresFinishedJob(t *testing.T) {
	h := newHarness(t, nil)
	job := h.start(t, "Spanish")
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}

	if err := h.proc.Abandon(context.Background(), job.ID, scheduler.ErrStopped); err != nil {
		t.Fatalf("Abandon() error = %v", err)
	}
	if got := h.load(t, job.ID).Status; got != domain.JobStatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
}

func TestProcessorUsesInjectedLogger(t *testing.T) {
	h := newHarness(t, &queueScheduler{})
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf, ServiceName: "processor-test"})

	proc := NewSubtitleProcessor(
		h.jobs,
		h.contents,
		source.NewRegistry(source.NewDirectResolver()),
		h.transcriber,
		h.translator,
		h.store,
		h.progress,
		&queueScheduler{},
		log,
		nil,
	)
	if _, err := proc.StartProcessing(context.Background(), testTenant, testContent, testVideo, domain.SourceTypeDirectURL, nil); err != nil {
		t.Fatalf("StartProcessing() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Subtitle job created") || !strings.Contains(out, testContent) {
		t.Errorf("injected logger output = %q, want the job creation entry with content id", out)
	}
}

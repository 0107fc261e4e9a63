package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/timmy/subtitles/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var terminalStatuses = []domain.JobStatus{
	domain.JobStatusCompleted,
	domain.JobStatusFailed,
	domain.JobStatusCancelled,
}

// JobRepository persists the ProcessingJob aggregate. Translations are always
// created, loaded and saved together with their job.
type JobRepository struct {
	db *gorm.DB

	// createMu serializes the active-job check and insert within this process.
	createMu sync.Mutex
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateIfNoActive inserts job and its translations unless another
// non-terminal job exists for the same content.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: new job with its Translation rows populated.
// Returns:
//   - error: *domain.ActiveJobError naming the blocking job, or a database error.
func (r *JobRepository) CreateIfNoActive(ctx context.Context, job *domain.ProcessingJob) error {
	r.createMu.Lock()
	defer r.createMu.Unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active domain.ProcessingJob
		err := tx.Select("id", "status").
			Where("content_id = ? AND status NOT IN ?", job.ContentID, terminalStatuses).
			Order("created_at DESC").
			Take(&active).Error
		switch {
		case err == nil:
			return &domain.ActiveJobError{JobID: active.ID, Status: active.Status}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to check active jobs: %w", err)
		}

		if err := tx.Create(job).Error; err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		return nil
	})
}

// GetByID loads a job with its translations in creation order.
// Returns domain.ErrJobNotFound if the job does not exist.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	err := r.withTranslations(r.db.WithContext(ctx)).First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// LatestByContentID loads the most recently created job for a content ID.
// Returns domain.ErrJobNotFound if the content has never been processed.
func (r *JobRepository) LatestByContentID(ctx context.Context, contentID string) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	err := r.withTranslations(r.db.WithContext(ctx)).
		Where("content_id = ?", contentID).
		Order("created_at DESC").
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Save commits every field of the job and its translations in one transaction.
func (r *JobRepository) Save(ctx context.Context, job *domain.ProcessingJob) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveAggregate(tx, job)
	})
}

// SaveIfNotCancelled is Save guarded by the persisted status: when the stored
// job has been cancelled it writes nothing and returns domain.ErrJobCancelled.
func (r *JobRepository) SaveIfNotCancelled(ctx context.Context, job *domain.ProcessingJob) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current domain.ProcessingJob
		if err := selectStatus(tx, job.ID, &current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrJobNotFound
			}
			return err
		}
		if current.Status == domain.JobStatusCancelled {
			return domain.ErrJobCancelled
		}
		return saveAggregate(tx, job)
	})
}

// selectStatus reads the job's status inside tx. On postgres the row stays
// locked until tx ends so a concurrent cancel cannot commit in between; sqlite
// serializes writers and fails a stale write transaction with SQLITE_BUSY.
func selectStatus(tx *gorm.DB, id string, dest *domain.ProcessingJob) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx.Select("id", "status").First(dest, "id = ?", id)
}

// GetStatus returns only the persisted status of a job.
func (r *JobRepository) GetStatus(ctx context.Context, id string) (domain.JobStatus, error) {
	var job domain.ProcessingJob
	if err := r.db.WithContext(ctx).Select("id", "status").First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrJobNotFound
		}
		return "", err
	}
	return job.Status, nil
}

func (r *JobRepository) withTranslations(db *gorm.DB) *gorm.DB {
	return db.Preload("Translations", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

func saveAggregate(tx *gorm.DB, job *domain.ProcessingJob) error {
	if err := tx.Omit(clause.Associations).Save(job).Error; err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	for i := range job.Translations {
		t := &job.Translations[i]
		t.JobID = job.ID
		if err := tx.Save(t).Error; err != nil {
			return fmt.Errorf("failed to save %s translation of job %s: %w", t.LanguageCode, job.ID, err)
		}
	}
	return nil
}

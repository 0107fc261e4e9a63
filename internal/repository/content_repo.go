package repository

import (
	"context"
	"errors"

	"github.com/timmy/subtitles/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContentRepository reads toolbox talks, the content a subtitle job belongs to.
type ContentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// FindByID retrieves a toolbox talk by ID, including soft-deleted ones.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: toolbox talk ID.
// Returns:
//   - *domain.ToolboxTalk: the record; callers check IsDeleted.
//   - error: domain.ErrContentNotFound if no row exists.
func (r *ContentRepository) FindByID(ctx context.Context, id string) (*domain.ToolboxTalk, error) {
	var talk domain.ToolboxTalk
	if err := r.db.WithContext(ctx).First(&talk, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrContentNotFound
		}
		return nil, err
	}
	return &talk, nil
}

// Upsert creates or updates a toolbox talk keyed by ID.
func (r *ContentRepository) Upsert(ctx context.Context, talk *domain.ToolboxTalk) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "title", "is_deleted", "updated_at"}),
	}).Create(talk).Error
}

package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/nest-haus/backend/internal/domain/imagesync"
	"github.com/nest-haus/backend/internal/infrastructure/persistence/models"
)

var _ imagesync.RunRepository = (*GormSyncRunRepository)(nil)

// GormSyncRunRepository records image sync runs
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Save inserts or replaces a run record
func (r *GormSyncRunRepository) Save(ctx context.Context, run *imagesync.Run) error {
	m, err := models.ImageSyncRunFromDomain(run)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(m).Error
}

// Latest returns the most recent run, or nil when none was recorded
func (r *GormSyncRunRepository) Latest(ctx context.Context) (*imagesync.Run, error) {
	var m models.ImageSyncRunModel
	if err := r.db.WithContext(ctx).Order("started_at DESC").First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// List returns up to limit runs, newest first
func (r *GormSyncRunRepository) List(ctx context.Context, limit int) ([]imagesync.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.ImageSyncRunModel
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]imagesync.Run, 0, len(rows))
	for i := range rows {
		runs = append(runs, *rows[i].ToDomain())
	}
	return runs, nil
}

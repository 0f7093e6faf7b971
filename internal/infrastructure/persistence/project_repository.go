package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/nest-haus/backend/internal/domain/project"
)

var _ project.Repository = (*GormProjectRepository)(nil)

// GormProjectRepository implements project.Repository using GORM
type GormProjectRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormProjectRepository creates a new GormProjectRepository
func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	return &GormProjectRepository{db: db, now: time.Now}
}

// List returns tasks ordered by start date then task id
func (r *GormProjectRepository) List(ctx context.Context) ([]project.Task, error) {
	var tasks []project.Task
	err := r.db.WithContext(ctx).Order("start_date ASC").Order("task_id ASC").Find(&tasks).Error
	return tasks, err
}

// FindByID finds a task by its task id
func (r *GormProjectRepository) FindByID(ctx context.Context, id string) (*project.Task, error) {
	var t project.Task
	if err := r.db.WithContext(ctx).Where("task_id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, project.ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Create inserts t, rejecting duplicate task ids
func (r *GormProjectRepository) Create(ctx context.Context, t *project.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensureUnique(tx, t); err != nil {
			return err
		}
		return tx.Create(t).Error
	})
}

// Save updates t, rejecting a task id already held by another task
func (r *GormProjectRepository) Save(ctx context.Context, t *project.Task) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensureUnique(tx, t); err != nil {
			return err
		}
		return tx.Save(t).Error
	})
}

func (r *GormProjectRepository) ensureUnique(tx *gorm.DB, t *project.Task) error {
	var n int64
	if err := tx.Model(&project.Task{}).
		Where("task_id = ? AND id <> ?", t.TaskID, t.ID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return project.ErrDuplicateTaskID
	}
	return nil
}

// Delete removes the task with the given task id
func (r *GormProjectRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("task_id = ?", id).Delete(&project.Task{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return project.ErrTaskNotFound
	}
	return nil
}

// Renumber applies changes in one transaction. Every task first moves to a
// temporary id so that swapped ids never collide on the unique index.
func (r *GormProjectRepository) Renumber(ctx context.Context, changes []project.Renumbering) error {
	if len(changes) == 0 {
		return nil
	}
	now := r.now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			if err := renameTask(tx, c.Old, c.TempID(), now); err != nil {
				return err
			}
		}
		for _, c := range changes {
			if err := renameTask(tx, c.TempID(), c.New, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func renameTask(tx *gorm.DB, from, to string, now time.Time) error {
	result := tx.Model(&project.Task{}).
		Where("task_id = ?", from).
		Updates(map[string]any{"task_id": to, "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return project.ErrTaskNotFound
	}
	return nil
}

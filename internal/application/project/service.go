// Package project serves the admin milestone board.
package project

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/domain/project"
)

// Service manages project tasks.
type Service struct {
	repo   project.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a project service.
func NewService(repo project.Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger.Named("project"), now: time.Now}
}

// List returns every task in board order.
func (s *Service) List(ctx context.Context) ([]project.Task, error) {
	return s.repo.List(ctx)
}

// Get returns the task with taskID.
func (s *Service) Get(ctx context.Context, taskID string) (*project.Task, error) {
	return s.repo.FindByID(ctx, taskID)
}

// Create adds a task. A taskId already in use is a conflict.
func (s *Service) Create(ctx context.Context, d project.Draft) (*project.Task, error) {
	t, err := project.NewTask(d, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("Task created", zap.String("task_id", t.TaskID))
	return t, nil
}

// Update replaces the task currently stored as taskID. The draft may carry a
// new taskId.
func (s *Service) Update(ctx context.Context, taskID string, d project.Draft) (*project.Task, error) {
	t, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if d.TaskID == "" {
		d.TaskID = taskID
	}
	if err := t.Update(d, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task.
func (s *Service) Delete(ctx context.Context, taskID string) error {
	if err := s.repo.Delete(ctx, taskID); err != nil {
		return err
	}
	s.logger.Info("Task deleted", zap.String("task_id", taskID))
	return nil
}

// ReorganizeResult lists the applied id changes.
type ReorganizeResult struct {
	Changes []project.Renumbering `json:"changes"`
	Total   int                   `json:"total"`
}

// Reorganize renumbers regular tasks in chronological phase order. Nothing
// is written when every id is already in place.
func (s *Service) Reorganize(ctx context.Context) (*ReorganizeResult, error) {
	tasks, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	changes := project.Reorganize(tasks)
	if err := s.repo.Renumber(ctx, changes); err != nil {
		return nil, err
	}
	s.logger.Info("Tasks reorganized", zap.Int("tasks", len(tasks)), zap.Int("renumbered", len(changes)))
	if changes == nil {
		changes = []project.Renumbering{}
	}
	return &ReorganizeResult{Changes: changes, Total: len(tasks)}, nil
}

// Package project holds the admin project-management milestones and the
// renumbering rule that keeps task ids in chronological phase order.
package project

import (
	"context"
	"strings"
	"time"

	"github.com/nest-haus/backend/internal/domain/shared"
)

// Priority of a task (German labels are what the admin board shows)
type Priority string

const (
	PriorityLow    Priority = "NIEDRIG"
	PriorityMedium Priority = "MITTEL"
	PriorityHigh   Priority = "HOCH"
)

// Status of a task
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusBlocked    Status = "BLOCKED"
)

var (
	ErrDuplicateTaskID = shared.ErrAlreadyExists.WithMessage("Task ID already exists")
	ErrTaskNotFound    = shared.ErrNotFound.WithMessage("Task not found")
)

// Task is a project milestone or work item
type Task struct {
	shared.BaseEntity
	TaskID      string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"taskId"`
	Task        string    `gorm:"type:text;not null" json:"task"`
	Responsible string    `gorm:"type:varchar(255);not null" json:"responsible"`
	StartDate   time.Time `gorm:"not null;index" json:"startDate"`
	EndDate     time.Time `gorm:"not null" json:"endDate"`
	Duration    int       `gorm:"not null;default:1" json:"duration"`
	Milestone   bool      `gorm:"not null;default:false" json:"milestone"`
	Priority    Priority  `gorm:"type:varchar(16);not null;default:'MITTEL'" json:"priority"`
	Notes       string    `gorm:"type:text" json:"notes,omitempty"`
	Status      Status    `gorm:"type:varchar(20);not null;default:'PENDING'" json:"status"`
}

// TableName returns the table name for GORM
func (Task) TableName() string {
	return "project_tasks"
}

// Draft is the input for creating or replacing a task.
type Draft struct {
	TaskID      string     `json:"taskId"`
	Task        string     `json:"task"`
	Responsible string     `json:"responsible"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	Duration    int        `json:"duration,omitempty"`
	Milestone   bool       `json:"milestone,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Status      Status     `json:"status,omitempty"`
}

// Validate reports missing required fields the way the admin board expects them.
func (d Draft) Validate() error {
	var missing []string
	if strings.TrimSpace(d.TaskID) == "" {
		missing = append(missing, "taskId")
	}
	if strings.TrimSpace(d.Task) == "" {
		missing = append(missing, "task")
	}
	if strings.TrimSpace(d.Responsible) == "" {
		missing = append(missing, "responsible")
	}
	if d.StartDate == nil {
		missing = append(missing, "startDate")
	}
	if d.EndDate == nil {
		missing = append(missing, "endDate")
	}
	if len(missing) > 0 {
		return shared.ErrInvalidInput.WithMessage("Missing required fields: " + strings.Join(missing, ", "))
	}
	if d.EndDate.Before(*d.StartDate) {
		return shared.ErrInvalidInput.WithMessage("endDate must not be before startDate")
	}
	switch d.Priority {
	case "", PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return shared.ErrInvalidInput.WithMessage("Unknown priority: " + string(d.Priority))
	}
	switch d.Status {
	case "", StatusPending, StatusInProgress, StatusCompleted, StatusBlocked:
	default:
		return shared.ErrInvalidInput.WithMessage("Unknown status: " + string(d.Status))
	}
	return nil
}

// NewTask builds a task from d, filling defaults.
func NewTask(d Draft, now time.Time) (*Task, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	t := &Task{BaseEntity: shared.NewBaseEntityAt(now)}
	t.apply(d)
	return t, nil
}

// Update replaces the task's fields with d.
func (t *Task) Update(d Draft, now time.Time) error {
	if err := d.Validate(); err != nil {
		return err
	}
	t.apply(d)
	t.Touch(now)
	return nil
}

func (t *Task) apply(d Draft) {
	t.TaskID = strings.TrimSpace(d.TaskID)
	t.Task = d.Task
	t.Responsible = d.Responsible
	t.StartDate = *d.StartDate
	t.EndDate = *d.EndDate
	t.Duration = d.Duration
	if t.Duration <= 0 {
		t.Duration = 1
	}
	t.Milestone = d.Milestone
	t.Priority = d.Priority
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	t.Notes = d.Notes
	t.Status = d.Status
	if t.Status == "" {
		t.Status = StatusPending
	}
}

// Repository persists tasks
type Repository interface {
	// List returns tasks ordered by start date then task id.
	List(ctx context.Context) ([]Task, error)
	FindByID(ctx context.Context, id string) (*Task, error)
	Create(ctx context.Context, t *Task) error
	Save(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	// Renumber applies changes atomically.
	Renumber(ctx context.Context, changes []Renumbering) error
}

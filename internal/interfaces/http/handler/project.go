package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	appproject "github.com/nest-haus/backend/internal/application/project"
	"github.com/nest-haus/backend/internal/domain/project"
)

// ProjectService manages the milestone board.
type ProjectService interface {
	List(ctx context.Context) ([]project.Task, error)
	Get(ctx context.Context, taskID string) (*project.Task, error)
	Create(ctx context.Context, d project.Draft) (*project.Task, error)
	Update(ctx context.Context, taskID string, d project.Draft) (*project.Task, error)
	Delete(ctx context.Context, taskID string) error
	Reorganize(ctx context.Context) (*appproject.ReorganizeResult, error)
}

// ProjectHandler serves the admin milestone board.
type ProjectHandler struct {
	BaseHandler
	svc ProjectService
}

// NewProjectHandler creates a ProjectHandler.
func NewProjectHandler(svc ProjectService) *ProjectHandler {
	return &ProjectHandler{svc: svc}
}

// List returns all tasks ordered by start date.
func (h *ProjectHandler) List(c *gin.Context) {
	tasks, err := h.svc.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"tasks": tasks, "count": len(tasks)})
}

// Get returns one task.
func (h *ProjectHandler) Get(c *gin.Context) {
	task, err := h.svc.Get(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, task)
}

// Create adds a task; a duplicate task id answers 409.
func (h *ProjectHandler) Create(c *gin.Context) {
	var d project.Draft
	if !h.BindJSON(c, &d) {
		return
	}
	task, err := h.svc.Create(c.Request.Context(), d)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, task)
}

// Update replaces a task.
func (h *ProjectHandler) Update(c *gin.Context) {
	var d project.Draft
	if !h.BindJSON(c, &d) {
		return
	}
	task, err := h.svc.Update(c.Request.Context(), c.Param("taskId"), d)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, task)
}

// Delete removes a task.
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("taskId")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"deleted": c.Param("taskId")})
}

// Reorganize renumbers the regular tasks by phase.
func (h *ProjectHandler) Reorganize(c *gin.Context) {
	res, err := h.svc.Reorganize(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}

package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	appimagesync "github.com/nest-haus/backend/internal/application/imagesync"
	"github.com/nest-haus/backend/internal/domain/imagesync"
	"github.com/nest-haus/backend/internal/interfaces/http/dto"
	"github.com/nest-haus/backend/internal/interfaces/http/middleware"
)

// ImageSyncService runs the Drive to Blob sync.
type ImageSyncService interface {
	Run(ctx context.Context, opts imagesync.Options) (*imagesync.Result, error)
	Status(ctx context.Context, limit int) (*appimagesync.Status, error)
}

// SyncHandler serves the image sync trigger.
type SyncHandler struct {
	BaseHandler
	svc ImageSyncService
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(svc ImageSyncService) *SyncHandler {
	return &SyncHandler{svc: svc}
}

// SyncRequest holds the run options. They may come from the query or a JSON
// body; body values win.
type SyncRequest struct {
	Days     int  `form:"days" json:"days" binding:"omitempty,min=1,max=365"`
	FullSync bool `form:"fullSync" json:"fullSync"`
	DryRun   bool `form:"dryRun" json:"dryRun"`
}

// Status reports configuration and recent runs.
func (h *SyncHandler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context(), 10)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, st)
}

// Run starts a sync and waits for it. Aborted and failed runs still return
// their result so the caller sees the reason.
func (h *SyncHandler) Run(c *gin.Context) {
	var req SyncRequest
	if !h.BindQuery(c, &req) {
		return
	}
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	opts := imagesync.Options{
		Days:     req.Days,
		FullSync: req.FullSync,
		DryRun:   req.DryRun,
		Trigger:  triggerOf(c),
	}
	res, err := h.svc.Run(c.Request.Context(), opts)
	switch {
	case errors.Is(err, imagesync.ErrSyncInProgress):
		h.Error(c, http.StatusConflict, dto.ErrCodeConflict, "A sync is already running")
	case errors.Is(err, appimagesync.ErrNotConfigured):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, "Google Drive or blob storage is not configured")
	case err != nil && res != nil:
		status, code := http.StatusInternalServerError, dto.ErrCodeInternal
		if res.Aborted {
			status, code = http.StatusUnprocessableEntity, dto.ErrCodeInvalidState
		}
		c.JSON(status, dto.Response{
			Success: false,
			Data:    res,
			Error: &dto.ErrorInfo{
				Code:      code,
				Message:   err.Error(),
				RequestID: middleware.GetRequestID(c),
			},
		})
	case err != nil:
		h.HandleError(c, err)
	default:
		h.Success(c, res)
	}
}

// triggerOf reports admin when CronAuth accepted an admin token.
func triggerOf(c *gin.Context) imagesync.Trigger {
	if middleware.IsAdmin(c) {
		return imagesync.TriggerAdmin
	}
	return imagesync.TriggerCron
}

package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	appimages "github.com/nest-haus/backend/internal/application/images"
	"github.com/nest-haus/backend/internal/domain/imagesync"
)

// ImageResolver maps clean image paths to blob URLs.
type ImageResolver interface {
	Resolve(ctx context.Context, path string) (*appimages.Resolution, error)
	ResolveBatch(ctx context.Context, paths []string) (map[string]*appimages.Resolution, error)
	Catalog(ctx context.Context) (imagesync.Catalog, error)
}

// ImageHandler serves image lookups.
type ImageHandler struct {
	BaseHandler
	svc ImageResolver
}

// NewImageHandler creates an ImageHandler.
func NewImageHandler(svc ImageResolver) *ImageHandler {
	return &ImageHandler{svc: svc}
}

// Resolve looks up ?path=.
func (h *ImageHandler) Resolve(c *gin.Context) {
	res, err := h.svc.Resolve(c.Request.Context(), c.Query("path"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	h.Success(c, res)
}

// BatchRequest lists paths to resolve.
type BatchRequest struct {
	Paths []string `json:"paths" binding:"required"`
}

// ResolveBatch looks up many paths at once.
func (h *ImageHandler) ResolveBatch(c *gin.Context) {
	var req BatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.svc.ResolveBatch(c.Request.Context(), req.Paths)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"images": res, "count": len(res)})
}

// Catalog returns the image constants catalog.
func (h *ImageHandler) Catalog(c *gin.Context) {
	catalog, err := h.svc.Catalog(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"catalog": catalog, "count": len(catalog)})
}

package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apppricing "github.com/nest-haus/backend/internal/application/pricing"
	"github.com/nest-haus/backend/internal/domain/pricing"
	"github.com/nest-haus/backend/internal/interfaces/http/dto"
)

// PricingService prices configurations and syncs the sheet.
type PricingService interface {
	Table(ctx context.Context) (*pricing.PriceTable, error)
	Calculate(ctx context.Context, sel pricing.Selections) (*apppricing.Quote, error)
	Relative(ctx context.Context, sel pricing.Selections, category, option string) (*apppricing.RelativeQuote, error)
	Sync(ctx context.Context, trigger string) (*pricing.SyncLog, error)
	LastSync(ctx context.Context) (*pricing.SyncLog, error)
}

// PricingHandler serves the calculator and the pricing admin.
type PricingHandler struct {
	BaseHandler
	svc PricingService
}

// NewPricingHandler creates a PricingHandler.
func NewPricingHandler(svc PricingService) *PricingHandler {
	return &PricingHandler{svc: svc}
}

// Table returns the current price table.
func (h *PricingHandler) Table(c *gin.Context) {
	table, err := h.svc.Table(c.Request.Context())
	if err != nil {
		h.pricingError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	h.Success(c, table)
}

// Calculate prices a configuration.
func (h *PricingHandler) Calculate(c *gin.Context) {
	var sel pricing.Selections
	if !h.BindJSON(c, &sel) {
		return
	}
	quote, err := h.svc.Calculate(c.Request.Context(), sel)
	if err != nil {
		h.pricingError(c, err)
		return
	}
	h.Success(c, quote)
}

// RelativeRequest asks for the price change of one option switch.
type RelativeRequest struct {
	Selections pricing.Selections `json:"selections"`
	Category   string             `json:"category" binding:"required"`
	Option     string             `json:"option" binding:"required"`
}

// Relative returns the delta of switching one category.
func (h *PricingHandler) Relative(c *gin.Context) {
	var req RelativeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	quote, err := h.svc.Relative(c.Request.Context(), req.Selections, req.Category, req.Option)
	if err != nil {
		h.pricingError(c, err)
		return
	}
	h.Success(c, quote)
}

// Sync reads the pricing sheet and updates the stored items.
func (h *PricingHandler) Sync(c *gin.Context) {
	entry, err := h.svc.Sync(c.Request.Context(), "admin")
	if err != nil {
		if entry != nil {
			c.JSON(http.StatusBadGateway, dto.Response{
				Success: false,
				Data:    entry,
				Error:   &dto.ErrorInfo{Code: dto.ErrCodeServiceUnavailable, Message: err.Error()},
			})
			return
		}
		h.pricingError(c, err)
		return
	}
	h.Success(c, entry)
}

// LastSync returns the most recent sync log.
func (h *PricingHandler) LastSync(c *gin.Context) {
	entry, err := h.svc.LastSync(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"lastSync": entry})
}

func (h *PricingHandler) pricingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apppricing.ErrNotConfigured):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, "Pricing data is not configured")
	case errors.Is(err, pricing.ErrSheetEmpty):
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeServiceUnavailable, "Pricing data is unavailable")
	default:
		h.HandleError(c, err)
	}
}

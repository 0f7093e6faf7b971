package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	appanalytics "github.com/nest-haus/backend/internal/application/analytics"
	"github.com/nest-haus/backend/internal/domain/analytics"
)

// AnalyticsService reports on configurator usage.
type AnalyticsService interface {
	Overview(ctx context.Context, r analytics.Range) (*analytics.Overview, error)
	Popular(ctx context.Context, limit int) ([]analytics.PopularConfiguration, error)
	Daily(ctx context.Context, r analytics.Range) ([]analytics.DailyAnalytics, error)
	RecordPerformanceMetric(ctx context.Context, in appanalytics.MetricInput, userAgent string) error
}

// AnalyticsHandler serves the admin dashboard and client timings.
type AnalyticsHandler struct {
	BaseHandler
	svc AnalyticsService
	now func() time.Time
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(svc AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, now: time.Now}
}

// RangeQuery selects a trailing window in days.
type RangeQuery struct {
	Days int `form:"days" binding:"omitempty,min=1,max=365"`
}

// LimitQuery bounds a ranking.
type LimitQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// Overview returns the headline numbers for the last ?days (default 30).
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	var q RangeQuery
	if !h.BindQuery(c, &q) {
		return
	}
	overview, err := h.svc.Overview(c.Request.Context(), analytics.LastDays(q.Days, h.now()))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, overview)
}

// Popular returns the most configured houses.
func (h *AnalyticsHandler) Popular(c *gin.Context) {
	q := LimitQuery{Limit: 10}
	if !h.BindQuery(c, &q) {
		return
	}
	items, err := h.svc.Popular(c.Request.Context(), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"configurations": items, "count": len(items)})
}

// Daily returns the nightly aggregates for the last ?days.
func (h *AnalyticsHandler) Daily(c *gin.Context) {
	var q RangeQuery
	if !h.BindQuery(c, &q) {
		return
	}
	days, err := h.svc.Daily(c.Request.Context(), analytics.LastDays(q.Days, h.now()))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"days": days})
}

// Performance stores a client-reported timing.
func (h *AnalyticsHandler) Performance(c *gin.Context) {
	var in appanalytics.MetricInput
	if !h.BindJSON(c, &in) {
		return
	}
	in.SessionID = sessionID(c, in.SessionID)
	if err := h.svc.RecordPerformanceMetric(c.Request.Context(), in, c.Request.UserAgent()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"recorded": true})
}

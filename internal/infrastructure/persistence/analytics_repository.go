package persistence

import (
	"context"
	"errors"
	"math"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nest-haus/backend/internal/domain/analytics"
	"github.com/nest-haus/backend/internal/domain/session"
)

var _ analytics.Repository = (*GormAnalyticsRepository)(nil)

// GormAnalyticsRepository implements analytics.Repository using GORM
type GormAnalyticsRepository struct {
	db *gorm.DB
}

// NewGormAnalyticsRepository creates a new GormAnalyticsRepository
func NewGormAnalyticsRepository(db *gorm.DB) *GormAnalyticsRepository {
	return &GormAnalyticsRepository{db: db}
}

// SessionStats aggregates sessions started within r. Active counts sessions
// with activity at or after activeSince regardless of r.
func (r *GormAnalyticsRepository) SessionStats(ctx context.Context, rng analytics.Range, activeSince time.Time) (analytics.SessionStats, error) {
	var stats analytics.SessionStats
	db := r.db.WithContext(ctx)

	var agg struct {
		Total       int64
		UniqueUsers int64
		AvgDuration *float64
	}
	err := db.Model(&session.UserSession{}).
		Select("COUNT(*) AS total, COUNT(DISTINCT user_identifier) AS unique_users, AVG(duration_ms) AS avg_duration").
		Where("start_time >= ? AND start_time < ?", rng.From, rng.To).
		Scan(&agg).Error
	if err != nil {
		return stats, err
	}
	stats.Total = agg.Total
	stats.UniqueUsers = agg.UniqueUsers
	if agg.AvgDuration != nil {
		stats.AvgDurationMs = int64(math.Round(*agg.AvgDuration))
	}

	if err := db.Model(&session.UserSession{}).
		Where("status = ? AND last_activity >= ?", session.StatusActive, activeSince).
		Count(&stats.Active).Error; err != nil {
		return stats, err
	}
	if err := db.Model(&session.InteractionEvent{}).
		Where("timestamp >= ? AND timestamp < ?", rng.From, rng.To).
		Count(&stats.Interactions).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// CompletedConfigurations returns configuration snapshots of sessions completed within r
func (r *GormAnalyticsRepository) CompletedConfigurations(ctx context.Context, rng analytics.Range) ([]analytics.CompletedConfiguration, error) {
	var rows []session.UserSession
	err := r.db.WithContext(ctx).
		Select("session_id", "configuration_data", "total_price", "end_time").
		Where("status = ? AND end_time >= ? AND end_time < ?", session.StatusCompleted, rng.From, rng.To).
		Where("configuration_data IS NOT NULL AND configuration_data <> ''").
		Order("end_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]analytics.CompletedConfiguration, 0, len(rows))
	for _, s := range rows {
		c := analytics.CompletedConfiguration{SessionID: s.SessionID, ConfigurationData: s.ConfigurationData}
		if s.TotalPrice != nil {
			c.TotalPrice = *s.TotalPrice
		}
		if s.EndTime != nil {
			c.EndTime = *s.EndTime
		}
		out = append(out, c)
	}
	return out, nil
}

// TopConfigurations returns the most selected configurations
func (r *GormAnalyticsRepository) TopConfigurations(ctx context.Context, limit int) ([]analytics.PopularConfiguration, error) {
	if limit <= 0 {
		limit = 10
	}
	var items []analytics.PopularConfiguration
	err := r.db.WithContext(ctx).
		Order("selection_count DESC").
		Order("average_price DESC").
		Order("configuration_hash ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// UpsertPopular inserts p or overwrites the counters of the row with the same hash
func (r *GormAnalyticsRepository) UpsertPopular(ctx context.Context, p *analytics.PopularConfiguration) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "configuration_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"selection_count", "total_price_sum", "average_price", "last_selected", "updated_at",
		}),
	}).Create(p).Error
}

// FindPopular finds a popular configuration by hash, or nil
func (r *GormAnalyticsRepository) FindPopular(ctx context.Context, hash string) (*analytics.PopularConfiguration, error) {
	var p analytics.PopularConfiguration
	if err := r.db.WithContext(ctx).Where("configuration_hash = ?", hash).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// SaveDaily inserts d or replaces the aggregate of the same date
func (r *GormAnalyticsRepository) SaveDaily(ctx context.Context, d *analytics.DailyAnalytics) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_sessions", "unique_users", "total_interactions", "inquiries",
			"conversions", "revenue", "avg_session_ms", "updated_at",
		}),
	}).Create(d).Error
}

// ListDaily returns daily aggregates within r, oldest first
func (r *GormAnalyticsRepository) ListDaily(ctx context.Context, rng analytics.Range) ([]analytics.DailyAnalytics, error) {
	var days []analytics.DailyAnalytics
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date < ?", rng.From, rng.To).
		Order("date ASC").
		Find(&days).Error
	return days, err
}

// SavePerformanceMetric inserts a client-reported timing
func (r *GormAnalyticsRepository) SavePerformanceMetric(ctx context.Context, m *analytics.PerformanceMetric) error {
	return r.db.WithContext(ctx).Create(m).Error
}

package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nest-haus/backend/internal/domain/session"
)

var _ session.Repository = (*GormSessionRepository)(nil)

// GormSessionRepository implements session.Repository using GORM
type GormSessionRepository struct {
	db *gorm.DB
}

// NewGormSessionRepository creates a new GormSessionRepository
func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// FindBySessionID finds a session by its client session id
func (r *GormSessionRepository) FindBySessionID(ctx context.Context, sessionID string) (*session.UserSession, error) {
	var s session.UserSession
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// FindLatestForVisitor returns the visitor's most recently visited session, or nil
func (r *GormSessionRepository) FindLatestForVisitor(ctx context.Context, userIdentifier string) (*session.UserSession, error) {
	var s session.UserSession
	err := r.db.WithContext(ctx).
		Where("user_identifier = ?", userIdentifier).
		Order("last_visit_date DESC").
		Order("start_time DESC").
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// sessionUpsertColumns are overwritten when a session row already exists.
var sessionUpsertColumns = []string{
	"user_identifier", "ip_address", "user_agent", "referrer", "last_activity", "end_time",
	"duration_ms", "status", "total_price", "configuration_data", "visit_count", "last_visit_date",
	"country", "city", "latitude", "longitude", "traffic_source", "traffic_medium",
	"referral_domain", "device_type", "updated_at",
}

// Save inserts s or updates the row with the same session id
func (r *GormSessionRepository) Save(ctx context.Context, s *session.UserSession) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns(sessionUpsertColumns),
	}).Create(s).Error
}

// Touch bumps last activity and, when given, the total price
func (r *GormSessionRepository) Touch(ctx context.Context, sessionID string, at time.Time, totalPrice *int64) error {
	updates := map[string]any{"last_activity": at, "updated_at": at}
	if totalPrice != nil {
		updates["total_price"] = *totalPrice
	}
	result := r.db.WithContext(ctx).Model(&session.UserSession{}).
		Where("session_id = ?", sessionID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return session.ErrSessionNotFound
	}
	return nil
}

// SaveSnapshot stores the configuration snapshot, creating the session when it does not exist yet
func (r *GormSessionRepository) SaveSnapshot(ctx context.Context, sessionID, configuration string, totalPrice int64, client session.ClientInfo, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s session.UserSession
		err := tx.Where("session_id = ?", sessionID).First(&s).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created := session.NewUserSession(sessionID, client, at)
			created.ConfigurationData = configuration
			created.TotalPrice = &totalPrice
			return tx.Create(created).Error
		case err != nil:
			return err
		}
		return tx.Model(&s).Updates(map[string]any{
			"configuration_data": configuration,
			"total_price":        totalPrice,
			"last_activity":      at,
			"updated_at":         at,
		}).Error
	})
}

// CreateSelectionEvents inserts selection events in one statement
func (r *GormSessionRepository) CreateSelectionEvents(ctx context.Context, events ...*session.SelectionEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

// CreateInteractionEvent inserts one interaction event
func (r *GormSessionRepository) CreateInteractionEvent(ctx context.Context, ev *session.InteractionEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

// ListInteractions returns the newest interactions of a session first
func (r *GormSessionRepository) ListInteractions(ctx context.Context, sessionID string, limit int) ([]session.InteractionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []session.InteractionEvent
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkCompleted finalizes the session as COMPLETED with its last configuration
func (r *GormSessionRepository) MarkCompleted(ctx context.Context, sessionID, configuration string, totalPrice *int64, at time.Time) error {
	return r.finalize(ctx, sessionID, session.ReasonCompleted, func(s *session.UserSession) {
		if configuration != "" {
			s.ConfigurationData = configuration
		}
		if totalPrice != nil {
			s.TotalPrice = totalPrice
		}
	}, at)
}

// Finalize closes the session with reason
func (r *GormSessionRepository) Finalize(ctx context.Context, sessionID string, reason session.FinalizeReason, at time.Time) error {
	return r.finalize(ctx, sessionID, reason, nil, at)
}

func (r *GormSessionRepository) finalize(ctx context.Context, sessionID string, reason session.FinalizeReason, mutate func(*session.UserSession), at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s session.UserSession
		if err := tx.Where("session_id = ?", sessionID).First(&s).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return session.ErrSessionNotFound
			}
			return err
		}
		if mutate != nil {
			mutate(&s)
		}
		s.Finalize(reason, at)
		return tx.Save(&s).Error
	})
}

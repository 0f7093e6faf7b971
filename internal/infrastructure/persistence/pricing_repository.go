package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nest-haus/backend/internal/domain/pricing"
	"github.com/nest-haus/backend/internal/infrastructure/persistence/models"
)

var _ pricing.Repository = (*GormPricingRepository)(nil)

// GormPricingRepository persists the pricing sync tables
type GormPricingRepository struct {
	db *gorm.DB
}

// NewGormPricingRepository creates a new GormPricingRepository
func NewGormPricingRepository(db *gorm.DB) *GormPricingRepository {
	return &GormPricingRepository{db: db}
}

// ListItems returns every stored item, active or not
func (r *GormPricingRepository) ListItems(ctx context.Context) ([]pricing.StoredItem, error) {
	var rows []models.PricingItemModel
	if err := r.db.WithContext(ctx).Order("unique_key ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]pricing.StoredItem, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].ToDomain())
	}
	return items, nil
}

// ApplyDiff inserts added items, bumps the version of updated ones and
// deactivates removed ones in one transaction
func (r *GormPricingRepository) ApplyDiff(ctx context.Context, d pricing.SyncDiff, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range d.Added {
			if err := tx.Create(models.NewPricingItemModel(item, at)).Error; err != nil {
				return fmt.Errorf("failed to add %s: %w", item.UniqueKey(), err)
			}
		}
		for _, u := range d.Updated {
			err := tx.Model(&models.PricingItemModel{}).
				Where("unique_key = ?", u.Item.UniqueKey()).
				Updates(map[string]any{
					"name":       u.Item.Name,
					"price":      u.Item.Price,
					"version":    u.Previous.Version + 1,
					"is_active":  true,
					"updated_at": at,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to update %s: %w", u.Item.UniqueKey(), err)
			}
		}
		for _, s := range d.Removed {
			err := tx.Model(&models.PricingItemModel{}).
				Where("unique_key = ?", s.UniqueKey).
				Updates(map[string]any{"is_active": false, "updated_at": at}).Error
			if err != nil {
				return fmt.Errorf("failed to deactivate %s: %w", s.UniqueKey, err)
			}
		}
		return nil
	})
}

// SaveLog inserts a sync log
func (r *GormPricingRepository) SaveLog(ctx context.Context, l *pricing.SyncLog) error {
	m, err := models.PricingSyncLogFromDomain(l)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// LatestLog returns the most recent sync log, or nil
func (r *GormPricingRepository) LatestLog(ctx context.Context) (*pricing.SyncLog, error) {
	var m models.PricingSyncLogModel
	if err := r.db.WithContext(ctx).Order("started_at DESC").First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m.ToDomain(), nil
}

// SaveSnapshot stores table as a JSON snapshot
func (r *GormPricingRepository) SaveSnapshot(ctx context.Context, table *pricing.PriceTable, at time.Time) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to encode price table: %w", err)
	}
	m := &models.PricingSnapshotModel{
		Data:      string(data),
		ItemCount: len(table.Items()),
		TakenAt:   at,
	}
	m.Stamp(at)
	return r.db.WithContext(ctx).Create(m).Error
}

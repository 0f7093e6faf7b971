package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nest-haus/backend/internal/domain/pricing"
)

// PricingItemModel is one priced cell of the sales price sheet.
type PricingItemModel struct {
	BaseModel
	UniqueKey string          `gorm:"type:varchar(191);not null;uniqueIndex"`
	Category  string          `gorm:"type:varchar(64);not null;index"`
	ItemKey   string          `gorm:"type:varchar(128);not null"`
	Name      string          `gorm:"type:varchar(255);not null"`
	NestSize  string          `gorm:"type:varchar(16)"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Version   int             `gorm:"not null;default:1"`
	IsActive  bool            `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (PricingItemModel) TableName() string {
	return "pricing_items"
}

// ToDomain converts the model to a stored item.
func (m *PricingItemModel) ToDomain() pricing.StoredItem {
	return pricing.StoredItem{
		UniqueKey: m.UniqueKey,
		Category:  m.Category,
		ItemKey:   m.ItemKey,
		Name:      m.Name,
		NestSize:  pricing.NestSize(m.NestSize),
		Price:     m.Price,
		Version:   m.Version,
		Active:    m.IsActive,
		UpdatedAt: m.UpdatedAt,
	}
}

// NewPricingItemModel creates the first version of item.
func NewPricingItemModel(item pricing.Item, at time.Time) *PricingItemModel {
	m := &PricingItemModel{
		UniqueKey: item.UniqueKey(),
		Category:  item.Category,
		ItemKey:   item.ItemKey,
		Name:      item.Name,
		NestSize:  string(item.NestSize),
		Price:     item.Price,
		Version:   1,
		IsActive:  true,
	}
	m.Stamp(at)
	return m
}

// PricingSyncLogModel records one pricing sync.
type PricingSyncLogModel struct {
	BaseModel
	Trigger    string    `gorm:"type:varchar(16);not null"`
	Status     string    `gorm:"type:varchar(16);not null;index"`
	Added      int       `gorm:"not null;default:0"`
	Updated    int       `gorm:"not null;default:0"`
	Removed    int       `gorm:"not null;default:0"`
	Unchanged  int       `gorm:"not null;default:0"`
	ErrorsJSON string    `gorm:"column:errors;type:text"`
	StartedAt  time.Time `gorm:"not null;index"`
	FinishedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PricingSyncLogModel) TableName() string {
	return "pricing_sync_logs"
}

// PricingSyncLogFromDomain converts a sync log to its model.
func PricingSyncLogFromDomain(l *pricing.SyncLog) (*PricingSyncLogModel, error) {
	m := &PricingSyncLogModel{
		Trigger:    l.Trigger,
		Status:     string(l.Status),
		Added:      l.Added,
		Updated:    l.Updated,
		Removed:    l.Removed,
		Unchanged:  l.Unchanged,
		StartedAt:  l.StartedAt,
		FinishedAt: l.FinishedAt,
	}
	m.SetSpan(l.ID, l.StartedAt, l.FinishedAt)
	if len(l.Errors) > 0 {
		data, err := json.Marshal(l.Errors)
		if err != nil {
			return nil, err
		}
		m.ErrorsJSON = string(data)
	}
	return m, nil
}

// ToDomain converts the model to a sync log.
func (m *PricingSyncLogModel) ToDomain() *pricing.SyncLog {
	l := &pricing.SyncLog{
		ID:         m.ID,
		Trigger:    m.Trigger,
		Status:     pricing.SyncStatus(m.Status),
		Added:      m.Added,
		Updated:    m.Updated,
		Removed:    m.Removed,
		Unchanged:  m.Unchanged,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
	if m.ErrorsJSON != "" {
		_ = json.Unmarshal([]byte(m.ErrorsJSON), &l.Errors)
	}
	return l
}

// PricingSnapshotModel stores the full price table as JSON.
type PricingSnapshotModel struct {
	BaseModel
	Data      string    `gorm:"type:jsonb;not null"`
	ItemCount int       `gorm:"not null"`
	TakenAt   time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (PricingSnapshotModel) TableName() string {
	return "pricing_snapshots"
}

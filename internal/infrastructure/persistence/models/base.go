package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel is the uuid key and timestamps embedded by the sync and pricing
// tables.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Stamp gives a new row a fresh key created and updated at at.
func (m *BaseModel) Stamp(at time.Time) {
	m.ID = uuid.New()
	m.CreatedAt = at
	m.UpdatedAt = at
}

// SetSpan keys a run row by id and maps its start and finish onto the
// timestamps.
func (m *BaseModel) SetSpan(id uuid.UUID, started, finished time.Time) {
	m.ID = id
	m.CreatedAt = started
	m.UpdatedAt = finished
}

package models

import (
	"encoding/json"
	"time"

	"github.com/nest-haus/backend/internal/domain/imagesync"
)

// ImageSyncRunModel is one Drive to blob sync run.
type ImageSyncRunModel struct {
	BaseModel
	Trigger       string    `gorm:"type:varchar(16);not null"`
	Status        string    `gorm:"type:varchar(16);not null;index"`
	DryRun        bool      `gorm:"not null;default:false"`
	FullSync      bool      `gorm:"not null;default:false"`
	Days          int       `gorm:"not null;default:0"`
	StartedAt     time.Time `gorm:"not null;index"`
	FinishedAt    time.Time `gorm:"not null"`
	Processed     int       `gorm:"not null;default:0"`
	Uploaded      int       `gorm:"not null;default:0"`
	Updated       int       `gorm:"not null;default:0"`
	Deleted       int       `gorm:"not null;default:0"`
	Protected     int       `gorm:"not null;default:0"`
	ErrorCount    int       `gorm:"not null;default:0"`
	ErrorsJSON    string    `gorm:"column:errors;type:text"`
	AbortReason   string    `gorm:"type:text"`
	ImagesUpdated bool      `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (ImageSyncRunModel) TableName() string {
	return "image_sync_runs"
}

// ToDomain converts the model to a sync run record.
func (m *ImageSyncRunModel) ToDomain() *imagesync.Run {
	run := &imagesync.Run{
		ID:            m.ID,
		Trigger:       imagesync.Trigger(m.Trigger),
		Status:        imagesync.RunStatus(m.Status),
		DryRun:        m.DryRun,
		FullSync:      m.FullSync,
		Days:          m.Days,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
		Processed:     m.Processed,
		Uploaded:      m.Uploaded,
		Updated:       m.Updated,
		Deleted:       m.Deleted,
		Protected:     m.Protected,
		ErrorCount:    m.ErrorCount,
		AbortReason:   m.AbortReason,
		ImagesUpdated: m.ImagesUpdated,
	}
	if m.ErrorsJSON != "" {
		// a corrupt column still yields the counters
		_ = json.Unmarshal([]byte(m.ErrorsJSON), &run.Errors)
	}
	return run
}

// ImageSyncRunFromDomain converts a run record to its model.
func ImageSyncRunFromDomain(r *imagesync.Run) (*ImageSyncRunModel, error) {
	m := &ImageSyncRunModel{
		Trigger:       string(r.Trigger),
		Status:        string(r.Status),
		DryRun:        r.DryRun,
		FullSync:      r.FullSync,
		Days:          r.Days,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Processed:     r.Processed,
		Uploaded:      r.Uploaded,
		Updated:       r.Updated,
		Deleted:       r.Deleted,
		Protected:     r.Protected,
		ErrorCount:    r.ErrorCount,
		AbortReason:   r.AbortReason,
		ImagesUpdated: r.ImagesUpdated,
	}
	m.SetSpan(r.ID, r.StartedAt, r.FinishedAt)
	if len(r.Errors) > 0 {
		data, err := json.Marshal(r.Errors)
		if err != nil {
			return nil, err
		}
		m.ErrorsJSON = string(data)
	}
	return m, nil
}

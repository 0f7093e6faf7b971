package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/domain/shared"
)

var _ inquiry.Repository = (*GormInquiryRepository)(nil)

// GormInquiryRepository implements inquiry.Repository using GORM
type GormInquiryRepository struct {
	db *gorm.DB
}

// NewGormInquiryRepository creates a new GormInquiryRepository
func NewGormInquiryRepository(db *gorm.DB) *GormInquiryRepository {
	return &GormInquiryRepository{db: db}
}

// Create inserts a new inquiry
func (r *GormInquiryRepository) Create(ctx context.Context, inq *inquiry.Inquiry) error {
	return r.db.WithContext(ctx).Create(inq).Error
}

// Save updates an existing inquiry
func (r *GormInquiryRepository) Save(ctx context.Context, inq *inquiry.Inquiry) error {
	return r.db.WithContext(ctx).Save(inq).Error
}

// FindByID finds an inquiry by its ID
func (r *GormInquiryRepository) FindByID(ctx context.Context, id uuid.UUID) (*inquiry.Inquiry, error) {
	var inq inquiry.Inquiry
	if err := r.db.WithContext(ctx).First(&inq, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inquiry.ErrNotFound
		}
		return nil, err
	}
	return &inq, nil
}

// FindByPaymentIntentID finds the inquiry a payment intent was created for
func (r *GormInquiryRepository) FindByPaymentIntentID(ctx context.Context, intentID string) (*inquiry.Inquiry, error) {
	if intentID == "" {
		return nil, inquiry.ErrNotFound
	}
	var inq inquiry.Inquiry
	if err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&inq).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inquiry.ErrNotFound
		}
		return nil, err
	}
	return &inq, nil
}

// FindRecent returns the newest inquiry for sessionID, or else for email,
// created at or after since. It returns nil when there is none.
func (r *GormInquiryRepository) FindRecent(ctx context.Context, sessionID, email string, since time.Time) (*inquiry.Inquiry, error) {
	query := r.db.WithContext(ctx).Where("created_at >= ?", since)
	switch {
	case sessionID != "":
		query = query.Where("session_id = ?", sessionID)
	case email != "":
		query = query.Where("LOWER(email) = ?", strings.ToLower(email))
	default:
		return nil, nil
	}
	var inq inquiry.Inquiry
	if err := query.Order("created_at DESC").First(&inq).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inq, nil
}

// List returns one page of inquiries and the total count
func (r *GormInquiryRepository) List(ctx context.Context, filter shared.Filter) ([]inquiry.Inquiry, int64, error) {
	filter = filter.Normalize()
	query := r.db.WithContext(ctx).Model(&inquiry.Inquiry{})
	if filter.Status != "" {
		query = query.Where("status = ?", strings.ToUpper(filter.Status))
	}
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(phone) LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []inquiry.Inquiry
	err := query.Order(InquirySortColumns.OrderBy(filter.OrderBy, filter.OrderDir)).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ExpireAppointments expires every pending appointment whose hold ended before now
func (r *GormInquiryRepository) ExpireAppointments(ctx context.Context, now time.Time) ([]inquiry.Inquiry, error) {
	var expired []inquiry.Inquiry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []inquiry.Inquiry
		if err := tx.Where("appointment_status = ? AND appointment_expires_at < ?", inquiry.AppointmentPending, now).
			Find(&pending).Error; err != nil {
			return err
		}
		for i := range pending {
			if !pending[i].ExpireAppointment(now) {
				continue
			}
			if err := tx.Save(&pending[i]).Error; err != nil {
				return err
			}
			expired = append(expired, pending[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// CountConverted counts inquiries converted or paid within [from, to)
func (r *GormInquiryRepository) CountConverted(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&inquiry.Inquiry{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Where("status = ? OR payment_status = ?", inquiry.StatusConverted, inquiry.PaymentPaid).
		Count(&n).Error
	return n, err
}

// CountCreated counts inquiries created within [from, to)
func (r *GormInquiryRepository) CountCreated(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&inquiry.Inquiry{}).
		Where("created_at >= ? AND created_at < ?", from, to).
		Count(&n).Error
	return n, err
}

// SumPaid sums payment amounts (cents) paid within [from, to)
func (r *GormInquiryRepository) SumPaid(ctx context.Context, from, to time.Time) (int64, error) {
	var sum struct{ Total int64 }
	err := r.db.WithContext(ctx).Model(&inquiry.Inquiry{}).
		Select("COALESCE(SUM(payment_amount), 0) AS total").
		Where("payment_status = ? AND paid_at >= ? AND paid_at < ?", inquiry.PaymentPaid, from, to).
		Scan(&sum).Error
	return sum.Total, err
}

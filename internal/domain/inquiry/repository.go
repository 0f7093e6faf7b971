package inquiry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nest-haus/backend/internal/domain/shared"
)

// ErrNotFound is returned for unknown inquiry ids and payment intents.
var ErrNotFound = shared.ErrNotFound.WithMessage("Inquiry not found")

// Repository persists inquiries
type Repository interface {
	Create(ctx context.Context, inq *Inquiry) error
	Save(ctx context.Context, inq *Inquiry) error
	FindByID(ctx context.Context, id uuid.UUID) (*Inquiry, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) (*Inquiry, error)
	// FindRecent returns the newest inquiry for sessionID (or, without one,
	// for email) created at or after since, or nil.
	FindRecent(ctx context.Context, sessionID, email string, since time.Time) (*Inquiry, error)
	// List filters by Status and matches Search against name, email and phone.
	List(ctx context.Context, filter shared.Filter) ([]Inquiry, int64, error)
	// ExpireAppointments expires every pending appointment whose hold ended before now.
	ExpireAppointments(ctx context.Context, now time.Time) ([]Inquiry, error)
	CountConverted(ctx context.Context, from, to time.Time) (int64, error)
	CountCreated(ctx context.Context, from, to time.Time) (int64, error)
	SumPaid(ctx context.Context, from, to time.Time) (int64, error)
}

// Package inquiry accepts contact, appointment and cart checkout requests and
// serves them to the admin back office.
package inquiry

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appsession "github.com/nest-haus/backend/internal/application/session"
	"github.com/nest-haus/backend/internal/domain/cart"
	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/domain/session"
	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/email"
)

// SubmissionEvent is the interaction recorded for every submitted form.
const SubmissionEvent = "contact_form_submission"

// Notifier sends the inquiry mails.
type Notifier interface {
	SendCustomerConfirmation(ctx context.Context, inq *inquiry.Inquiry) error
	SendAdminNotification(ctx context.Context, inq *inquiry.Inquiry, rc email.RequestContext) error
}

// InteractionTracker records the submission against the visitor's session.
type InteractionTracker interface {
	TrackInteraction(ctx context.Context, sessionID string, in session.Interaction, client session.ClientInfo, landingURL string) (*appsession.InteractionResult, error)
}

// EmailRecorder counts mail attempts.
type EmailRecorder interface {
	IncEmail(kind string, err error)
}

// ServiceConfig contains configuration for Service
type ServiceConfig struct {
	Repo     inquiry.Repository
	Notifier Notifier
	Tracker  InteractionTracker
	Recorder EmailRecorder
	Logger   *zap.Logger
}

// Service handles inquiries.
type Service struct {
	repo     inquiry.Repository
	notifier Notifier
	tracker  InteractionTracker
	recorder EmailRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates an inquiry service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     cfg.Repo,
		notifier: cfg.Notifier,
		tracker:  cfg.Tracker,
		recorder: cfg.Recorder,
		logger:   logger.Named("inquiry"),
		now:      time.Now,
	}
}

// Submit stores a contact or appointment request and mails both sides.
func (s *Service) Submit(ctx context.Context, sub inquiry.Submission, sessionID string, client session.ClientInfo) (*inquiry.Inquiry, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	config, total := encodeConfiguration(sub.ConfigurationData)
	inq, err := inquiry.New(sub, sessionID, config, total, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, inq); err != nil {
		return nil, err
	}
	s.logger.Info("Inquiry received",
		zap.String("inquiry_id", inq.ID.String()),
		zap.String("request_type", string(inq.RequestType)),
		zap.String("session_id", sessionID),
	)

	s.trackSubmission(ctx, inq, client)
	s.notifyReceived(ctx, inq, client)
	return inq, nil
}

// encodeConfiguration stores the configurator snapshot as JSON and lifts its
// totalPrice, when numeric, into the price column.
func encodeConfiguration(data map[string]any) (string, *int64) {
	if len(data) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", nil
	}
	var total *int64
	if v, ok := data["totalPrice"].(float64); ok && v > 0 {
		p := int64(math.Round(v))
		total = &p
	}
	if v, ok := data["totalPrice"].(int64); ok && v > 0 {
		total = &v
	}
	return string(raw), total
}

func (s *Service) trackSubmission(ctx context.Context, inq *inquiry.Inquiry, client session.ClientInfo) {
	if s.tracker == nil || inq.SessionID == "" {
		return
	}
	_, err := s.tracker.TrackInteraction(ctx, inq.SessionID, session.Interaction{
		EventType:      SubmissionEvent,
		Category:       "contact",
		SelectionValue: string(inq.RequestType),
	}, client, "")
	if err != nil {
		s.logger.Warn("Failed to record submission interaction", zap.String("session_id", inq.SessionID), zap.Error(err))
	}
}

// notifyReceived sends the customer and admin mails concurrently. Failures
// are logged only.
func (s *Service) notifyReceived(ctx context.Context, inq *inquiry.Inquiry, client session.ClientInfo) {
	if s.notifier == nil {
		return
	}
	rc := email.RequestContext{ClientIP: client.IP, UserAgent: client.UserAgent}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.sent(inq, "customer_confirmation", s.notifier.SendCustomerConfirmation(ctx, inq))
	}()
	go func() {
		defer wg.Done()
		s.sent(inq, "admin_notification", s.notifier.SendAdminNotification(ctx, inq, rc))
	}()
	wg.Wait()
}

func (s *Service) sent(inq *inquiry.Inquiry, kind string, err error) {
	if s.recorder != nil {
		s.recorder.IncEmail(kind, err)
	}
	if err != nil {
		s.logger.Warn("Inquiry email failed", zap.String("kind", kind), zap.String("inquiry_id", inq.ID.String()), zap.Error(err))
	}
}

// OrderResult is the outcome of a checkout.
type OrderResult struct {
	Inquiry   *inquiry.Inquiry `json:"inquiry"`
	Duplicate bool             `json:"duplicate"`
	Summary   string           `json:"summary"`
}

// PlaceOrder turns a cart into an inquiry. A checkout for the same session,
// or without a session the same email, within cart.DuplicateWindow returns
// the earlier inquiry instead of creating another.
func (s *Service) PlaceOrder(ctx context.Context, c *cart.Cart, client session.ClientInfo) (*OrderResult, error) {
	if err := c.ValidateCheckout(); err != nil {
		return nil, err
	}
	now := s.now()
	customer := c.Details.CustomerInfo
	var sessionID string
	if ids := c.SessionIDs(); len(ids) > 0 {
		sessionID = ids[0]
	}

	existing, err := s.repo.FindRecent(ctx, sessionID, customer.Email, now.Add(-cart.DuplicateWindow))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Info("Duplicate checkout, returning existing inquiry",
			zap.String("inquiry_id", existing.ID.String()),
			zap.String("session_id", sessionID),
		)
		return &OrderResult{Inquiry: existing, Duplicate: true, Summary: c.Summary()}, nil
	}

	name := strings.TrimSpace(customer.Name)
	if name == "" {
		name = customer.Email
	}
	order := map[string]any{
		"items":        c.Items,
		"orderDetails": c.Details,
		"totalPrice":   float64(c.Total()),
	}
	inq, err := s.Submit(ctx, inquiry.Submission{
		Email:             customer.Email,
		Name:              name,
		Phone:             customer.Phone,
		Message:           c.OrderMessage(),
		ConfigurationData: order,
	}, sessionID, client)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Inquiry: inq, Summary: c.Summary()}, nil
}

// List returns one page of inquiries for the admin table.
func (s *Service) List(ctx context.Context, filter shared.Filter) ([]inquiry.Inquiry, int64, error) {
	return s.repo.List(ctx, filter)
}

// Get returns one inquiry.
func (s *Service) Get(ctx context.Context, id string) (*inquiry.Inquiry, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, inquiry.ErrNotFound
	}
	return s.repo.FindByID(ctx, uid)
}

// UpdateRequest carries the admin edits; nil fields are left alone.
type UpdateRequest struct {
	Status       *inquiry.Status `json:"status,omitempty"`
	Note         *string         `json:"note,omitempty"`
	FollowUpDate *time.Time      `json:"followUpDate,omitempty"`
}

// Update applies admin edits to an inquiry.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*inquiry.Inquiry, error) {
	inq, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if req.Status != nil {
		if err := inq.UpdateStatus(inquiry.Status(strings.ToUpper(string(*req.Status))), now); err != nil {
			return nil, err
		}
	}
	if req.Note != nil && strings.TrimSpace(*req.Note) != "" {
		inq.AppendNote(strings.TrimSpace(*req.Note), now)
	}
	if req.FollowUpDate != nil {
		at := *req.FollowUpDate
		inq.FollowUpDate = &at
		inq.Touch(now)
	}
	if err := s.repo.Save(ctx, inq); err != nil {
		return nil, err
	}
	return inq, nil
}

// ExpireAppointments releases appointment slots whose 24h hold has run out.
func (s *Service) ExpireAppointments(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireAppointments(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, inq := range expired {
		s.logger.Info("Appointment expired",
			zap.String("inquiry_id", inq.ID.String()),
			zap.String("email", inq.Email),
		)
	}
	return len(expired), nil
}

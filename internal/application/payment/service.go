// Package payment creates Stripe payment intents for inquiries and applies
// their outcomes, whether reported by the browser or by the webhook.
package payment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/domain/payment"
	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/telemetry"
)

// MaxWebhookPayload is the largest webhook body accepted.
const MaxWebhookPayload = 64 << 10

// DefaultEventTTL is how long processed webhook event ids are remembered.
const DefaultEventTTL = 72 * time.Hour

// Notifier sends the payment mails.
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, inq *inquiry.Inquiry) error
	SendAdminPaymentNotification(ctx context.Context, inq *inquiry.Inquiry) error
}

// Recorder counts webhook outcomes and mails.
type Recorder interface {
	IncPaymentEvent(eventType, outcome string)
	IncEmail(kind string, err error)
}

// ServiceConfig contains configuration for Service
type ServiceConfig struct {
	Gateway     payment.Gateway
	Inquiries   inquiry.Repository
	Idempotency shared.IdempotencyStore
	Notifier    Notifier
	Recorder    Recorder
	Logger      *zap.Logger
	EventTTL    time.Duration
}

// Service handles payment intents and webhook events.
type Service struct {
	gateway     payment.Gateway
	inquiries   inquiry.Repository
	idempotency shared.IdempotencyStore
	notifier    Notifier
	recorder    Recorder
	logger      *zap.Logger
	eventTTL    time.Duration
	now         func() time.Time
}

// NewService creates a payment service. A nil Gateway leaves payments disabled.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.EventTTL
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &Service{
		gateway:     cfg.Gateway,
		inquiries:   cfg.Inquiries,
		idempotency: cfg.Idempotency,
		notifier:    cfg.Notifier,
		recorder:    cfg.Recorder,
		logger:      logger.Named("payment"),
		eventTTL:    ttl,
		now:         time.Now,
	}
}

// Enabled reports whether a gateway is configured.
func (s *Service) Enabled() bool {
	return s.gateway != nil
}

// PublishableKey returns the browser key, or "" when payments are disabled.
func (s *Service) PublishableKey() string {
	if s.gateway == nil {
		return ""
	}
	return s.gateway.PublishableKey()
}

// CreateIntent creates a payment intent for the customer and links it to the
// inquiry when one is given.
func (s *Service) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	if s.gateway == nil {
		return nil, payment.ErrNotConfigured
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var intent *payment.Intent
	err := telemetry.Trace(ctx, "payment", "create_intent", func(ctx context.Context) error {
		customer, err := s.gateway.FindOrCreateCustomer(ctx, req.CustomerEmail, req.CustomerName, map[string]string{
			"source":    payment.Source,
			"inquiryId": req.InquiryID,
		})
		if err != nil {
			return err
		}
		intent, err = s.gateway.CreateIntent(ctx, req, customer.ID)
		if err != nil {
			return err
		}
		telemetry.Annotate(ctx,
			telemetry.SpanAttrPaymentIntentID, intent.ID,
			telemetry.SpanAttrAmount, intent.Amount,
			telemetry.SpanAttrInquiryID, req.InquiryID,
		)
		return nil
	}, telemetry.WithSpanKind(trace.SpanKindClient))
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment intent created",
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", intent.Amount),
		zap.String("currency", intent.Currency),
		zap.String("inquiry_id", req.InquiryID),
	)

	if req.InquiryID != "" {
		if err := s.attach(ctx, req.InquiryID, intent); err != nil {
			s.logger.Warn("Failed to link payment to inquiry",
				zap.String("inquiry_id", req.InquiryID),
				zap.String("payment_intent_id", intent.ID),
				zap.Error(err),
			)
		}
	}
	return intent, nil
}

func (s *Service) attach(ctx context.Context, inquiryID string, intent *payment.Intent) error {
	if s.inquiries == nil {
		return nil
	}
	id, err := uuid.Parse(inquiryID)
	if err != nil {
		return inquiry.ErrNotFound
	}
	inq, err := s.inquiries.FindByID(ctx, id)
	if err != nil {
		return err
	}
	inq.AttachPayment(intent.ID, intent.Amount, intent.Currency, s.now())
	return s.inquiries.Save(ctx, inq)
}

// ConfirmResult is the outcome of a browser-side confirmation.
type ConfirmResult struct {
	Intent  *payment.Intent  `json:"paymentIntent"`
	Inquiry *inquiry.Inquiry `json:"inquiry,omitempty"`
}

// Confirm checks the intent with Stripe and marks the linked inquiry paid.
// The webhook may already have done so; confirming twice is harmless.
func (s *Service) Confirm(ctx context.Context, intentID, inquiryID string) (*ConfirmResult, error) {
	if s.gateway == nil {
		return nil, payment.ErrNotConfigured
	}
	if intentID == "" {
		return nil, payment.ErrInvalidRequest.WithMessage("paymentIntentId is required")
	}
	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !intent.Succeeded() {
		return nil, payment.ErrNotSucceeded.WithMessage("Payment not completed: " + string(intent.Status))
	}

	res := &ConfirmResult{Intent: intent}
	inq, err := s.findInquiry(ctx, intent, inquiryID)
	switch {
	case errors.Is(err, inquiry.ErrNotFound):
		s.logger.Warn("Confirmed payment has no inquiry", zap.String("payment_intent_id", intent.ID))
		return res, nil
	case err != nil:
		return nil, err
	}
	if err := s.markPaid(ctx, inq, intent); err != nil {
		return nil, err
	}
	res.Inquiry = inq
	return res, nil
}

// findInquiry resolves the inquiry for intent: an explicit id first, then
// the stored intent id, then the intent metadata.
func (s *Service) findInquiry(ctx context.Context, intent *payment.Intent, inquiryID string) (*inquiry.Inquiry, error) {
	if s.inquiries == nil {
		return nil, inquiry.ErrNotFound
	}
	if inquiryID != "" {
		if id, err := uuid.Parse(inquiryID); err == nil {
			inq, err := s.inquiries.FindByID(ctx, id)
			if !errors.Is(err, inquiry.ErrNotFound) {
				return inq, err
			}
		}
	}
	inq, err := s.inquiries.FindByPaymentIntentID(ctx, intent.ID)
	if !errors.Is(err, inquiry.ErrNotFound) {
		return inq, err
	}
	if meta := intent.InquiryID(); meta != "" && meta != inquiryID {
		if id, err := uuid.Parse(meta); err == nil {
			return s.inquiries.FindByID(ctx, id)
		}
	}
	return nil, inquiry.ErrNotFound
}

// markPaid records the payment once and sends the payment mails.
func (s *Service) markPaid(ctx context.Context, inq *inquiry.Inquiry, intent *payment.Intent) error {
	if inq.IsPaid() {
		return nil
	}
	now := s.now()
	if inq.PaymentIntentID == "" {
		inq.AttachPayment(intent.ID, intent.Amount, intent.Currency, now)
	}
	inq.MarkPaid(intent.PaymentMethod, now)
	if err := s.inquiries.Save(ctx, inq); err != nil {
		return err
	}
	s.logger.Info("Inquiry marked paid",
		zap.String("inquiry_id", inq.ID.String()),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", intent.Amount),
	)
	s.notifyPaid(ctx, inq)
	return nil
}

// notifyPaid sends both payment mails concurrently. Failures are logged only.
func (s *Service) notifyPaid(ctx context.Context, inq *inquiry.Inquiry) {
	if s.notifier == nil {
		return
	}
	sends := map[string]func(context.Context, *inquiry.Inquiry) error{
		"payment_confirmation":       s.notifier.SendPaymentConfirmation,
		"admin_payment_notification": s.notifier.SendAdminPaymentNotification,
	}
	var wg sync.WaitGroup
	for kind, send := range sends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := send(ctx, inq)
			if s.recorder != nil {
				s.recorder.IncEmail(kind, err)
			}
			if err != nil {
				s.logger.Warn("Payment email failed", zap.String("kind", kind), zap.String("inquiry_id", inq.ID.String()), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// WebhookResult represents the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// HandleWebhook verifies and applies a Stripe event. Only signature and size
// problems are returned as errors; processing failures are logged and
// reported in the result so Stripe does not retry them.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if s.gateway == nil {
		return nil, payment.ErrNotConfigured
	}
	if len(payload) > MaxWebhookPayload {
		return nil, payment.ErrPayloadTooLarge
	}
	event, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		s.record("unknown", "invalid")
		return nil, err
	}

	result := &WebhookResult{EventID: event.ID, EventType: string(event.Type)}
	log := s.logger.With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))

	if s.idempotency != nil && event.ID != "" {
		fresh, err := s.idempotency.MarkProcessed(ctx, event.ID, s.eventTTL)
		if err != nil {
			log.Warn("Idempotency check failed, processing anyway", zap.Error(err))
		} else if !fresh {
			log.Info("Duplicate webhook event ignored")
			result.Message = "duplicate event"
			s.record(result.EventType, "duplicate")
			return result, nil
		}
	}

	if err := s.apply(ctx, event, log); err != nil {
		log.Error("Webhook processing failed", zap.Error(err))
		result.Message = err.Error()
		s.record(result.EventType, "error")
		return result, nil
	}
	result.Processed = true
	s.record(result.EventType, "processed")
	return result, nil
}

func (s *Service) apply(ctx context.Context, event *payment.Event, log *zap.Logger) error {
	intent := event.Intent
	switch event.Type {
	case payment.EventSucceeded:
		inq, err := s.findInquiry(ctx, intent, "")
		if errors.Is(err, inquiry.ErrNotFound) {
			log.Warn("Payment succeeded without inquiry", zap.String("payment_intent_id", intent.ID))
			return nil
		}
		if err != nil {
			return err
		}
		return s.markPaid(ctx, inq, intent)

	case payment.EventFailed, payment.EventCanceled:
		inq, err := s.findInquiry(ctx, intent, "")
		if errors.Is(err, inquiry.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if event.Type == payment.EventFailed {
			inq.MarkPaymentFailed(s.now())
		} else {
			inq.MarkPaymentCancelled(s.now())
		}
		log.Info("Payment not completed", zap.String("inquiry_id", inq.ID.String()), zap.String("payment_intent_id", intent.ID))
		return s.inquiries.Save(ctx, inq)

	case payment.EventRequiresAction:
		log.Info("Payment requires customer action", zap.String("payment_intent_id", intent.ID))
		return nil

	default:
		log.Debug("Unhandled webhook event type")
		return nil
	}
}

func (s *Service) record(eventType, outcome string) {
	if s.recorder != nil {
		s.recorder.IncPaymentEvent(eventType, outcome)
	}
}

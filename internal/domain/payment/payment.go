// Package payment describes card payments for configured houses and the
// gateway that processes them.
package payment

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nest-haus/backend/internal/domain/shared"
)

const (
	// MinAmount is the smallest chargeable amount in cents.
	MinAmount = 50
	// DefaultCurrency is used when a request names none.
	DefaultCurrency = "eur"
	// Source tags customers and intents created by the configurator.
	Source = "nest-haus-configurator"
)

var (
	ErrInvalidRequest  = shared.ErrInvalidInput.WithMessage("Invalid payment data")
	ErrNotSucceeded    = shared.ErrInvalidInput.WithMessage("Payment not completed")
	ErrGateway         = shared.ErrPaymentFailed.WithMessage("Payment service error")
	ErrInvalidEvent    = shared.ErrUnauthorized.WithMessage("Invalid webhook signature")
	ErrIntentNotFound  = shared.ErrNotFound.WithMessage("Payment intent not found")
	ErrNotConfigured   = shared.ErrServiceUnavailable.WithMessage("Payments are not configured")
	ErrPayloadTooLarge = shared.ErrInvalidInput.WithMessage("Webhook payload too large")
)

// IntentStatus mirrors the processor's payment intent states.
type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusRequiresCapture       IntentStatus = "requires_capture"
	StatusCanceled              IntentStatus = "canceled"
	StatusSucceeded             IntentStatus = "succeeded"
)

var validate = validator.New()

// IntentRequest asks for a new payment intent.
type IntentRequest struct {
	Amount        int64             `json:"amount" validate:"gte=50"`
	Currency      string            `json:"currency,omitempty"`
	CustomerEmail string            `json:"customerEmail" validate:"required,email"`
	CustomerName  string            `json:"customerName,omitempty"`
	InquiryID     string            `json:"inquiryId,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Normalize lower-cases the currency and fills the default.
func (r *IntentRequest) Normalize() {
	r.Currency = strings.ToLower(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = DefaultCurrency
	}
}

// Validate checks amount and email.
func (r IntentRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return ErrInvalidRequest.Wrap(err)
	}
	return nil
}

// Description is the statement text shown in the processor dashboard.
func (r IntentRequest) Description() string {
	if r.InquiryID == "" {
		return "NEST-Haus Konfiguration"
	}
	return "NEST-Haus Konfiguration (Anfrage: " + r.InquiryID + ")"
}

// IntentMetadata merges the caller's metadata over the standard keys.
func (r IntentRequest) IntentMetadata() map[string]string {
	md := map[string]string{
		"customerEmail": r.CustomerEmail,
		"inquiryId":     r.InquiryID,
		"source":        Source,
	}
	for k, v := range r.Metadata {
		md[k] = v
	}
	return md
}

// Intent is a payment intent as reported by the gateway.
type Intent struct {
	ID            string            `json:"paymentIntentId"`
	ClientSecret  string            `json:"clientSecret,omitempty"`
	CustomerID    string            `json:"customerId,omitempty"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        IntentStatus      `json:"status"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Created       int64             `json:"created,omitempty"`
}

// Succeeded reports whether the intent was paid
func (i *Intent) Succeeded() bool {
	return i.Status == StatusSucceeded
}

// InquiryID is the inquiry the intent was created for, if any.
func (i *Intent) InquiryID() string {
	return i.Metadata["inquiryId"]
}

// EventType is a webhook event kind the backend acts on.
type EventType string

const (
	EventSucceeded      EventType = "payment_intent.succeeded"
	EventFailed         EventType = "payment_intent.payment_failed"
	EventCanceled       EventType = "payment_intent.canceled"
	EventRequiresAction EventType = "payment_intent.requires_action"
)

// Event is a verified webhook event carrying a payment intent.
type Event struct {
	ID     string
	Type   EventType
	Intent *Intent
}

// Customer is a processor-side customer record
type Customer struct {
	ID    string
	Email string
	Name  string
}

// Gateway is the payment processor.
type Gateway interface {
	// FindOrCreateCustomer returns the first customer with email or creates one.
	FindOrCreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*Customer, error)
	CreateIntent(ctx context.Context, req IntentRequest, customerID string) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	// ParseEvent verifies the signature header and decodes payload.
	ParseEvent(payload []byte, signature string) (*Event, error)
	PublishableKey() string
}

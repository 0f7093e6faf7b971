// Package billing talks to Stripe for configurator payments.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/domain/payment"
)

// StripeGateway implements payment.Gateway on the Stripe API.
type StripeGateway struct {
	config *StripeConfig
	api    *client.API
	logger *zap.Logger
}

// NewStripeGateway creates a gateway. backends may be nil to use Stripe's defaults.
func NewStripeGateway(config *StripeConfig, backends *stripe.Backends, logger *zap.Logger) (*StripeGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &client.API{}
	api.Init(config.SecretKey, backends)
	return &StripeGateway{config: config, api: api, logger: logger}, nil
}

// PublishableKey is the key the checkout page initializes Stripe.js with
func (g *StripeGateway) PublishableKey() string {
	return g.config.PublishableKey
}

// FindOrCreateCustomer looks up the first customer with email and creates one when none exists.
func (g *StripeGateway) FindOrCreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (*payment.Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true

	iter := g.api.Customers.List(params)
	if iter.Next() {
		cust := iter.Customer()
		g.logger.Debug("Found existing Stripe customer", zap.String("customer_id", cust.ID))
		return &payment.Customer{ID: cust.ID, Email: cust.Email, Name: cust.Name}, nil
	}
	if err := iter.Err(); err != nil {
		return nil, g.wrap("failed to list customers", err)
	}

	create := &stripe.CustomerParams{
		Email:    stripe.String(email),
		Metadata: metadata,
	}
	create.Context = ctx
	if name != "" {
		create.Name = stripe.String(name)
	}
	cust, err := g.api.Customers.New(create)
	if err != nil {
		return nil, g.wrap("failed to create customer", err)
	}
	g.logger.Info("Created Stripe customer", zap.String("customer_id", cust.ID))
	return &payment.Customer{ID: cust.ID, Email: cust.Email, Name: cust.Name}, nil
}

// CreateIntent creates a payment intent with automatic payment methods.
func (g *StripeGateway) CreateIntent(ctx context.Context, req payment.IntentRequest, customerID string) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(req.Currency),
		Description: stripe.String(req.Description()),
		Metadata:    req.IntentMetadata(),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, g.wrap("failed to create payment intent", err)
	}
	g.logger.Info("Created payment intent",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", pi.Amount),
		zap.String("currency", string(pi.Currency)))
	return toIntent(pi), nil
}

// GetIntent retrieves a payment intent by id.
func (g *StripeGateway) GetIntent(ctx context.Context, id string) (*payment.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == 404 {
			return nil, payment.ErrIntentNotFound
		}
		return nil, g.wrap("failed to retrieve payment intent", err)
	}
	return toIntent(pi), nil
}

// ParseEvent verifies the Stripe-Signature header and decodes payment intent events.
// Events of other kinds are returned without an intent.
func (g *StripeGateway) ParseEvent(payload []byte, signature string) (*payment.Event, error) {
	if len(payload) > MaxWebhookPayload {
		return nil, payment.ErrPayloadTooLarge
	}
	if g.config.WebhookSecret == "" || signature == "" {
		return nil, payment.ErrInvalidEvent
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		g.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return nil, payment.ErrInvalidEvent.Wrap(err)
	}

	out := &payment.Event{ID: event.ID, Type: payment.EventType(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	if pi.Object == "payment_intent" || pi.ID != "" {
		out.Intent = toIntent(&pi)
	}
	return out, nil
}

func (g *StripeGateway) wrap(msg string, err error) error {
	g.logger.Error("Stripe request failed", zap.String("op", msg), zap.Error(err))
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Msg != "" {
		return payment.ErrGateway.WithMessage(serr.Msg).Wrap(err)
	}
	return payment.ErrGateway.Wrap(fmt.Errorf("stripe: %s: %w", msg, err))
}

func toIntent(pi *stripe.PaymentIntent) *payment.Intent {
	out := &payment.Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       payment.IntentStatus(pi.Status),
		Metadata:     pi.Metadata,
		Created:      pi.Created,
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	out.PaymentMethod = "card"
	if len(pi.PaymentMethodTypes) > 0 && pi.PaymentMethodTypes[0] != "" {
		out.PaymentMethod = pi.PaymentMethodTypes[0]
	}
	return out
}

var _ payment.Gateway = (*StripeGateway)(nil)

package billing

import (
	"fmt"
	"strings"

	"github.com/nest-haus/backend/internal/infrastructure/config"
)

// MaxWebhookPayload bounds webhook bodies.
const MaxWebhookPayload = 64 * 1024

// StripeConfig holds configuration for Stripe integration
type StripeConfig struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string

	// PublishableKey is handed to the checkout page (pk_test_xxx or pk_live_xxx)
	PublishableKey string

	// WebhookSecret verifies webhook signatures
	WebhookSecret string

	// DefaultCurrency applies when a request names none
	DefaultCurrency string
}

// NewStripeConfig copies the stripe section of the application config.
func NewStripeConfig(cfg config.StripeConfig) *StripeConfig {
	return &StripeConfig{
		SecretKey:       cfg.SecretKey,
		PublishableKey:  cfg.PublishableKey,
		WebhookSecret:   cfg.WebhookSecret,
		DefaultCurrency: cfg.DefaultCurrency,
	}
}

// IsTestMode reports whether the secret key is a test key
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.SecretKey, "sk_test")
}

// Validate validates the Stripe configuration
func (c *StripeConfig) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if !strings.HasPrefix(c.SecretKey, "sk_test") && !strings.HasPrefix(c.SecretKey, "sk_live") && !strings.HasPrefix(c.SecretKey, "rk_") {
		return fmt.Errorf("stripe: secret key has an unknown format")
	}
	if c.PublishableKey != "" && c.IsTestMode() != strings.HasPrefix(c.PublishableKey, "pk_test") {
		return fmt.Errorf("stripe: secret and publishable keys are from different modes")
	}
	if c.DefaultCurrency == "" {
		return fmt.Errorf("stripe: default currency is required")
	}
	return nil
}

// Package cart models the checkout basket: configured houses plus the
// customer details needed to turn them into an order.
package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nest-haus/backend/internal/domain/pricing"
	"github.com/nest-haus/backend/internal/domain/shared"
)

// DuplicateWindow is how far back an order looks for an inquiry by the same email.
const DuplicateWindow = 24 * time.Hour

var (
	ErrEmptyCart     = shared.ErrInvalidInput.WithMessage("No items in order")
	ErrEmailRequired = shared.ErrInvalidInput.WithMessage("Customer email required")
	ErrItemNotFound  = shared.ErrNotFound.WithMessage("Cart item not found")
)

// Item is one configured house in the cart.
type Item struct {
	ID                 string         `json:"id"`
	SessionID          string         `json:"sessionId,omitempty"`
	Nest               string         `json:"nest,omitempty"`
	TotalPrice         int64          `json:"totalPrice"`
	IsFromConfigurator bool           `json:"isFromConfigurator"`
	AddedAt            int64          `json:"addedAt"`
	Configuration      map[string]any `json:"configuration,omitempty"`
}

// CustomerInfo identifies who orders
type CustomerInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// OrderDetails completes a cart for checkout
type OrderDetails struct {
	CustomerInfo       CustomerInfo `json:"customerInfo"`
	DeliveryPreference string       `json:"deliveryPreference,omitempty"`
	Notes              string       `json:"notes,omitempty"`
}

// Cart is the checkout basket
type Cart struct {
	Items   []Item        `json:"items"`
	Details *OrderDetails `json:"orderDetails,omitempty"`
}

// Add puts item into the cart. A configurator item replaces any configurator
// item already present; other items are appended.
func (c *Cart) Add(item Item, now time.Time) Item {
	if item.ID == "" {
		item.ID = "cart_" + uuid.NewString()
	}
	if item.AddedAt == 0 {
		item.AddedAt = now.UnixMilli()
	}
	if item.IsFromConfigurator {
		kept := c.Items[:0]
		for _, it := range c.Items {
			if !it.IsFromConfigurator {
				kept = append(kept, it)
			}
		}
		c.Items = kept
	}
	c.Items = append(c.Items, item)
	return item
}

// Remove deletes the item with id.
func (c *Cart) Remove(id string) error {
	for i, it := range c.Items {
		if it.ID == id {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// Clear empties the cart and forgets the order details.
func (c *Cart) Clear() {
	c.Items = nil
	c.Details = nil
}

// Count is the number of items
func (c *Cart) Count() int {
	return len(c.Items)
}

// Total is the sum of item prices in euros
func (c *Cart) Total() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.TotalPrice
	}
	return total
}

// Summary renders e.g. "1 Konfiguration - 228.139 €".
func (c *Cart) Summary() string {
	noun := "Konfigurationen"
	if c.Count() == 1 {
		noun = "Konfiguration"
	}
	return fmt.Sprintf("%d %s - %s", c.Count(), noun, pricing.FormatEUR(decimal.NewFromInt(c.Total())))
}

// ValidateCheckout requires at least one item and a customer email.
func (c *Cart) ValidateCheckout() error {
	if len(c.Items) == 0 {
		return ErrEmptyCart
	}
	if c.Details == nil || strings.TrimSpace(c.Details.CustomerInfo.Email) == "" {
		return ErrEmailRequired
	}
	return nil
}

// SessionIDs returns the distinct non-empty session ids of the items.
func (c *Cart) SessionIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, it := range c.Items {
		if it.SessionID == "" {
			continue
		}
		if _, ok := seen[it.SessionID]; ok {
			continue
		}
		seen[it.SessionID] = struct{}{}
		ids = append(ids, it.SessionID)
	}
	return ids
}

// OrderMessage is the inquiry message recorded for an order.
func (c *Cart) OrderMessage() string {
	notes := ""
	if c.Details != nil {
		notes = c.Details.Notes
	}
	return strings.TrimSpace(fmt.Sprintf("Bestellung mit %d Konfiguration(en). %s", c.Count(), notes))
}

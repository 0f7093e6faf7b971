package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers ids of events delivered by external systems,
// such as payment webhooks, so redeliveries are acknowledged without being
// applied twice.
type IdempotencyStore interface {
	// MarkProcessed claims eventID for ttl. first is false when another
	// delivery already claimed it.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (first bool, err error)
	// IsProcessed reports whether eventID is claimed.
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	Close() error
}

package cache

import (
	"context"
	"time"

	"github.com/nest-haus/backend/internal/domain/shared"
)

// DefaultIdempotencyPrefix namespaces processed webhook event ids.
const DefaultIdempotencyPrefix = "stripe:event:"

// IdempotencyStore remembers processed event ids on top of a Store
type IdempotencyStore struct {
	store  Store
	prefix string
	closer func() error
}

// NewIdempotencyStore creates an IdempotencyStore. An empty prefix uses DefaultIdempotencyPrefix.
func NewIdempotencyStore(store Store, prefix string) *IdempotencyStore {
	if prefix == "" {
		prefix = DefaultIdempotencyPrefix
	}
	s := &IdempotencyStore{store: store, prefix: prefix}
	if m, ok := store.(*MemoryStore); ok {
		s.closer = m.Close
	}
	return s
}

// MarkProcessed returns true the first time eventID is seen within ttl
func (s *IdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return s.store.SetNX(ctx, s.prefix+eventID, []byte("1"), ttl)
}

// IsProcessed reports whether eventID was marked and has not expired
func (s *IdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	_, ok, err := s.store.Get(ctx, s.prefix+eventID)
	return ok, err
}

// Close releases a memory-backed store's sweeper; Redis clients are closed by their owner.
func (s *IdempotencyStore) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}

var _ shared.IdempotencyStore = (*IdempotencyStore)(nil)

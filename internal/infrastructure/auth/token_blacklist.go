package auth

import (
	"context"
	"time"
)

// KeyValueStore is the subset of a cache the blacklist needs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

const blacklistPrefix = "admin:revoked:"

// TokenBlacklist remembers revoked token ids until the token would have expired.
type TokenBlacklist struct {
	store KeyValueStore
}

// NewTokenBlacklist creates a TokenBlacklist on store
func NewTokenBlacklist(store KeyValueStore) *TokenBlacklist {
	return &TokenBlacklist{store: store}
}

// Revoke blacklists jti for ttl. Already expired tokens need no entry.
func (b *TokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.store.Set(ctx, blacklistPrefix+jti, []byte("1"), ttl)
}

// IsRevoked reports whether jti was revoked
func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, ok, err := b.store.Get(ctx, blacklistPrefix+jti)
	return ok, err
}

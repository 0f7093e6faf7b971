package admin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/auth"
	"github.com/nest-haus/backend/internal/infrastructure/cache"
	"github.com/nest-haus/backend/internal/infrastructure/config"
)

func newTestAuthService(t *testing.T, admin config.AdminConfig, secret string) *AuthService {
	t.Helper()
	store := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	jwtService := auth.NewJWTService(config.JWTConfig{Secret: secret, Expiration: time.Hour, Issuer: "nest-haus"})
	return NewAuthService(auth.NewPasswordVerifier(admin), jwtService, auth.NewTokenBlacklist(store), zaptest.NewLogger(t))
}

const secret = "test-secret-key-at-least-32-chars"

func TestLoginAuthenticateLogout(t *testing.T) {
	hash, err := auth.HashPassword("hoch-hinaus")
	require.NoError(t, err)
	svc := newTestAuthService(t, config.AdminConfig{PasswordHash: hash}, secret)
	ctx := context.Background()

	_, err = svc.Login(ctx, "falsch")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	token, err := svc.Login(ctx, "hoch-hinaus")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, svc.TokenLifetime())

	claims, err := svc.Authenticate(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, token.ID, claims.ID)

	require.NoError(t, svc.Logout(ctx, token.Token))
	_, err = svc.Authenticate(ctx, token.Token)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// a fresh login is unaffected by the earlier logout
	again, err := svc.Login(ctx, "hoch-hinaus")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, again.Token)
	assert.NoError(t, err)
}

func TestAuthenticate_Rejects(t *testing.T) {
	svc := newTestAuthService(t, config.AdminConfig{Password: "plain"}, secret)
	ctx := context.Background()

	_, err := svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
	_, err = svc.Authenticate(ctx, "not.a.jwt")
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	other := auth.NewJWTService(config.JWTConfig{Secret: "another-secret-key-of-32-characters", Issuer: "nest-haus"})
	foreign, err := other.Issue()
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, foreign.Token)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)

	assert.NoError(t, svc.Logout(ctx, "garbage"))
}

func TestLogin_NotConfigured(t *testing.T) {
	svc := newTestAuthService(t, config.AdminConfig{}, secret)
	_, err := svc.Login(context.Background(), "anything")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)

	noSecret := newTestAuthService(t, config.AdminConfig{Password: "plain"}, "")
	_, err = noSecret.Login(context.Background(), "plain")
	assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
}

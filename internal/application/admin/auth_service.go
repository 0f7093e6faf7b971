// Package admin authenticates the back office.
package admin

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/auth"
)

var (
	ErrInvalidCredentials = shared.ErrUnauthorized.WithMessage("Invalid password")
	ErrTokenExpired       = shared.ErrUnauthorized.WithMessage("Session expired, please log in again")
	ErrTokenInvalid       = shared.ErrUnauthorized.WithMessage("Invalid admin token")
	ErrTokenRevoked       = shared.ErrUnauthorized.WithMessage("Admin token has been revoked")
	ErrNotConfigured      = shared.ErrServiceUnavailable.WithMessage("Admin login is not configured")
)

// AuthService handles admin login, logout and token checks.
type AuthService struct {
	verifier  *auth.PasswordVerifier
	jwt       *auth.JWTService
	blacklist *auth.TokenBlacklist
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService creates an AuthService. blacklist may be nil, in which case
// logout only clears the cookie.
func NewAuthService(verifier *auth.PasswordVerifier, jwtService *auth.JWTService, blacklist *auth.TokenBlacklist, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		verifier:  verifier,
		jwt:       jwtService,
		blacklist: blacklist,
		logger:    logger.Named("admin_auth"),
		now:       time.Now,
	}
}

// TokenLifetime is how long issued tokens stay valid.
func (s *AuthService) TokenLifetime() time.Duration {
	return s.jwt.Expiration()
}

// Login checks password and issues a token.
func (s *AuthService) Login(ctx context.Context, password string) (*auth.IssuedToken, error) {
	if err := s.verifier.Verify(password); err != nil {
		if errors.Is(err, auth.ErrNoAdminPassword) {
			s.logger.Error("Admin login attempted without configured password")
			return nil, ErrNotConfigured
		}
		s.logger.Warn("Admin login failed")
		return nil, ErrInvalidCredentials
	}
	token, err := s.jwt.Issue()
	if err != nil {
		s.logger.Error("Failed to issue admin token", zap.Error(err))
		if errors.Is(err, auth.ErrMissingSecret) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}
	s.logger.Info("Admin logged in", zap.String("jti", token.ID), zap.Time("expires_at", token.ExpiresAt))
	return token, nil
}

// Authenticate validates token and rejects revoked ones. A blacklist that
// cannot be read rejects the token.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	claims, err := s.jwt.Validate(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			return nil, ErrTokenExpired
		case errors.Is(err, auth.ErrMissingSecret):
			return nil, ErrNotConfigured
		default:
			return nil, ErrTokenInvalid
		}
	}
	if s.blacklist != nil {
		revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("Token blacklist unavailable", zap.Error(err))
			return nil, shared.ErrServiceUnavailable.Wrap(err)
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Logout revokes token until it would have expired. Invalid or expired
// tokens need no revocation.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" || s.blacklist == nil {
		return nil
	}
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil
	}
	ttl := claims.RemainingTTL(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, ttl); err != nil {
		return shared.ErrServiceUnavailable.Wrap(err)
	}
	s.logger.Info("Admin logged out", zap.String("jti", claims.ID))
	return nil
}

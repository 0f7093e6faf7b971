package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/nest-haus/backend/internal/infrastructure/config"
)

// ErrInvalidPassword is returned for a wrong admin password
var ErrInvalidPassword = errors.New("invalid password")

// ErrNoAdminPassword is returned when no admin credential is configured.
var ErrNoAdminPassword = errors.New("admin password is not configured")

// PasswordVerifier checks the single back-office password.
type PasswordVerifier struct {
	hash  []byte
	plain []byte
}

// NewPasswordVerifier prefers the bcrypt hash over the plaintext password.
func NewPasswordVerifier(cfg config.AdminConfig) *PasswordVerifier {
	v := &PasswordVerifier{}
	if cfg.PasswordHash != "" {
		v.hash = []byte(cfg.PasswordHash)
	} else if cfg.Password != "" {
		v.plain = []byte(cfg.Password)
	}
	return v
}

// Verify returns nil when password matches.
func (v *PasswordVerifier) Verify(password string) error {
	switch {
	case len(v.hash) > 0:
		if err := bcrypt.CompareHashAndPassword(v.hash, []byte(password)); err != nil {
			return ErrInvalidPassword
		}
		return nil
	case len(v.plain) > 0:
		if subtle.ConstantTimeCompare(v.plain, []byte(password)) != 1 {
			return ErrInvalidPassword
		}
		return nil
	default:
		return ErrNoAdminPassword
	}
}

// HashPassword bcrypts password for admin.password_hash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

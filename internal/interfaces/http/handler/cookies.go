package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nest-haus/backend/internal/infrastructure/config"
)

// SessionCookieMaxAge keeps the configurator session for a week.
const SessionCookieMaxAge = 7 * 24 * time.Hour

// Cookies writes cookies with the configured domain, path and flags.
type Cookies struct {
	cfg config.CookieConfig
}

// NewCookies creates a cookie writer.
func NewCookies(cfg config.CookieConfig) *Cookies {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &Cookies{cfg: cfg}
}

func (k *Cookies) sameSite() http.SameSite {
	switch strings.ToLower(k.cfg.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Set writes an httpOnly cookie living for maxAge.
func (k *Cookies) Set(c *gin.Context, name, value string, maxAge time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     k.cfg.Path,
		Domain:   k.cfg.Domain,
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		Secure:   k.cfg.Secure,
		HttpOnly: true,
		SameSite: k.sameSite(),
	})
}

// Clear expires the cookie.
func (k *Cookies) Clear(c *gin.Context, name string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     k.cfg.Path,
		Domain:   k.cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   k.cfg.Secure,
		HttpOnly: true,
		SameSite: k.sameSite(),
	})
}

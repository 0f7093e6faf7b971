package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/auth"
	"github.com/nest-haus/backend/internal/infrastructure/logger"
	"github.com/nest-haus/backend/internal/interfaces/http/dto"
)

// Context keys and header names used by the auth middleware
const (
	AdminClaimsKey   = "admin_claims"
	AdminCookieName  = "admin_token"
	AuthHeaderKey    = "Authorization"
	BearerPrefix     = "Bearer "
	CronHeader       = "X-Vercel-Cron"
	CronUserAgent    = "vercel-cron"
	CronSecretHeader = "X-Cron-Secret"
	SessionIDKey     = "session_id"
)

// Authenticator validates admin tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// AdminToken extracts the admin token from the Authorization header or,
// failing that, the admin_token cookie.
func AdminToken(c *gin.Context) string {
	if h := c.GetHeader(AuthHeaderKey); strings.HasPrefix(h, BearerPrefix) {
		if token := strings.TrimSpace(strings.TrimPrefix(h, BearerPrefix)); token != "" {
			return token
		}
	}
	if cookie, err := c.Cookie(AdminCookieName); err == nil {
		return cookie
	}
	return ""
}

// AdminAuth rejects requests without a valid admin token.
func AdminAuth(authenticator Authenticator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := AdminToken(c)
		if token == "" {
			abortAuth(c, shared.ErrUnauthorized.WithMessage("Admin authentication required"))
			return
		}
		claims, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			log.Warn("Admin authentication failed",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.Error(err),
			)
			abortAuth(c, err)
			return
		}
		c.Set(AdminClaimsKey, claims)
		c.Next()
	}
}

// IsAdmin reports whether AdminAuth or CronAuth accepted an admin token.
func IsAdmin(c *gin.Context) bool {
	_, ok := c.Get(AdminClaimsKey)
	return ok
}

// CronAuth accepts the platform cron caller, a request carrying the cron
// secret, or a valid admin token. The platform header and user agent are
// honoured only when trustPlatform is set, since anyone can send them
// when the API is not behind that platform.
func CronAuth(secret string, trustPlatform bool, authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if trustPlatform && (c.GetHeader(CronHeader) == "1" || strings.Contains(c.Request.UserAgent(), CronUserAgent)) {
			c.Next()
			return
		}
		if secret != "" {
			given := c.GetHeader(CronSecretHeader)
			if given == "" {
				if h := c.GetHeader(AuthHeaderKey); strings.HasPrefix(h, BearerPrefix) {
					given = strings.TrimPrefix(h, BearerPrefix)
				}
			}
			if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1 {
				c.Next()
				return
			}
		}
		if authenticator != nil {
			if token := AdminToken(c); token != "" {
				if claims, err := authenticator.Authenticate(c.Request.Context(), token); err == nil {
					c.Set(AdminClaimsKey, claims)
					c.Next()
					return
				}
			}
		}
		logger.L(c.Request.Context()).Warn("Unauthorized cron request", zap.String("client_ip", c.ClientIP()))
		abortAuth(c, shared.ErrUnauthorized.WithMessage("Unauthorized"))
	}
}

func abortAuth(c *gin.Context, err error) {
	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	var de *shared.DomainError
	if errors.As(err, &de) {
		code, message = dto.NormalizeErrorCode(de.Code), de.Message
	}
	status := dto.GetHTTPStatus(code)
	if status < http.StatusBadRequest {
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}

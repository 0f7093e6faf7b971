package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nest-haus/backend/internal/infrastructure/auth"
	"github.com/nest-haus/backend/internal/interfaces/http/dto"
	"github.com/nest-haus/backend/internal/interfaces/http/middleware"
)

// AdminAuthService logs admins in and out.
type AdminAuthService interface {
	Login(ctx context.Context, password string) (*auth.IssuedToken, error)
	Logout(ctx context.Context, token string) error
	TokenLifetime() time.Duration
}

// AdminHandler serves admin login.
type AdminHandler struct {
	BaseHandler
	svc     AdminAuthService
	cookies *Cookies
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc AdminAuthService, cookies *Cookies) *AdminHandler {
	return &AdminHandler{svc: svc, cookies: cookies}
}

// LoginRequest carries the shared admin password.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login checks the password and issues a token as cookie and in the body.
func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}
	token, err := h.svc.Login(c.Request.Context(), req.Password)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.cookies.Set(c, middleware.AdminCookieName, token.Token, h.svc.TokenLifetime())
	h.Success(c, token)
}

// Logout revokes the presented token and clears the cookie.
func (h *AdminHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.AdminToken(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.cookies.Clear(c, middleware.AdminCookieName)
	h.Success(c, gin.H{"loggedOut": true})
}

// Me reports the current admin token.
func (h *AdminHandler) Me(c *gin.Context) {
	v, ok := c.Get(middleware.AdminClaimsKey)
	claims, _ := v.(*auth.Claims)
	if !ok || claims == nil {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Not logged in")
		return
	}
	h.Success(c, gin.H{
		"role":      claims.Role,
		"expiresAt": claims.ExpiresAtTime(),
	})
}

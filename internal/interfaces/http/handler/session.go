package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appsession "github.com/nest-haus/backend/internal/application/session"
	"github.com/nest-haus/backend/internal/domain/session"
)

// SessionTracker is the configurator session tracker.
type SessionTracker interface {
	Track(ctx context.Context, sel session.Selection, client session.ClientInfo) (*session.LiveSession, error)
	Sync(ctx context.Context, req appsession.SyncRequest, client session.ClientInfo) error
	TrackInteraction(ctx context.Context, sessionID string, in session.Interaction, client session.ClientInfo, landingURL string) (*appsession.InteractionResult, error)
	Finalize(ctx context.Context, sessionID string, reason session.FinalizeReason) error
	LiveStats(ctx context.Context) (session.LiveStats, error)
}

// SessionHandler serves the configurator tracking endpoints.
type SessionHandler struct {
	BaseHandler
	tracker SessionTracker
	cookies *Cookies
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(tracker SessionTracker, cookies *Cookies) *SessionHandler {
	return &SessionHandler{tracker: tracker, cookies: cookies}
}

// Track records one selection. The session id comes from the body or the
// sessionId cookie; a request with neither is rejected.
func (h *SessionHandler) Track(c *gin.Context) {
	var sel session.Selection
	if !h.BindJSON(c, &sel) {
		return
	}
	sel.SessionID = sessionID(c, sel.SessionID)
	ls, err := h.tracker.Track(c.Request.Context(), sel, clientInfo(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.cookies.Set(c, SessionCookieName, sel.SessionID, SessionCookieMaxAge)
	h.Success(c, gin.H{
		"sessionId":  sel.SessionID,
		"selections": ls.Selections,
		"totalPrice": ls.TotalPrice,
	})
}

// Sync stores a full configuration snapshot.
func (h *SessionHandler) Sync(c *gin.Context) {
	var req appsession.SyncRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.SessionID = sessionID(c, req.SessionID)
	if err := h.tracker.Sync(c.Request.Context(), req, clientInfo(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.cookies.Set(c, SessionCookieName, req.SessionID, SessionCookieMaxAge)
	h.Success(c, gin.H{"sessionId": req.SessionID, "totalPrice": req.TotalPrice})
}

// InteractionRequest is a UI interaction with its session.
type InteractionRequest struct {
	SessionID  string `json:"sessionId"`
	LandingURL string `json:"landingUrl,omitempty"`
	session.Interaction
}

// TrackInteraction records a UI interaction. Visitors without a session get
// a new one, returned in the body and the cookie.
func (h *SessionHandler) TrackInteraction(c *gin.Context) {
	var req InteractionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	id := sessionID(c, req.SessionID)
	if id == "" {
		id = "session_" + uuid.NewString()
		sessionID(c, id)
	}
	res, err := h.tracker.TrackInteraction(c.Request.Context(), id, req.Interaction, clientInfo(c), req.LandingURL)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.cookies.Set(c, SessionCookieName, id, SessionCookieMaxAge)
	h.Success(c, gin.H{
		"sessionId":      id,
		"userIdentifier": res.UserIdentifier,
		"deviceType":     res.DeviceType,
		"trafficSource":  res.Traffic,
	})
}

// FinalizeRequest ends a session.
type FinalizeRequest struct {
	SessionID string                 `json:"sessionId"`
	Reason    session.FinalizeReason `json:"reason" binding:"omitempty,oneof=completed conversion page_exit timeout"`
}

// Finalize closes a session. Browsers call it from sendBeacon on page exit.
func (h *SessionHandler) Finalize(c *gin.Context) {
	var req FinalizeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	id := sessionID(c, req.SessionID)
	if err := h.tracker.Finalize(c.Request.Context(), id, req.Reason); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"sessionId": id, "finalized": true})
}

// LiveStats returns counts from the hot session store.
func (h *SessionHandler) LiveStats(c *gin.Context) {
	stats, err := h.tracker.LiveStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

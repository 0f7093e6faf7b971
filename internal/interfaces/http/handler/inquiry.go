package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	appinquiry "github.com/nest-haus/backend/internal/application/inquiry"
	"github.com/nest-haus/backend/internal/domain/cart"
	"github.com/nest-haus/backend/internal/domain/inquiry"
	"github.com/nest-haus/backend/internal/domain/session"
	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/interfaces/http/dto"
)

// InquiryService accepts and manages inquiries.
type InquiryService interface {
	Submit(ctx context.Context, sub inquiry.Submission, sessionID string, client session.ClientInfo) (*inquiry.Inquiry, error)
	PlaceOrder(ctx context.Context, c *cart.Cart, client session.ClientInfo) (*appinquiry.OrderResult, error)
	List(ctx context.Context, filter shared.Filter) ([]inquiry.Inquiry, int64, error)
	Get(ctx context.Context, id string) (*inquiry.Inquiry, error)
	Update(ctx context.Context, id string, req appinquiry.UpdateRequest) (*inquiry.Inquiry, error)
}

// InquiryHandler serves the contact form, checkout and the inquiry admin.
type InquiryHandler struct {
	BaseHandler
	svc InquiryService
}

// NewInquiryHandler creates an InquiryHandler.
func NewInquiryHandler(svc InquiryService) *InquiryHandler {
	return &InquiryHandler{svc: svc}
}

// ContactRequest is the contact or appointment form.
type ContactRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	inquiry.Submission
}

// Contact stores a contact or appointment request.
func (h *InquiryHandler) Contact(c *gin.Context) {
	var req ContactRequest
	if !h.BindJSON(c, &req) {
		return
	}
	inq, err := h.svc.Submit(c.Request.Context(), req.Submission, sessionID(c, req.SessionID), clientInfo(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, gin.H{
		"inquiryId": inq.ID,
		"message":   "Vielen Dank für Ihre Anfrage! Wir melden uns innerhalb von 24 Stunden bei Ihnen.",
		"inquiry":   inq,
	})
}

// Checkout turns the cart into an order inquiry. A repeated checkout within
// the duplicate window answers 200 with the earlier inquiry.
func (h *InquiryHandler) Checkout(c *gin.Context) {
	var req cart.Cart
	if !h.BindJSON(c, &req) {
		return
	}
	if ids := req.SessionIDs(); len(ids) > 0 {
		sessionID(c, ids[0])
	}
	res, err := h.svc.PlaceOrder(c.Request.Context(), &req, clientInfo(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, dto.NewSuccessResponse(gin.H{
		"inquiryId": res.Inquiry.ID,
		"duplicate": res.Duplicate,
		"summary":   res.Summary,
		"inquiry":   res.Inquiry,
	}))
}

// List returns one page of inquiries, optionally filtered by status and
// searched by name, email or phone.
func (h *InquiryHandler) List(c *gin.Context) {
	req := dto.DefaultListRequest()
	if !h.BindQuery(c, &req) {
		return
	}
	filter := shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
		Search:   req.Search,
		Status:   req.Status,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
	}
	items, total, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, items, total, req.Page, req.PageSize)
}

// Get returns one inquiry.
func (h *InquiryHandler) Get(c *gin.Context) {
	inq, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inq)
}

// Update changes status, notes or the follow-up date.
func (h *InquiryHandler) Update(c *gin.Context) {
	var req appinquiry.UpdateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	inq, err := h.svc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inq)
}

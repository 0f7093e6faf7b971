package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apppayment "github.com/nest-haus/backend/internal/application/payment"
	"github.com/nest-haus/backend/internal/domain/payment"
	"github.com/nest-haus/backend/internal/infrastructure/logger"
	"github.com/nest-haus/backend/internal/interfaces/http/dto"
)

// StripeSignatureHeader carries the webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// PaymentService creates and confirms payments.
type PaymentService interface {
	Enabled() bool
	PublishableKey() string
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	Confirm(ctx context.Context, intentID, inquiryID string) (*apppayment.ConfirmResult, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*apppayment.WebhookResult, error)
}

// PaymentHandler serves the Stripe endpoints.
type PaymentHandler struct {
	BaseHandler
	svc PaymentService
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(svc PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// Config returns the browser key.
func (h *PaymentHandler) Config(c *gin.Context) {
	h.Success(c, gin.H{
		"enabled":        h.svc.Enabled(),
		"publishableKey": h.svc.PublishableKey(),
	})
}

// CreateIntent creates a payment intent.
func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	var req payment.IntentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	intent, err := h.svc.CreateIntent(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{
		"clientSecret":    intent.ClientSecret,
		"paymentIntentId": intent.ID,
		"amount":          intent.Amount,
		"currency":        intent.Currency,
	})
}

// ConfirmRequest reports a payment completed in the browser.
type ConfirmRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	InquiryID       string `json:"inquiryId,omitempty"`
}

// Confirm verifies a payment with Stripe and marks the inquiry paid.
func (h *PaymentHandler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.svc.Confirm(c.Request.Context(), req.PaymentIntentID, req.InquiryID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, res)
}

// Webhook applies a Stripe event. The raw body is needed for the signature,
// so it is read here rather than bound. Anything but a bad signature or an
// oversized payload answers 200 so Stripe stops retrying.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, apppayment.MaxWebhookPayload+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Payload too large")
			return
		}
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) > apppayment.MaxWebhookPayload {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Payload too large")
		return
	}
	signature := c.GetHeader(StripeSignatureHeader)
	if signature == "" {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Missing Stripe-Signature header")
		return
	}

	res, err := h.svc.HandleWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, payment.ErrInvalidEvent) {
			logger.L(c.Request.Context()).Warn("Rejected webhook", zap.Error(err))
		}
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"eventId":   res.EventID,
		"eventType": res.EventType,
		"processed": res.Processed,
		"message":   res.Message,
	})
}

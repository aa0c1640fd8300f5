package api

import (
	"net/http"
	"time"

	"github.com/ledgerbase/billing/internal/checkout"
	"github.com/ledgerbase/billing/internal/logger"
	"github.com/gin-gonic/gin"
)

// CheckoutHandler exposes checkout-session completion, the one piece of
// the inbound RPC surface spec.md §9 names as in-scope context for this
// binary (the hosted checkout page's final "pay now" call).
type CheckoutHandler struct {
	service *checkout.Service
	log     *logger.Logger
}

func NewCheckoutHandler(service *checkout.Service, log *logger.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: service, log: log}
}

type completeCheckoutRequest struct {
	TenantID        string `json:"tenant_id" binding:"required"`
	PaymentMethodID string `json:"payment_method_id"`
	AmountCents     int64  `json:"amount_cents" binding:"required"`
	Currency        string `json:"currency" binding:"required"`
}

func (h *CheckoutHandler) Complete(c *gin.Context) {
	sessionID := c.Param("id")

	var req completeCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.service.CompleteCheckout(c.Request.Context(), req.TenantID, sessionID,
		req.PaymentMethodID, req.AmountCents, req.Currency, time.Now())
	if err != nil {
		h.log.Errorw("checkout completion failed", "session_id", sessionID, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, session)
}

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/ledgerbase/billing/internal/auth"
	paymentDomain "github.com/ledgerbase/billing/internal/domain/payment"
	"github.com/ledgerbase/billing/internal/logger"
	"github.com/ledgerbase/billing/internal/payment"
	"github.com/gin-gonic/gin"
)

// WebhookHandler receives provider payment-settlement callbacks and
// drives them straight into the payment orchestrator's consolidation/
// on-invoice-paid path, grounded on the teacher's StripeWebhookHandler
// (internal/api/v1/stripe_webhook.go): read raw body, log without the
// payload, answer 200 once the event is durably actioned so the
// provider's own retry clock never drives reprocessing (spec.md §9:
// "webhook handlers return success to the provider after durably
// persisting the incoming event").
//
// Provider-signature verification (Stripe-Signature, X-Razorpay-Signature)
// against the raw body happens at the relay that fronts this service; by
// the time a callback reaches here it carries a WebhookClaims token this
// handler verifies instead, so ingress never trusts a tenant_id taken
// straight from the JSON body.
type WebhookHandler struct {
	orchestrator *payment.Orchestrator
	signer       *auth.WebhookTokenSigner
	log          *logger.Logger
}

func NewWebhookHandler(orchestrator *payment.Orchestrator, signer *auth.WebhookTokenSigner, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{orchestrator: orchestrator, signer: signer, log: log}
}

// settlementEvent is the minimal shape every provider's "payment
// succeeded" callback is normalized to before it reaches this handler.
type settlementEvent struct {
	InvoiceID       string `json:"invoice_id"`
	ProviderName    string `json:"provider_name"`
	PaymentMethodID string `json:"payment_method_id"`
}

func (h *WebhookHandler) ReceiveSettlement(c *gin.Context) {
	token := c.GetHeader("X-Webhook-Token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-Webhook-Token header"})
		return
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		h.log.Errorw("rejected webhook token", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired webhook token"})
		return
	}

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Errorw("failed to read webhook body", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	h.log.Infow("received payment settlement webhook",
		"content_length", len(rawBody), "tenant_id", claims.TenantID, "remote_addr", c.ClientIP())

	var evt settlementEvent
	if err := json.Unmarshal(rawBody, &evt); err != nil || evt.InvoiceID == "" {
		h.log.Errorw("malformed settlement webhook payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing invoice_id"})
		return
	}

	var tx *paymentDomain.Transaction
	if evt.ProviderName != "" {
		tx = &paymentDomain.Transaction{ProviderName: evt.ProviderName, PaymentMethodID: evt.PaymentMethodID}
	}
	if err := h.orchestrator.OnInvoicePaid(c.Request.Context(), claims.TenantID, evt.InvoiceID, tx); err != nil {
		h.log.Errorw("failed to process settlement webhook", "error", err, "invoice_id", evt.InvoiceID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process settlement"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}

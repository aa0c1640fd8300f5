package api

import (
	"github.com/gin-gonic/gin"
)

// Handlers bundles the HTTP surface this deployment exposes. The broader
// subscription/plan/invoice CRUD surface is out of scope here (spec.md
// §9: "named for context" only) — this binary exists to give C9's
// webhook ingress and process health a real front door.
type Handlers struct {
	Health   *HealthHandler
	Webhook  *WebhookHandler
	Checkout *CheckoutHandler
}

func NewRouter(h Handlers) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", h.Health.Health)
	router.POST("/webhooks/payments/settlement", h.Webhook.ReceiveSettlement)
	router.POST("/checkout/:id/complete", h.Checkout.Complete)

	return router
}

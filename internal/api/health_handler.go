package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler answers liveness/readiness probes, grounded on the
// teacher's v1.HealthHandler.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checks []func() error
}

// create a new instance of the health handler; nil checks are skipped
func NewHealthHandler(checks ...func() error) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports whether every backing store answers.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	for _, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check(); err != nil {
			_ = ctx.Error(err)
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}

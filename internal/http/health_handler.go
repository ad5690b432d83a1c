package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Check verifica una dependencia externa (postgres, redis, ...).
type Check func(ctx context.Context) error

type HealthHandler struct {
	logger *zap.Logger
	checks map[string]Check
}

func NewHealthHandler(logger *zap.Logger, checks map[string]Check) *HealthHandler {
	return &HealthHandler{logger: logger, checks: checks}
}

// Live maneja GET /healthz.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready maneja GET /readyz: 503 si alguna dependencia no responde.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"checks": results})
}

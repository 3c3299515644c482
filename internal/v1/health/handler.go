// Package health exposes liveness and readiness endpoints for the ops
// server. Liveness is unconditional; readiness runs the registered
// dependency checks and fails with 503 when any of them does.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Handler serves the health endpoints.
type Handler struct {
	checks map[string]Check
}

// NewHandler builds a handler with the given named checks.
func NewHandler(checks map[string]Check) *Handler {
	if checks == nil {
		checks = make(map[string]Check)
	}
	return &Handler{checks: checks}
}

// Liveness reports that the process is up.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Readiness runs every check; any failure yields 503 with per-check detail.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}

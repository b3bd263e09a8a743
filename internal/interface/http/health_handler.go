package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-ddd-auth/pkg/response"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	Service string
	Checks  map[string]HealthCheck
	Timeout time.Duration
}

func NewHealthHandler(service string, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{Service: service, Checks: checks, Timeout: 2 * time.Second}
}

// Health GET /api/v1/auth/health
func (h *HealthHandler) Health(c *gin.Context) {
	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.Timeout)
		err := h.Checks[name](ctx)
		cancel()
		if err != nil {
			deps[name] = "down"
			healthy = false
			continue
		}
		deps[name] = "up"
	}

	body := gin.H{"service": h.Service, "status": "ok", "dependencies": deps}
	if !healthy {
		body["status"] = "degraded"
		response.ErrorCode[gin.H](c, http.StatusServiceUnavailable, "UNAVAILABLE", "service degraded", body)
		return
	}
	response.Success(c, http.StatusOK, body, "healthy", nil)
}

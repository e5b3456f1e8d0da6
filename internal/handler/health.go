package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandler struct {
	remote   HealthChecker
	services fiber.Map
}

// NewHealthHandler creates the /health handler. services lists the static
// availability of optional components.
func NewHealthHandler(remote HealthChecker, services fiber.Map) *HealthHandler {
	return &HealthHandler{remote: remote, services: services}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	services := fiber.Map{}
	for k, v := range h.services {
		services[k] = v
	}

	status := "ok"
	if h.remote != nil {
		ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
		defer cancel()
		err := h.remote.HealthCheck(ctx)
		services["remote"] = err == nil
		if err != nil {
			status = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":   status,
		"services": services,
	})
}

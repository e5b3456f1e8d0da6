package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/middleware"
)

// AuthHandler handles ForwardAuth verification for an API gateway
type AuthHandler struct {
	auth *middleware.AuthMiddleware
}

func NewAuthHandler(auth *middleware.AuthMiddleware) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Verify handles GET /auth/verify.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	if !h.auth.Enabled() {
		return c.SendStatus(fiber.StatusOK)
	}

	authHeader := c.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	claims, err := h.auth.ValidateToken(parts[1])
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}
	c.Set("X-User-Id", claims.UserID)
	c.Set("X-User-Email", claims.Email)
	return c.SendStatus(fiber.StatusOK)
}

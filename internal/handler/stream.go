package handler

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/middleware"
	ws "github.com/ai-hackathon-team-af/agent-education-video-studio/internal/websocket"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/wizard"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/pkg/response"
)

// StreamHandler serves the snapshot stream of a session over a websocket
type StreamHandler struct {
	manager *wizard.Manager
	hub     *ws.Hub
	auth    *middleware.AuthMiddleware
}

func NewStreamHandler(m *wizard.Manager, hub *ws.Hub, auth *middleware.AuthMiddleware) *StreamHandler {
	return &StreamHandler{manager: m, hub: hub, auth: auth}
}

// Upgrade rejects requests that are not websocket upgrades for a known
// session. Browsers cannot set headers on websocket requests, so the token
// travels in the query string.
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if h.auth != nil && h.auth.Enabled() {
		if _, err := h.auth.ValidateToken(c.Query("token")); err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}
	}
	if _, err := h.manager.Lookup(c.Context(), c.Params("id")); err != nil {
		return response.NotFound(c, "Session not found")
	}
	return c.Next()
}

// Stream handles GET /ws/sessions/:id
func (h *StreamHandler) Stream() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		snap, err := h.manager.Lookup(context.Background(), c.Params("id"))
		if err != nil {
			return
		}
		h.hub.HandleConnection(c, *snap)
	})
}

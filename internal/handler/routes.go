package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/config"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/middleware"
)

// Routes are the handlers mounted by Register
type Routes struct {
	Wizard  *WizardHandler
	Library *LibraryHandler
	Health  *HealthHandler
	Auth    *AuthHandler
	Stream  *StreamHandler

	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.RateLimiter
	Limits         config.RateLimitConfig
}

// Register mounts the studio API on app
func Register(app *fiber.App, r Routes) {
	app.Get("/health", r.Health.Health)
	if r.Auth != nil {
		app.Get("/auth/verify", r.Auth.Verify)
	}

	api := app.Group("/api", r.AuthMiddleware.Authenticate())

	// Wizard routes
	sessions := api.Group("/wizard/sessions")
	sessions.Post("/", r.Wizard.Create)
	sessions.Get("/:id", r.Wizard.Get)
	sessions.Delete("/:id", r.Wizard.Dispose)
	sessions.Put("/:id/tags", r.Wizard.SetTags)
	sessions.Post("/:id/document", r.RateLimiter.DocumentLimit(r.Limits.DocumentPerHour), r.Wizard.Document)
	sessions.Post("/:id/script", r.RateLimiter.ScriptLimit(r.Limits.ScriptPerHour), r.Wizard.Script)
	sessions.Post("/:id/advance", r.Wizard.Advance)
	sessions.Post("/:id/render", r.RateLimiter.RenderLimit(r.Limits.RenderPerHour), r.Wizard.Render)
	sessions.Post("/:id/cancel", r.Wizard.Cancel)
	sessions.Post("/:id/reset-to", r.Wizard.ResetTo)
	sessions.Post("/:id/reset", r.Wizard.Reset)
	sessions.Post("/:id/save", r.Wizard.Save)
	sessions.Patch("/:id/sections/:section/segments/:segment", r.Wizard.UpdateSegment)
	sessions.Post("/:id/sections/:section/segments/:segment/after", r.Wizard.InsertSegment)
	sessions.Delete("/:id/sections/:section/segments/:segment", r.Wizard.DeleteSegment)

	// Library routes
	lib := api.Group("/library")
	lib.Get("/scripts", r.Library.List)
	lib.Get("/scripts/:name", r.Library.Select)
	lib.Delete("/scripts/:name", r.Library.Delete)
	lib.Post("/scripts/:name/render", r.RateLimiter.RenderLimit(r.Limits.RenderPerHour), r.Library.Render)
	lib.Get("/status", r.Library.Status)
	lib.Post("/reset", r.Library.Reset)

	// WebSocket routes
	if r.Stream != nil {
		app.Get("/ws/sessions/:id", r.Stream.Upgrade, r.Stream.Stream())
	}
}

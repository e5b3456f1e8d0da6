package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/client"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/library"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/pkg/response"
)

type LibraryHandler struct {
	library *library.Library
}

func NewLibraryHandler(lib *library.Library) *LibraryHandler {
	return &LibraryHandler{library: lib}
}

func (h *LibraryHandler) storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, client.ErrNotFound) {
		return response.NotFound(c, "Script not found")
	}
	return response.UpstreamError(c, err.Error())
}

// List handles GET /api/library/scripts
func (h *LibraryHandler) List(c *fiber.Ctx) error {
	if err := h.library.Refresh(c.Context()); err != nil {
		return h.storeError(c, err)
	}
	return response.OK(c, h.library.State().Files)
}

// Select handles GET /api/library/scripts/:name
func (h *LibraryHandler) Select(c *fiber.Ctx) error {
	if err := h.library.Select(c.Context(), c.Params("name")); err != nil {
		return h.storeError(c, err)
	}
	return response.OK(c, h.library.State())
}

// Delete handles DELETE /api/library/scripts/:name
func (h *LibraryHandler) Delete(c *fiber.Ctx) error {
	if err := h.library.Delete(c.Context(), c.Params("name")); err != nil {
		return h.storeError(c, err)
	}
	return response.NoContent(c)
}

// Render handles POST /api/library/scripts/:name/render. The script is
// selected first unless it already is.
func (h *LibraryHandler) Render(c *fiber.Ctx) error {
	name := c.Params("name")
	st := h.library.State()
	if st.SelectedFilename != name || st.Selected == nil {
		if err := h.library.Select(c.Context(), name); err != nil {
			return h.storeError(c, err)
		}
	}

	if err := h.library.Generate(c.Context()); err != nil {
		switch {
		case errors.Is(err, library.ErrNoSelection):
			return response.Conflict(c, "No script selected", nil)
		case errors.Is(err, library.ErrClosed):
			return response.ServiceError(c, err.Error())
		}
		// Submission failures are reported in the state.
		return response.OK(c, h.library.State())
	}
	return response.Accepted(c, h.library.State())
}

// Status handles GET /api/library/status
func (h *LibraryHandler) Status(c *fiber.Ctx) error {
	return response.OK(c, h.library.State())
}

// Reset handles POST /api/library/reset
func (h *LibraryHandler) Reset(c *fiber.Ctx) error {
	h.library.ResetGeneration()
	return response.OK(c, h.library.State())
}

package handler

import (
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/script"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/wizard"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/pkg/response"
)

const maxDocumentSize = 50 * 1024 * 1024 // 50MB

type tagsRequest struct {
	Grade   model.Grade   `json:"grade" validate:"required"`
	Subject model.Subject `json:"subject" validate:"required"`
}

type stepRequest struct {
	Step int `json:"step" validate:"required,min=1,max=4"`
}

type segmentPatchRequest struct {
	Speaker    *string `json:"speaker" validate:"omitempty,oneof=zundamon metan tsumugi"`
	Text       *string `json:"text" validate:"omitempty,max=2000"`
	VoiceText  *string `json:"text_for_voicevox" validate:"omitempty,max=2000"`
	Expression *string `json:"expression" validate:"omitempty,oneof=normal happy angry sad surprised"`
}

func (r *segmentPatchRequest) patch() script.Patch {
	p := script.Patch{Text: r.Text, VoiceText: r.VoiceText}
	if r.Speaker != nil {
		c := script.Character(*r.Speaker)
		p.Speaker = &c
	}
	if r.Expression != nil {
		e := script.Expression(*r.Expression)
		p.Expression = &e
	}
	return p
}

type saveRequest struct {
	Filename string `json:"filename" validate:"omitempty,max=200"`
}

type WizardHandler struct {
	manager   *wizard.Manager
	validator *validator.Validate
}

func NewWizardHandler(m *wizard.Manager, v *validator.Validate) *WizardHandler {
	return &WizardHandler{
		manager:   m,
		validator: v,
	}
}

// session resolves :id to a live session and writes the error response when
// there is none.
func (h *WizardHandler) session(c *fiber.Ctx) (*wizard.Session, error) {
	id := c.Params("id")
	s, err := h.manager.Get(id)
	if err == nil {
		return s, nil
	}
	if _, lookupErr := h.manager.Lookup(c.Context(), id); lookupErr == nil {
		return nil, response.ReadOnly(c, id)
	}
	return nil, response.NotFound(c, "Session not found")
}

// result writes the snapshot after an operation. Failures of remote calls
// are part of the snapshot, so they are not HTTP errors.
func result(c *fiber.Ctx, s *wizard.Session, err error) error {
	var (
		failure    *wizard.Failure
		transition *wizard.TransitionError
	)
	switch {
	case err == nil, errors.As(err, &failure):
		return response.OK(c, s.Snapshot())
	case errors.As(err, &transition):
		return response.InvalidTransition(c, int(transition.From), int(transition.To))
	case errors.Is(err, wizard.ErrInvalidStep), errors.Is(err, wizard.ErrInvalidTags):
		return response.ValidationError(c, err.Error(), nil)
	case errors.Is(err, wizard.ErrNoScript):
		return response.Conflict(c, "Session has no script", nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}

func segmentIndexes(c *fiber.Ctx) (int, int, error) {
	section, err := c.ParamsInt("section")
	if err != nil {
		return 0, 0, err
	}
	segment, err := c.ParamsInt("segment")
	if err != nil {
		return 0, 0, err
	}
	return section, segment, nil
}

// Create handles POST /api/wizard/sessions
func (h *WizardHandler) Create(c *fiber.Ctx) error {
	s := h.manager.Create()
	return response.Created(c, s.Snapshot())
}

// Get handles GET /api/wizard/sessions/:id
func (h *WizardHandler) Get(c *fiber.Ctx) error {
	snap, err := h.manager.Lookup(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, wizard.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, snap)
}

// Dispose handles DELETE /api/wizard/sessions/:id
func (h *WizardHandler) Dispose(c *fiber.Ctx) error {
	if err := h.manager.Dispose(c.Context(), c.Params("id")); err != nil {
		if errors.Is(err, wizard.ErrSessionNotFound) {
			return response.NotFound(c, "Session not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}

// SetTags handles PUT /api/wizard/sessions/:id/tags
func (h *WizardHandler) SetTags(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}

	var req tagsRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	return result(c, s, s.SetTags(req.Grade, req.Subject))
}

// Document handles POST /api/wizard/sessions/:id/document
func (h *WizardHandler) Document(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}
	if file.Size > maxDocumentSize {
		return response.ValidationError(c, "File size exceeds 50MB limit", map[string]interface{}{
			"maxSize":  maxDocumentSize,
			"fileSize": file.Size,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return response.ServiceError(c, "Failed to read file")
	}

	doc := wizard.Document{
		Name:        file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	}
	return result(c, s, s.SubmitDocument(c.Context(), doc))
}

// Script handles POST /api/wizard/sessions/:id/script
func (h *WizardHandler) Script(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	return result(c, s, s.RequestScript(c.Context()))
}

// Advance handles POST /api/wizard/sessions/:id/advance
func (h *WizardHandler) Advance(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}

	var req stepRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	return result(c, s, s.Advance(wizard.Step(req.Step)))
}

// Render handles POST /api/wizard/sessions/:id/render
func (h *WizardHandler) Render(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	if err := s.Advance(wizard.StepGenerating); err != nil {
		return result(c, s, err)
	}
	return result(c, s, s.StartRender(c.Context()))
}

// Cancel handles POST /api/wizard/sessions/:id/cancel
func (h *WizardHandler) Cancel(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	return result(c, s, s.Cancel())
}

// ResetTo handles POST /api/wizard/sessions/:id/reset-to
func (h *WizardHandler) ResetTo(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}

	var req stepRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	return result(c, s, s.ResetTo(wizard.Step(req.Step)))
}

// Reset handles POST /api/wizard/sessions/:id/reset
func (h *WizardHandler) Reset(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	s.Reset()
	return result(c, s, nil)
}

// Save handles POST /api/wizard/sessions/:id/save
func (h *WizardHandler) Save(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}

	var req saveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	resp, err := s.SaveScript(c.Context(), req.Filename)
	if err != nil {
		if errors.Is(err, wizard.ErrNoScript) {
			return response.Conflict(c, "Session has no script", nil)
		}
		return response.UpstreamError(c, err.Error())
	}
	return response.OK(c, resp)
}

// UpdateSegment handles PATCH /api/wizard/sessions/:id/sections/:section/segments/:segment
func (h *WizardHandler) UpdateSegment(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	section, segment, err := segmentIndexes(c)
	if err != nil {
		return response.ValidationError(c, "Section and segment must be integers", nil)
	}

	var req segmentPatchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	s.UpdateSegment(section, segment, req.patch())
	return result(c, s, nil)
}

// InsertSegment handles POST /api/wizard/sessions/:id/sections/:section/segments/:segment/after
func (h *WizardHandler) InsertSegment(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	section, segment, err := segmentIndexes(c)
	if err != nil {
		return response.ValidationError(c, "Section and segment must be integers", nil)
	}

	s.InsertSegmentAfter(section, segment)
	return result(c, s, nil)
}

// DeleteSegment handles DELETE /api/wizard/sessions/:id/sections/:section/segments/:segment
func (h *WizardHandler) DeleteSegment(c *fiber.Ctx) error {
	s, err := h.session(c)
	if s == nil {
		return err
	}
	section, segment, err := segmentIndexes(c)
	if err != nil {
		return response.ValidationError(c, "Section and segment must be integers", nil)
	}

	s.DeleteSegment(section, segment)
	return result(c, s, nil)
}

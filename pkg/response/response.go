package response

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Error codes
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeReadOnly          = "SESSION_READ_ONLY"
	CodeRateLimited       = "RATE_LIMITED"
	CodeServiceError      = "SERVICE_ERROR"
	CodeUpstreamError     = "UPSTREAM_ERROR"
)

// ErrorResponse is the body of every non-2xx studio response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

// Conflict reports a request that is invalid for the resource's current state.
func Conflict(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusConflict, CodeConflict, message, details)
}

// InvalidTransition rejects a wizard step change. from and to are step numbers.
func InvalidTransition(c *fiber.Ctx, from, to int) error {
	return Error(c, fiber.StatusConflict, CodeInvalidTransition, "Invalid step transition", fiber.Map{
		"from": from,
		"to":   to,
	})
}

// ReadOnly rejects a mutation of a session that was restored from the store.
func ReadOnly(c *fiber.Ctx, sessionID string) error {
	return Error(c, fiber.StatusConflict, CodeReadOnly, "Session was restored read-only", fiber.Map{
		"sessionId": sessionID,
	})
}

// RateLimited sets Retry-After when the remaining window is known.
func RateLimited(c *fiber.Ctx, retryAfter time.Duration) error {
	if retryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retryAfter.Seconds())))
	}
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

// UpstreamError reports a failure of the extraction, generation or render backend.
func UpstreamError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadGateway, CodeUpstreamError, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

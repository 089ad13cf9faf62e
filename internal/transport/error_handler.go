// Package transport holds the fiber plumbing for the worker's ops surface
// (health, metrics, dead-letter inspection).
package transport

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

const requestIDHeader = "X-Request-Id"

// ErrorHandler renders ops endpoint failures as a JSON envelope. Domain
// sentinels map to their HTTP status so repository lookups surface 404/400
// without fiber-specific error types; the notification request id, when the
// caller supplies one, is echoed for correlation with worker logs.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusForError(err)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}

		payload := fiber.Map{
			"error":  err.Error(),
			"status": code,
		}
		if requestID := strings.TrimSpace(c.Get(requestIDHeader)); requestID != "" {
			fields = append(fields, zap.String("requestId", requestID))
			payload["request_id"] = requestID
		}

		logger.Error("ops request failed", fields...)

		return c.Status(code).JSON(payload)
	}
}

func statusForError(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

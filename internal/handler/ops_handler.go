package handler

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

const defaultDeadLetterLimit = 100

// DeadLetterReader is the slice of the dead-letter archive the ops endpoints
// need for inspecting parked notifications before a manual requeue.
type DeadLetterReader interface {
	GetByRequestID(ctx context.Context, requestID string) ([]domain.DeadLetterRecord, error)
	List(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error)
}

// AttemptReader exposes the per-request delivery audit trail.
type AttemptReader interface {
	GetByRequestID(ctx context.Context, requestID string) ([]domain.DeliveryAttempt, error)
}

func RegisterOpsRoutes(app fiber.Router, deadLetters DeadLetterReader, attempts AttemptReader) {
	v1 := app.Group("/api/v1")
	v1.Get("/dead-letters", ListDeadLettersHandler(deadLetters))
	v1.Get("/dead-letters/:requestId", GetDeadLettersHandler(deadLetters))
	v1.Get("/attempts/:requestId", GetAttemptsHandler(attempts))
}

func ListDeadLettersHandler(deadLetters DeadLetterReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := defaultDeadLetterLimit
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				return fmt.Errorf("limit %q: %w", raw, domain.ErrValidation)
			}
			limit = parsed
		}

		records, err := deadLetters.List(c.Context(), limit)
		if err != nil {
			return fmt.Errorf("list dead letters: %w", err)
		}

		return c.JSON(fiber.Map{
			"count":        len(records),
			"dead_letters": records,
		})
	}
}

func GetDeadLettersHandler(deadLetters DeadLetterReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Params("requestId")

		records, err := deadLetters.GetByRequestID(c.Context(), requestID)
		if err != nil {
			return fmt.Errorf("dead letters for %s: %w", requestID, err)
		}
		if len(records) == 0 {
			return fmt.Errorf("dead letters for %s: %w", requestID, domain.ErrNotFound)
		}

		return c.JSON(fiber.Map{
			"request_id":   requestID,
			"dead_letters": records,
		})
	}
}

func GetAttemptsHandler(attempts AttemptReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Params("requestId")

		trail, err := attempts.GetByRequestID(c.Context(), requestID)
		if err != nil {
			return fmt.Errorf("attempts for %s: %w", requestID, err)
		}
		if len(trail) == 0 {
			return fmt.Errorf("attempts for %s: %w", requestID, domain.ErrNotFound)
		}

		return c.JSON(fiber.Map{
			"request_id": requestID,
			"attempts":   trail,
		})
	}
}

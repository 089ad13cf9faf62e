package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

// NotificationMessage is the broker payload for a single delivery request.
// RequestID is the producer-supplied deduplication key; the same id may arrive
// more than once under at-least-once broker semantics.
type NotificationMessage struct {
	RequestID    string          `json:"request_id"`
	Type         domain.Channel  `json:"notification_type"`
	UserID       string          `json:"user_id"`
	TemplateCode string          `json:"template_code"`
	Variables    map[string]any  `json:"variables,omitempty"`
	Priority     domain.Priority `json:"priority,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// Validate checks the structural fields. A message failing validation is
// malformed and must be dead-lettered, never retried.
func (m NotificationMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return fmt.Errorf("%w: request_id is required", domain.ErrValidation)
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("%w: unknown notification_type %q", domain.ErrValidation, strings.ToLower(m.Type.String()))
	}
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(m.TemplateCode) == "" {
		return fmt.Errorf("%w: template_code is required", domain.ErrValidation)
	}
	if m.Priority != 0 && !m.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %d", domain.ErrValidation, m.Priority)
	}
	return nil
}

// EffectivePriority returns the message priority, defaulting to normal when
// the producer omitted the field.
func (m NotificationMessage) EffectivePriority() domain.Priority {
	if m.Priority == 0 {
		return domain.PriorityNormal
	}
	return m.Priority
}

// DeadLetterEnvelope is the wire contract for dead-letter queues.
type DeadLetterEnvelope struct {
	OriginalMessage json.RawMessage `json:"original_message"`
	Error           string          `json:"error"`
	AttemptCount    int             `json:"attempt_count"`
	FailedAt        time.Time       `json:"failed_at"`
}

package repository

import (
	"time"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	RequestID     string         `gorm:"type:varchar(64);not null"`
	Channel       domain.Channel `gorm:"type:varchar(10);not null"`
	AttemptNumber int            `gorm:"not null"`
	StatusCode    *int           `gorm:"type:int"`
	ResponseBody  *string        `gorm:"type:text"`
	Error         *string        `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// DeadLetterModel is the persistence model for dead_letters.
type DeadLetterModel struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	RequestID    string         `gorm:"type:varchar(64)"`
	Channel      domain.Channel `gorm:"type:varchar(10);not null"`
	Payload      []byte         `gorm:"type:bytea;not null"`
	Reason       string         `gorm:"type:text;not null"`
	AttemptCount int            `gorm:"not null;default:0"`
	FailedAt     time.Time      `gorm:"type:timestamptz;not null"`
	CreatedAt    time.Time
}

func (DeadLetterModel) TableName() string {
	return "dead_letters"
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		RequestID:     a.RequestID,
		Channel:       a.Channel,
		AttemptNumber: a.AttemptNumber,
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		RequestID:     m.RequestID,
		Channel:       m.Channel,
		AttemptNumber: m.AttemptNumber,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

func deadLetterModelFromDomain(r *domain.DeadLetterRecord) *DeadLetterModel {
	if r == nil {
		return nil
	}

	return &DeadLetterModel{
		ID:           r.ID,
		RequestID:    r.RequestID,
		Channel:      r.Channel,
		Payload:      r.Payload,
		Reason:       r.Reason,
		AttemptCount: r.AttemptCount,
		FailedAt:     r.FailedAt,
	}
}

func deadLetterModelToDomain(m *DeadLetterModel) *domain.DeadLetterRecord {
	if m == nil {
		return nil
	}

	return &domain.DeadLetterRecord{
		ID:           m.ID,
		RequestID:    m.RequestID,
		Channel:      m.Channel,
		Payload:      m.Payload,
		Reason:       m.Reason,
		AttemptCount: m.AttemptCount,
		FailedAt:     m.FailedAt,
	}
}

package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
	"gorm.io/gorm"
)

type DeadLetterRepository interface {
	Create(ctx context.Context, record *domain.DeadLetterRecord) error
	GetByRequestID(ctx context.Context, requestID string) ([]domain.DeadLetterRecord, error)
	List(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error)
}

type GormDeadLetterRepo struct {
	db *gorm.DB
}

func NewGormDeadLetterRepo(db *gorm.DB) *GormDeadLetterRepo {
	return &GormDeadLetterRepo{db: db}
}

func (r *GormDeadLetterRepo) Create(ctx context.Context, record *domain.DeadLetterRecord) error {
	model := deadLetterModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if record != nil {
		*record = *deadLetterModelToDomain(model)
	}
	return nil
}

func (r *GormDeadLetterRepo) GetByRequestID(ctx context.Context, requestID string) ([]domain.DeadLetterRecord, error) {
	var models []DeadLetterModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("failed_at ASC").
		Find(&models).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	records := make([]domain.DeadLetterRecord, 0, len(models))
	for i := range models {
		records = append(records, *deadLetterModelToDomain(&models[i]))
	}

	return records, nil
}

func (r *GormDeadLetterRepo) List(ctx context.Context, limit int) ([]domain.DeadLetterRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	var models []DeadLetterModel
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.DeadLetterRecord, 0, len(models))
	for i := range models {
		records = append(records, *deadLetterModelToDomain(&models[i]))
	}

	return records, nil
}

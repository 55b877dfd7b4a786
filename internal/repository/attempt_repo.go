package repository

import (
	"context"

	"github.com/Cerjho/IoT-Attendance-System-sub001/internal/domain"
	"gorm.io/gorm"
)

type SyncAttemptRepository interface {
	Create(ctx context.Context, a *domain.SyncAttempt) error
	GetByRecordID(ctx context.Context, recordLocalID uint64) ([]domain.SyncAttempt, error)
}

type GormSyncAttemptRepo struct {
	db *gorm.DB
}

func NewGormSyncAttemptRepo(db *gorm.DB) *GormSyncAttemptRepo {
	return &GormSyncAttemptRepo{db: db}
}

func (r *GormSyncAttemptRepo) Create(ctx context.Context, a *domain.SyncAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

func (r *GormSyncAttemptRepo) GetByRecordID(ctx context.Context, recordLocalID uint64) ([]domain.SyncAttempt, error) {
	var models []SyncAttemptModel
	err := r.db.WithContext(ctx).
		Where("record_local_id = ?", recordLocalID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.SyncAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}
	return attempts, nil
}

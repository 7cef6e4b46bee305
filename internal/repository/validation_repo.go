package repository

import (
	"context"

	"gorm.io/gorm"

	"alpatrade/internal/model"
	"alpatrade/pkg/utils"
)

type ValidationRepository interface {
	Create(ctx context.Context, verdict *model.ValidationVerdict, opts ...utils.DBOption) error
	GetByRunID(ctx context.Context, runID string) ([]model.ValidationVerdict, error)
	GetLatest(ctx context.Context, runID string) (*model.ValidationVerdict, error)
}

type validationRepository struct {
	db *gorm.DB
}

func NewValidationRepository(db *gorm.DB) ValidationRepository {
	return &validationRepository{db: db}
}

func (r *validationRepository) Create(ctx context.Context, verdict *model.ValidationVerdict, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(verdict).Error
}

func (r *validationRepository) GetByRunID(ctx context.Context, runID string) ([]model.ValidationVerdict, error) {
	var verdicts []model.ValidationVerdict
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&verdicts).Error; err != nil {
		return nil, err
	}
	return verdicts, nil
}

func (r *validationRepository) GetLatest(ctx context.Context, runID string) (*model.ValidationVerdict, error) {
	var verdict model.ValidationVerdict
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at DESC").
		First(&verdict).Error; err != nil {
		return nil, err
	}
	return &verdict, nil
}

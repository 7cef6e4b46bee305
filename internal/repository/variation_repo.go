package repository

import (
	"context"

	"gorm.io/gorm"

	"alpatrade/internal/model"
	"alpatrade/pkg/utils"
)

type VariationRepository interface {
	CreateBatch(ctx context.Context, variations []model.ParameterVariation, opts ...utils.DBOption) error
	GetByRunID(ctx context.Context, runID string) ([]model.ParameterVariation, error)
	GetBest(ctx context.Context, runID string) (*model.ParameterVariation, error)
}

type variationRepository struct {
	db *gorm.DB
}

func NewVariationRepository(db *gorm.DB) VariationRepository {
	return &variationRepository{db: db}
}

func (r *variationRepository) CreateBatch(ctx context.Context, variations []model.ParameterVariation, opts ...utils.DBOption) error {
	if len(variations) == 0 {
		return nil
	}
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).CreateInBatches(variations, 100).Error
}

func (r *variationRepository) GetByRunID(ctx context.Context, runID string) ([]model.ParameterVariation, error) {
	var variations []model.ParameterVariation
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("variation_index ASC").
		Find(&variations).Error; err != nil {
		return nil, err
	}
	return variations, nil
}

func (r *variationRepository) GetBest(ctx context.Context, runID string) (*model.ParameterVariation, error) {
	var variation model.ParameterVariation
	if err := r.db.WithContext(ctx).
		Where("run_id = ? AND is_best = ?", runID, true).
		First(&variation).Error; err != nil {
		return nil, err
	}
	return &variation, nil
}

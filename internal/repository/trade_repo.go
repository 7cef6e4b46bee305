package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"alpatrade/internal/model"
	"alpatrade/pkg/utils"
)

type GetTradesParam struct {
	RunID     *string
	TradeType *string
	Symbol    *string
	OpenOnly  bool
	ExitSince *time.Time
}

type TradeRepository interface {
	CreateBatch(ctx context.Context, trades []model.Trade, opts ...utils.DBOption) error
	Get(ctx context.Context, param GetTradesParam) ([]model.Trade, error)
	Update(ctx context.Context, trade model.Trade, opts ...utils.DBOption) error
	DeleteByRunID(ctx context.Context, runID string, opts ...utils.DBOption) error
}

type tradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository(db *gorm.DB) TradeRepository {
	return &tradeRepository{db: db}
}

func (r *tradeRepository) CreateBatch(ctx context.Context, trades []model.Trade, opts ...utils.DBOption) error {
	if len(trades) == 0 {
		return nil
	}
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).CreateInBatches(trades, 500).Error
}

func (r *tradeRepository) Get(ctx context.Context, param GetTradesParam) ([]model.Trade, error) {
	var trades []model.Trade

	qFilter := []string{}
	qFilterParam := []interface{}{}

	if param.RunID != nil {
		qFilter = append(qFilter, "run_id = ?")
		qFilterParam = append(qFilterParam, *param.RunID)
	}
	if param.TradeType != nil {
		qFilter = append(qFilter, "trade_type = ?")
		qFilterParam = append(qFilterParam, *param.TradeType)
	}
	if param.Symbol != nil {
		qFilter = append(qFilter, "symbol = ?")
		qFilterParam = append(qFilterParam, *param.Symbol)
	}
	if param.OpenOnly {
		qFilter = append(qFilter, "exit_time IS NULL")
	}
	if param.ExitSince != nil {
		qFilter = append(qFilter, "exit_time >= ?")
		qFilterParam = append(qFilterParam, *param.ExitSince)
	}

	q := r.db.WithContext(ctx).Order("entry_time ASC")
	if len(qFilter) > 0 {
		q = q.Where(strings.Join(qFilter, " AND "), qFilterParam...)
	}

	if err := q.Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

func (r *tradeRepository) Update(ctx context.Context, trade model.Trade, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Updates(&trade).Error
}

func (r *tradeRepository) DeleteByRunID(ctx context.Context, runID string, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Where("run_id = ?", runID).
		Delete(&model.Trade{}).Error
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"alpatrade/internal/dto"
	"alpatrade/internal/model"
	"alpatrade/pkg/utils"
)

type GetRunsParam struct {
	RunID  *string
	Mode   *string
	Status *string
	Limit  int
}

type RunRepository interface {
	Create(ctx context.Context, run *model.Run, opts ...utils.DBOption) error
	Get(ctx context.Context, param GetRunsParam) ([]model.Run, error)
	GetByRunID(ctx context.Context, runID string) (*model.Run, error)
	Update(ctx context.Context, param model.UpdateRunParam, opts ...utils.DBOption) error
}

type runRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(ctx context.Context, run *model.Run, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(run).Error
}

func (r *runRepository) Get(ctx context.Context, param GetRunsParam) ([]model.Run, error) {
	var runs []model.Run

	qFilter := []string{}
	qFilterParam := []interface{}{}

	if param.RunID != nil {
		qFilter = append(qFilter, "run_id = ?")
		qFilterParam = append(qFilterParam, *param.RunID)
	}
	if param.Mode != nil {
		qFilter = append(qFilter, "mode = ?")
		qFilterParam = append(qFilterParam, *param.Mode)
	}
	if param.Status != nil {
		qFilter = append(qFilter, "status = ?")
		qFilterParam = append(qFilterParam, *param.Status)
	}

	q := r.db.WithContext(ctx).Order("started_at DESC")
	if len(qFilter) > 0 {
		q = q.Where(strings.Join(qFilter, " AND "), qFilterParam...)
	}
	if param.Limit > 0 {
		q = q.Limit(param.Limit)
	}

	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *runRepository) GetByRunID(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	if err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: run %s not found", dto.ErrInvalidParameter, runID)
		}
		return nil, err
	}
	return &run, nil
}

func (r *runRepository) Update(ctx context.Context, param model.UpdateRunParam, opts ...utils.DBOption) error {
	if param.Filter.RunID == nil {
		return fmt.Errorf("no filter provided")
	}

	values := map[string]interface{}{}
	if param.Value.Status != nil {
		values["status"] = *param.Value.Status
	}
	if param.Value.StrategySlug != nil {
		values["strategy_slug"] = *param.Value.StrategySlug
	}
	if param.Value.Result != nil {
		values["result"] = param.Value.Result
	}
	if param.Value.TotalPnL != nil {
		values["total_pnl"] = *param.Value.TotalPnL
	}
	if param.Value.TotalReturn != nil {
		values["total_return"] = *param.Value.TotalReturn
	}
	if param.Value.SharpeRatio != nil {
		values["sharpe_ratio"] = *param.Value.SharpeRatio
	}
	if param.Value.WinRate != nil {
		values["win_rate"] = *param.Value.WinRate
	}
	if param.Value.TotalTrades != nil {
		values["total_trades"] = *param.Value.TotalTrades
	}
	if param.Value.ErrorMessage != nil {
		values["error_message"] = *param.Value.ErrorMessage
	}
	if param.Value.CompletedAt != nil {
		values["completed_at"] = *param.Value.CompletedAt
	}
	if len(values) == 0 {
		return nil
	}

	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).
		Model(&model.Run{}).
		Where("run_id = ?", *param.Filter.RunID).
		Updates(values).Error
}

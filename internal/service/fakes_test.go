package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alpatrade/config"
	"alpatrade/internal/dto"
	"alpatrade/internal/model"
	"alpatrade/internal/repository"
	"alpatrade/pkg/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		Backtest: config.Backtest{
			InitialCapital:  10000,
			MaxConcurrency:  4,
			LookbackPeriods: 3,
		},
		PaperTrading: config.PaperTrading{
			PollInterval:       time.Hour,
			Duration:           time.Millisecond,
			CapitalPerTrade:    1000,
			MaxBuyingPowerFrac: 0.05,
		},
		Validation: config.Validation{
			MaxIterations:  10,
			PriceTolerance: 0.01,
		},
		Orchestrator: config.OrchestratorConfig{
			StageTimeout:        5 * time.Second,
			ValidationCron:      "*/30 * * * *",
			ReconcileWindowDays: 7,
		},
	}
}

type fakeMarketDataRepo struct {
	bars        map[string][]dto.Bar
	prices      map[string]float64
	barsErr     map[string]error
	defaultErr  error
	latestCalls int
}

func (f *fakeMarketDataRepo) GetBars(_ context.Context, param dto.GetBarsParam) ([]dto.Bar, error) {
	if err, ok := f.barsErr[param.Symbol]; ok {
		return nil, err
	}
	bars, ok := f.bars[param.Symbol]
	if !ok {
		if f.defaultErr != nil {
			return nil, f.defaultErr
		}
		return nil, fmt.Errorf("%w: %s", dto.ErrDataUnavailable, param.Symbol)
	}
	var out []dto.Bar
	for _, b := range bars {
		if !b.Timestamp.Before(param.Start) && !b.Timestamp.After(param.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeMarketDataRepo) GetLatestPrice(_ context.Context, symbol string) (float64, error) {
	f.latestCalls++
	price, ok := f.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s", dto.ErrDataUnavailable, symbol)
	}
	return price, nil
}

type fakeBrokerRepo struct {
	mu        sync.Mutex
	account   dto.Account
	positions []dto.Position
	fills     []dto.Fill
	orders    []dto.OrderRequest
	orderErr  error
	fillsErr  error
	fillPrice float64
}

func (f *fakeBrokerRepo) GetAccount(context.Context) (*dto.Account, error) {
	account := f.account
	return &account, nil
}

func (f *fakeBrokerRepo) GetPositions(context.Context) ([]dto.Position, error) {
	return f.positions, nil
}

func (f *fakeBrokerRepo) PlaceOrder(_ context.Context, req dto.OrderRequest, _ bool) (*dto.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, req)
	return &dto.Order{
		ID:          fmt.Sprintf("order-%d", len(f.orders)),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Qty:         float64(req.Qty),
		FilledPrice: f.fillPrice,
		Status:      "filled",
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeBrokerRepo) GetOrder(_ context.Context, orderID string) (*dto.Order, error) {
	return &dto.Order{ID: orderID, Status: "filled"}, nil
}

func (f *fakeBrokerRepo) ClosePosition(_ context.Context, symbol string) (*dto.Order, error) {
	return &dto.Order{Symbol: symbol, Status: "filled"}, nil
}

func (f *fakeBrokerRepo) GetFills(context.Context, time.Time) ([]dto.Fill, error) {
	if f.fillsErr != nil {
		return nil, f.fillsErr
	}
	return f.fills, nil
}

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[string]*model.Run
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]*model.Run)}
}

func (f *fakeRunRepo) Create(_ context.Context, run *model.Run, _ ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *run
	f.runs[run.RunID] = &stored
	return nil
}

func (f *fakeRunRepo) Get(_ context.Context, param repository.GetRunsParam) ([]model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Run
	for _, run := range f.runs {
		if param.RunID != nil && run.RunID != *param.RunID {
			continue
		}
		if param.Mode != nil && run.Mode != *param.Mode {
			continue
		}
		if param.Status != nil && run.Status != *param.Status {
			continue
		}
		out = append(out, *run)
	}
	if param.Limit > 0 && len(out) > param.Limit {
		out = out[:param.Limit]
	}
	return out, nil
}

func (f *fakeRunRepo) GetByRunID(_ context.Context, runID string) (*model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %s not found", dto.ErrInvalidParameter, runID)
	}
	copied := *run
	return &copied, nil
}

func (f *fakeRunRepo) Update(_ context.Context, param model.UpdateRunParam, _ ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if param.Filter.RunID == nil {
		return fmt.Errorf("no filter provided")
	}
	run, ok := f.runs[*param.Filter.RunID]
	if !ok {
		return nil
	}
	v := param.Value
	if v.Status != nil {
		run.Status = *v.Status
	}
	if v.StrategySlug != nil {
		run.StrategySlug = *v.StrategySlug
	}
	if v.Result != nil {
		run.Result = v.Result
	}
	if v.TotalPnL != nil {
		run.TotalPnL = *v.TotalPnL
	}
	if v.TotalReturn != nil {
		run.TotalReturn = *v.TotalReturn
	}
	if v.SharpeRatio != nil {
		run.SharpeRatio = *v.SharpeRatio
	}
	if v.WinRate != nil {
		run.WinRate = *v.WinRate
	}
	if v.TotalTrades != nil {
		run.TotalTrades = *v.TotalTrades
	}
	if v.ErrorMessage != nil {
		run.ErrorMessage = v.ErrorMessage
	}
	if v.CompletedAt != nil {
		run.CompletedAt = v.CompletedAt
	}
	return nil
}

type fakeTradeRepo struct {
	mu     sync.Mutex
	trades []model.Trade
}

func (f *fakeTradeRepo) CreateBatch(_ context.Context, trades []model.Trade, _ ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, trades...)
	return nil
}

func (f *fakeTradeRepo) Get(_ context.Context, param repository.GetTradesParam) ([]model.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Trade
	for _, t := range f.trades {
		if param.RunID != nil && t.RunID != *param.RunID {
			continue
		}
		if param.TradeType != nil && t.TradeType != *param.TradeType {
			continue
		}
		if param.Symbol != nil && t.Symbol != *param.Symbol {
			continue
		}
		if param.OpenOnly && t.ExitTime != nil {
			continue
		}
		if param.ExitSince != nil && (t.ExitTime == nil || t.ExitTime.Before(*param.ExitSince)) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeTradeRepo) Update(_ context.Context, trade model.Trade, _ ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.trades {
		if f.trades[i].ID == trade.ID {
			f.trades[i] = trade
			return nil
		}
	}
	return nil
}

func (f *fakeTradeRepo) DeleteByRunID(_ context.Context, runID string, _ ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.trades[:0]
	for _, t := range f.trades {
		if t.RunID != runID {
			kept = append(kept, t)
		}
	}
	f.trades = kept
	return nil
}

type fakeVariationRepo struct {
	mu         sync.Mutex
	variations []model.ParameterVariation
}

func (f *fakeVariationRepo) CreateBatch(_ context.Context, variations []model.ParameterVariation, _ ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variations = append(f.variations, variations...)
	return nil
}

func (f *fakeVariationRepo) GetByRunID(_ context.Context, runID string) ([]model.ParameterVariation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ParameterVariation
	for _, v := range f.variations {
		if v.RunID == runID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVariationRepo) GetBest(_ context.Context, runID string) (*model.ParameterVariation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.variations {
		if v.RunID == runID && v.IsBest {
			copied := v
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("no best variation for run %s", runID)
}

type fakeValidationRepo struct {
	mu       sync.Mutex
	verdicts []model.ValidationVerdict
}

func (f *fakeValidationRepo) Create(_ context.Context, verdict *model.ValidationVerdict, _ ...utils.DBOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts = append(f.verdicts, *verdict)
	return nil
}

func (f *fakeValidationRepo) GetByRunID(_ context.Context, runID string) ([]model.ValidationVerdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ValidationVerdict
	for _, v := range f.verdicts {
		if v.RunID == runID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeValidationRepo) GetLatest(_ context.Context, runID string) (*model.ValidationVerdict, error) {
	verdicts, _ := f.GetByRunID(context.Background(), runID)
	if len(verdicts) == 0 {
		return nil, fmt.Errorf("no verdicts for run %s", runID)
	}
	latest := verdicts[len(verdicts)-1]
	return &latest, nil
}

type fakeAdvisorRepo struct {
	enabled   bool
	narrative string
	err       error
}

func (f *fakeAdvisorRepo) Enabled() bool { return f.enabled }

func (f *fakeAdvisorRepo) NarrateRun(context.Context, dto.RunSummaryRow, *dto.ValidationVerdict) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.narrative, nil
}

type fakeUnitOfWork struct{}

func (fakeUnitOfWork) Run(fn func(opts ...utils.DBOption) error) error {
	return fn()
}

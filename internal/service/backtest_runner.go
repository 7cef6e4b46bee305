package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"alpatrade/config"
	"alpatrade/internal/dto"
	"alpatrade/internal/model"
	"alpatrade/internal/repository"
	"alpatrade/internal/strategy"
	"alpatrade/pkg/common"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

// BacktestRunner sweeps a parameter grid over historical bars and persists
// the ranked outcome.
type BacktestRunner interface {
	Run(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResult, error)
}

type backtestRunner struct {
	cfg            *config.Config
	log            *logger.Logger
	engine         *strategy.Engine
	marketDataRepo repository.MarketDataRepository
	runRepo        repository.RunRepository
	variationRepo  repository.VariationRepository
	tradeRepo      repository.TradeRepository
	uow            repository.UnitOfWork
}

func NewBacktestRunner(
	cfg *config.Config,
	log *logger.Logger,
	engine *strategy.Engine,
	marketDataRepo repository.MarketDataRepository,
	runRepo repository.RunRepository,
	variationRepo repository.VariationRepository,
	tradeRepo repository.TradeRepository,
	uow repository.UnitOfWork,
) BacktestRunner {
	return &backtestRunner{
		cfg:            cfg,
		log:            log,
		engine:         engine,
		marketDataRepo: marketDataRepo,
		runRepo:        runRepo,
		variationRepo:  variationRepo,
		tradeRepo:      tradeRepo,
		uow:            uow,
	}
}

func (s *backtestRunner) Run(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResult, error) {
	s.applyDefaults(&req)

	if err := s.ensureRun(ctx, req); err != nil {
		return nil, err
	}

	combos, err := s.expandCombinations(req)
	if err != nil {
		s.failRun(ctx, req.RunID, err)
		return nil, err
	}

	series, skipped, err := s.fetchSeries(ctx, req)
	if err != nil {
		s.failRun(ctx, req.RunID, err)
		return nil, err
	}
	symbols := make([]string, 0, len(req.Symbols))
	for _, sym := range req.Symbols {
		if _, ok := series.Bars[sym]; ok {
			symbols = append(symbols, sym)
		}
	}

	pdtEnabled := req.InitialCapital < common.PDTEquityThreshold
	if req.PDTProtection != nil {
		pdtEnabled = *req.PDTProtection
	}
	lookbackToken := lookbackSlugToken(req.StartDate, req.EndDate)

	variations := make([]dto.VariationResult, len(combos))
	trades := make([][]dto.Trade, len(combos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Backtest.MaxConcurrency)
	for i, combo := range combos {
		g.Go(func() error {
			variation, tr := s.simulateVariation(gctx, req, symbols, series, combo, i, pdtEnabled, lookbackToken)
			merged := make([]string, 0, len(skipped)+len(variation.SymbolsSkipped))
			merged = append(merged, skipped...)
			merged = append(merged, variation.SymbolsSkipped...)
			variation.SymbolsSkipped = merged
			variations[i] = variation
			trades[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.failRun(ctx, req.RunID, err)
		return nil, err
	}

	bestIdx, ok := rankVariations(variations)
	if !ok {
		err := fmt.Errorf("%w: all parameter combinations failed", dto.ErrInvalidParameter)
		s.failRun(ctx, req.RunID, err)
		return nil, err
	}
	variations[bestIdx].IsBest = true
	best := variations[bestIdx]
	bestTrades := trades[bestIdx]

	if err := s.persistResult(ctx, req, variations, best, bestTrades); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "backtest run completed",
		logger.StringField("run_id", req.RunID),
		logger.IntField("variations", len(variations)),
		logger.StringField("best_slug", best.Slug),
		logger.Float64Field("best_sharpe", best.Metrics.SharpeRatio))

	return &dto.BacktestResult{
		RunID:           req.RunID,
		Strategy:        req.Strategy,
		TotalVariations: len(variations),
		Best:            &best,
		Variations:      variations,
		Trades:          bestTrades,
	}, nil
}

func (s *backtestRunner) applyDefaults(req *dto.BacktestRequest) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = s.cfg.Backtest.InitialCapital
	}
	if req.EndDate.IsZero() {
		req.EndDate = time.Now().UTC()
	}
	if req.StartDate.IsZero() {
		req.StartDate = req.EndDate.AddDate(0, -1, 0)
	}
	if req.Strategy == dto.StrategyBuyTheDip && req.Params == nil && req.Grid.Size() == 0 {
		req.Grid = dto.DefaultGrid()
	}
}

// ensureRun creates the run record when the runner is invoked standalone. An
// orchestrated run already exists and is left alone.
func (s *backtestRunner) ensureRun(ctx context.Context, req dto.BacktestRequest) error {
	if _, err := s.runRepo.GetByRunID(ctx, req.RunID); err == nil {
		return nil
	}

	symbolsJSON, _ := json.Marshal(req.Symbols)
	configJSON, _ := json.Marshal(req)
	return s.runRepo.Create(ctx, &model.Run{
		RunID:     req.RunID,
		Mode:      dto.ModeBacktest,
		Strategy:  req.Strategy,
		Status:    dto.RunStatusRunning,
		Symbols:   datatypes.JSON(symbolsJSON),
		Config:    datatypes.JSON(configJSON),
		StartedAt: time.Now().UTC(),
	})
}

func (s *backtestRunner) failRun(ctx context.Context, runID string, cause error) {
	s.log.ErrorContext(ctx, "backtest run failed",
		logger.StringField("run_id", runID), logger.ErrorField(cause))
	if err := s.runRepo.Update(ctx, model.UpdateRunParam{
		Filter: model.UpdateRunFilterParam{RunID: &runID},
		Value: model.UpdateRunValueParam{
			Status:       utils.ToPointer(dto.RunStatusFailed),
			ErrorMessage: utils.ToPointer(cause.Error()),
			CompletedAt:  utils.ToPointer(time.Now().UTC()),
		},
	}); err != nil {
		s.log.ErrorContext(ctx, "failed to mark run failed", logger.ErrorField(err))
	}
}

// expandCombinations turns the declarative grid into its Cartesian product.
// Expansion order is stable so variation indexes are reproducible.
func (s *backtestRunner) expandCombinations(req dto.BacktestRequest) ([]dto.StrategyParams, error) {
	if req.Params != nil {
		if err := req.Params.Validate(); err != nil {
			return nil, err
		}
		return []dto.StrategyParams{*req.Params}, nil
	}
	if req.Strategy != dto.StrategyBuyTheDip {
		return nil, fmt.Errorf("%w: strategy %s requires explicit params, grids sweep %s only",
			dto.ErrInvalidParameter, req.Strategy, dto.StrategyBuyTheDip)
	}
	if req.Grid.Size() == 0 {
		return nil, fmt.Errorf("%w: empty parameter grid", dto.ErrInvalidParameter)
	}

	combos := make([]dto.StrategyParams, 0, req.Grid.Size())
	for _, dip := range req.Grid.DipThreshold {
		for _, tp := range req.Grid.TakeProfit {
			for _, sl := range req.Grid.StopLoss {
				for _, hold := range req.Grid.HoldDays {
					for _, size := range req.Grid.PositionSize {
						combos = append(combos, dto.StrategyParams{
							BuyTheDip: &dto.BuyTheDipParams{
								DipThreshold:    dip,
								TakeProfitPct:   tp,
								StopLossPct:     sl,
								HoldDays:        hold,
								PositionSizePct: size,
								IntradayExit:    req.IntradayExit,
							},
						})
					}
				}
			}
		}
	}
	return combos, nil
}

// fetchSeries loads daily bars per symbol, padded backward so rolling windows
// have history at the range start. Symbols without data are skipped; only
// total failure is an error.
func (s *backtestRunner) fetchSeries(ctx context.Context, req dto.BacktestRequest) (dto.PriceSeries, []string, error) {
	series := dto.PriceSeries{
		Bars:      make(map[string][]dto.Bar),
		Intraday:  make(map[string][]dto.Bar),
		Auxiliary: make(map[string][]dto.Bar),
	}
	padStart := req.StartDate.AddDate(0, 0, -2*s.cfg.Backtest.LookbackPeriods)

	var skipped []string
	for _, sym := range req.Symbols {
		bars, err := s.marketDataRepo.GetBars(ctx, dto.GetBarsParam{
			Symbol:   sym,
			Start:    padStart,
			End:      req.EndDate,
			Interval: "1d",
		})
		if err != nil || len(bars) == 0 {
			s.log.WarnContext(ctx, "no bars for symbol, excluding from aggregate",
				logger.StringField("symbol", sym), logger.ErrorField(err))
			skipped = append(skipped, sym)
			continue
		}
		series.Bars[sym] = bars

		if req.IntradayExit {
			intraday, err := s.marketDataRepo.GetBars(ctx, dto.GetBarsParam{
				Symbol:   sym,
				Start:    req.StartDate,
				End:      req.EndDate,
				Interval: "5m",
			})
			if err != nil {
				s.log.WarnContext(ctx, "no intraday bars, daily resolution fallback",
					logger.StringField("symbol", sym), logger.ErrorField(err))
			} else {
				series.Intraday[sym] = intraday
			}
		}
	}

	if req.Strategy == dto.StrategyVIX {
		vixBars, err := s.marketDataRepo.GetBars(ctx, dto.GetBarsParam{
			Symbol:   strategy.VIXSymbol,
			Start:    padStart,
			End:      req.EndDate,
			Interval: "1d",
		})
		if err != nil {
			return series, skipped, fmt.Errorf("%w: fear index series", dto.ErrDataUnavailable)
		}
		series.Auxiliary[strategy.VIXSymbol] = vixBars
	}

	if len(series.Bars) == 0 {
		return series, skipped, fmt.Errorf("%w: no symbol returned bars", dto.ErrDataUnavailable)
	}
	return series, skipped, nil
}

// simulateVariation runs one parameter combination. Each combination owns a
// fresh compliance tracker so combinations stay independent.
func (s *backtestRunner) simulateVariation(
	ctx context.Context,
	req dto.BacktestRequest,
	symbols []string,
	series dto.PriceSeries,
	params dto.StrategyParams,
	index int,
	pdtEnabled bool,
	lookbackToken string,
) (dto.VariationResult, []dto.Trade) {
	variation := dto.VariationResult{
		RunID:          req.RunID,
		VariationIndex: index,
		Params:         params,
		Slug:           strategy.BuildSlug(params, lookbackToken),
	}

	var pdt *strategy.PDTTracker
	if pdtEnabled {
		pdt = strategy.NewPDTTracker()
	}

	result, err := s.engine.Simulate(ctx, strategy.SimulationInput{
		Symbols:        symbols,
		Series:         series,
		Start:          req.StartDate,
		End:            req.EndDate,
		InitialCapital: req.InitialCapital,
		Params:         params,
		PDT:            pdt,
		IncludeTAF:     s.cfg.Backtest.IncludeTAFFees,
		IncludeCAT:     s.cfg.Backtest.IncludeCATFees,
		ExtendedHours:  req.ExtendedHours,
		ExitPolicy:     req.ExitPolicy,
		Lookback:       s.cfg.Backtest.LookbackPeriods,
	})
	if err != nil {
		s.log.WarnContext(ctx, "parameter combination skipped",
			logger.StringField("run_id", req.RunID),
			logger.IntField("variation", index),
			logger.ErrorField(err))
		variation.Err = err.Error()
		return variation, nil
	}

	variation.Metrics = result.Metrics
	variation.SymbolsSkipped = result.SymbolsSkipped

	tagged := make([]dto.Trade, len(result.Trades))
	for i, t := range result.Trades {
		t.RunID = req.RunID
		t.TradeType = dto.TradeTypeBacktest
		tagged[i] = t
	}
	return variation, tagged
}

// rankVariations orders by Sharpe, then total return, then lower drawdown,
// and returns the index of the winner. Failed combinations never win.
func rankVariations(variations []dto.VariationResult) (int, bool) {
	order := make([]int, 0, len(variations))
	for i, v := range variations {
		if v.Err == "" {
			order = append(order, i)
		}
	}
	if len(order) == 0 {
		return 0, false
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := variations[order[a]], variations[order[b]]
		if va.Metrics.SharpeRatio != vb.Metrics.SharpeRatio {
			return va.Metrics.SharpeRatio > vb.Metrics.SharpeRatio
		}
		if va.Metrics.TotalReturn != vb.Metrics.TotalReturn {
			return va.Metrics.TotalReturn > vb.Metrics.TotalReturn
		}
		return va.Metrics.MaxDrawdown < vb.Metrics.MaxDrawdown
	})
	return order[0], true
}

func (s *backtestRunner) persistResult(
	ctx context.Context,
	req dto.BacktestRequest,
	variations []dto.VariationResult,
	best dto.VariationResult,
	bestTrades []dto.Trade,
) error {
	variationModels := make([]model.ParameterVariation, 0, len(variations))
	for _, v := range variations {
		variationModels = append(variationModels, toVariationModel(v))
	}
	resultJSON, _ := json.Marshal(best)

	err := s.uow.Run(func(opts ...utils.DBOption) error {
		if err := s.variationRepo.CreateBatch(ctx, variationModels, opts...); err != nil {
			return err
		}
		if len(bestTrades) > 0 {
			if err := s.tradeRepo.CreateBatch(ctx, toTradeModels(bestTrades), opts...); err != nil {
				return err
			}
		}
		return s.runRepo.Update(ctx, model.UpdateRunParam{
			Filter: model.UpdateRunFilterParam{RunID: &req.RunID},
			Value: model.UpdateRunValueParam{
				Status:       utils.ToPointer(dto.RunStatusCompleted),
				StrategySlug: utils.ToPointer(best.Slug),
				Result:       datatypes.JSON(resultJSON),
				TotalPnL:     utils.ToPointer(best.Metrics.TotalPnL),
				TotalReturn:  utils.ToPointer(best.Metrics.TotalReturn),
				SharpeRatio:  utils.ToPointer(best.Metrics.SharpeRatio),
				WinRate:      utils.ToPointer(best.Metrics.WinRate),
				TotalTrades:  utils.ToPointer(best.Metrics.TotalTrades),
				CompletedAt:  utils.ToPointer(time.Now().UTC()),
			},
		}, opts...)
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to persist backtest result",
			logger.StringField("run_id", req.RunID), logger.ErrorField(err))
		return err
	}
	return nil
}

// lookbackSlugToken renders the date range length for the strategy slug.
func lookbackSlugToken(start, end time.Time) string {
	days := int(end.Sub(start).Hours() / 24)
	switch {
	case days >= 360:
		return fmt.Sprintf("%dy", days/365)
	case days >= 28:
		return fmt.Sprintf("%dm", days/30)
	case days > 0:
		return fmt.Sprintf("%dd", days)
	default:
		return ""
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpatrade/internal/dto"
	"alpatrade/internal/strategy"
	"alpatrade/pkg/logger"
)

// dayBar places a daily bar at noon UTC on the given day.
func dayBar(y int, m time.Month, d int, open, high, low, close float64) dto.Bar {
	return dto.Bar{
		Timestamp: time.Date(y, m, d, 12, 0, 0, 0, time.UTC),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
	}
}

// dipWeek is five weekday bars with a 6% dip on Wednesday and a rebound
// through a 1.5% target on Thursday.
func dipWeek() []dto.Bar {
	return []dto.Bar{
		dayBar(2026, time.January, 5, 100, 100, 99, 100),
		dayBar(2026, time.January, 6, 100, 100, 99, 100),
		dayBar(2026, time.January, 7, 100, 100, 93.5, 94),
		dayBar(2026, time.January, 8, 94.5, 96, 94, 95.5),
		dayBar(2026, time.January, 9, 95.5, 96, 95, 95.5),
	}
}

func singleComboGrid() dto.ParameterGrid {
	return dto.ParameterGrid{
		DipThreshold: []float64{0.05},
		TakeProfit:   []float64{0.015},
		StopLoss:     []float64{0.01},
		HoldDays:     []int{2},
		PositionSize: []float64{0.10},
	}
}

func newTestRunner(market *fakeMarketDataRepo) (BacktestRunner, *fakeRunRepo, *fakeVariationRepo, *fakeTradeRepo) {
	log := logger.NewNop()
	runRepo := newFakeRunRepo()
	variationRepo := &fakeVariationRepo{}
	tradeRepo := &fakeTradeRepo{}
	runner := NewBacktestRunner(testConfig(), log, strategy.NewEngine(log),
		market, runRepo, variationRepo, tradeRepo, fakeUnitOfWork{})
	return runner, runRepo, variationRepo, tradeRepo
}

func TestBacktestRunner_SymbolWithoutDataIsExcluded(t *testing.T) {
	// Two symbols, one with zero bars: one variation aggregated from the
	// data-bearing symbol only, run completed.
	market := &fakeMarketDataRepo{bars: map[string][]dto.Bar{"AAPL": dipWeek()}}
	runner, runRepo, variationRepo, tradeRepo := newTestRunner(market)

	result, err := runner.Run(context.Background(), dto.BacktestRequest{
		RunID:          "run-d",
		Strategy:       dto.StrategyBuyTheDip,
		Symbols:        []string{"AAPL", "MSFT"},
		StartDate:      time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, time.January, 12, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		Grid:           singleComboGrid(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalVariations)
	require.Len(t, result.Variations, 1)
	assert.True(t, result.Variations[0].IsBest)
	assert.Contains(t, result.Variations[0].SymbolsSkipped, "MSFT")

	require.NotNil(t, result.Best)
	assert.Equal(t, 1, result.Best.Metrics.TotalTrades)
	assert.InDelta(t, (94*1.015-94)*10, result.Best.Metrics.TotalPnL, 1e-9)

	run, err := runRepo.GetByRunID(context.Background(), "run-d")
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, run.Status)
	assert.Equal(t, result.Best.Slug, run.StrategySlug)

	assert.Len(t, variationRepo.variations, 1)
	assert.Len(t, tradeRepo.trades, 1)
	assert.Equal(t, dto.TradeTypeBacktest, tradeRepo.trades[0].TradeType)
}

func TestBacktestRunner_AllSymbolsWithoutDataFailsRun(t *testing.T) {
	market := &fakeMarketDataRepo{}
	runner, runRepo, _, _ := newTestRunner(market)

	_, err := runner.Run(context.Background(), dto.BacktestRequest{
		RunID:          "run-empty",
		Strategy:       dto.StrategyBuyTheDip,
		Symbols:        []string{"AAPL", "MSFT"},
		StartDate:      time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, time.January, 12, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		Grid:           singleComboGrid(),
	})
	require.ErrorIs(t, err, dto.ErrDataUnavailable)

	run, err := runRepo.GetByRunID(context.Background(), "run-empty")
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
}

func TestBacktestRunner_GridProducesOneVariationPerCombination(t *testing.T) {
	market := &fakeMarketDataRepo{bars: map[string][]dto.Bar{"AAPL": dipWeek()}}
	runner, _, variationRepo, _ := newTestRunner(market)

	grid := dto.ParameterGrid{
		DipThreshold: []float64{0.03, 0.05},
		TakeProfit:   []float64{0.01, 0.015},
		StopLoss:     []float64{0.005},
		HoldDays:     []int{1, 2, 3},
		PositionSize: []float64{0.10},
	}
	result, err := runner.Run(context.Background(), dto.BacktestRequest{
		RunID:          "run-grid",
		Strategy:       dto.StrategyBuyTheDip,
		Symbols:        []string{"AAPL"},
		StartDate:      time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, time.January, 12, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		Grid:           grid,
	})
	require.NoError(t, err)

	assert.Equal(t, grid.Size(), result.TotalVariations)
	assert.Len(t, result.Variations, 12)
	assert.Len(t, variationRepo.variations, 12)

	bestCount := 0
	for _, v := range result.Variations {
		if v.IsBest {
			bestCount++
		}
	}
	assert.Equal(t, 1, bestCount)
}

func TestExpandCombinations(t *testing.T) {
	runner := &backtestRunner{cfg: testConfig()}

	t.Run("grid order is stable", func(t *testing.T) {
		combos, err := runner.expandCombinations(dto.BacktestRequest{
			Strategy: dto.StrategyBuyTheDip,
			Grid: dto.ParameterGrid{
				DipThreshold: []float64{0.03, 0.05},
				TakeProfit:   []float64{0.01},
				StopLoss:     []float64{0.005},
				HoldDays:     []int{1, 2},
				PositionSize: []float64{0.10},
			},
		})
		require.NoError(t, err)
		require.Len(t, combos, 4)
		assert.Equal(t, 0.03, combos[0].BuyTheDip.DipThreshold)
		assert.Equal(t, 1, combos[0].BuyTheDip.HoldDays)
		assert.Equal(t, 2, combos[1].BuyTheDip.HoldDays)
		assert.Equal(t, 0.05, combos[2].BuyTheDip.DipThreshold)
	})

	t.Run("explicit params bypass the grid", func(t *testing.T) {
		combos, err := runner.expandCombinations(dto.BacktestRequest{
			Strategy: dto.StrategyMomentum,
			Params: &dto.StrategyParams{Momentum: &dto.MomentumParams{
				LookbackPeriod:    20,
				MomentumThreshold: 0.05,
				TakeProfitPct:     0.03,
				StopLossPct:       0.02,
				HoldDays:          5,
				PositionSizePct:   0.10,
			}},
		})
		require.NoError(t, err)
		require.Len(t, combos, 1)
		assert.NotNil(t, combos[0].Momentum)
	})

	t.Run("non-dip strategy without params is rejected", func(t *testing.T) {
		_, err := runner.expandCombinations(dto.BacktestRequest{Strategy: dto.StrategyMomentum})
		assert.ErrorIs(t, err, dto.ErrInvalidParameter)
	})

	t.Run("empty grid is rejected", func(t *testing.T) {
		_, err := runner.expandCombinations(dto.BacktestRequest{Strategy: dto.StrategyBuyTheDip})
		assert.ErrorIs(t, err, dto.ErrInvalidParameter)
	})
}

func TestRankVariations(t *testing.T) {
	v := func(sharpe, ret, dd float64, errMsg string) dto.VariationResult {
		return dto.VariationResult{
			Metrics: dto.Metrics{SharpeRatio: sharpe, TotalReturn: ret, MaxDrawdown: dd},
			Err:     errMsg,
		}
	}

	tests := []struct {
		name       string
		variations []dto.VariationResult
		wantIdx    int
		wantOK     bool
	}{
		{
			name:       "highest sharpe wins",
			variations: []dto.VariationResult{v(0.5, 10, 5, ""), v(1.2, 4, 8, ""), v(0.9, 20, 2, "")},
			wantIdx:    1,
			wantOK:     true,
		},
		{
			name:       "total return breaks sharpe tie",
			variations: []dto.VariationResult{v(1.0, 10, 5, ""), v(1.0, 12, 5, "")},
			wantIdx:    1,
			wantOK:     true,
		},
		{
			name:       "lower drawdown breaks full tie",
			variations: []dto.VariationResult{v(1.0, 10, 8, ""), v(1.0, 10, 3, "")},
			wantIdx:    1,
			wantOK:     true,
		},
		{
			name:       "failed combinations never win",
			variations: []dto.VariationResult{v(9.9, 99, 0, "boom"), v(0.1, 1, 1, "")},
			wantIdx:    1,
			wantOK:     true,
		},
		{
			name:       "all failed",
			variations: []dto.VariationResult{v(1, 1, 1, "boom")},
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := rankVariations(tt.variations)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantIdx, idx)
			}
		})
	}
}

func TestLookbackSlugToken(t *testing.T) {
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "7d", lookbackSlugToken(base, base.AddDate(0, 0, 7)))
	assert.Equal(t, "1m", lookbackSlugToken(base, base.AddDate(0, 1, 0)))
	assert.Equal(t, "1y", lookbackSlugToken(base, base.AddDate(1, 0, 0)))
	assert.Equal(t, "", lookbackSlugToken(base, base))
}

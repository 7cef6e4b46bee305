package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpatrade/internal/dto"
	"alpatrade/pkg/logger"
)

func TestMomentum_EntryAndTakeProfit(t *testing.T) {
	// Close climbs 6% over the two-bar lookback, then runs through the
	// target on the next bar.
	bars := map[string][]dto.Bar{
		"NVDA": {
			dailyBar(2026, time.January, 5, 100, 100, 99, 100),
			dailyBar(2026, time.January, 6, 102, 103, 101, 103),
			dailyBar(2026, time.January, 7, 105, 106.5, 104, 106),
			dailyBar(2026, time.January, 8, 107, 110, 106, 109),
			dailyBar(2026, time.January, 9, 109, 110, 108, 109),
		},
	}

	in := SimulationInput{
		Symbols:        []string{"NVDA"},
		Series:         dto.PriceSeries{Bars: bars},
		Start:          time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		Params: dto.StrategyParams{Momentum: &dto.MomentumParams{
			LookbackPeriod:    2,
			MomentumThreshold: 5.0,
			TakeProfitPct:     0.03,
			StopLossPct:       0.02,
			HoldDays:          2,
			PositionSizePct:   0.10,
		}},
	}

	s := NewMomentumStrategy(logger.NewNop())
	res, err := s.Simulate(context.Background(), in)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	trade := res.Trades[0]
	assert.Equal(t, "NVDA", trade.Symbol)
	assert.Equal(t, dto.ExitReasonTakeProfit, trade.Reason)
	assert.True(t, trade.HitTarget)
	assert.InDelta(t, 106.0, trade.EntryPrice, 1e-9)
	require.NotNil(t, trade.ExitPrice)
	assert.InDelta(t, 106*1.03, *trade.ExitPrice, 1e-9)
}

func TestMomentum_NoSignalBelowThreshold(t *testing.T) {
	bars := map[string][]dto.Bar{
		"NVDA": {
			dailyBar(2026, time.January, 5, 100, 100, 99, 100),
			dailyBar(2026, time.January, 6, 100, 101, 99, 101),
			dailyBar(2026, time.January, 7, 101, 102, 100, 102),
		},
	}

	in := SimulationInput{
		Symbols:        []string{"NVDA", "EMPTY"},
		Series:         dto.PriceSeries{Bars: bars},
		Start:          time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		Params: dto.StrategyParams{Momentum: &dto.MomentumParams{
			LookbackPeriod:    2,
			MomentumThreshold: 5.0,
			TakeProfitPct:     0.03,
			StopLossPct:       0.02,
			HoldDays:          2,
			PositionSizePct:   0.10,
		}},
	}

	s := NewMomentumStrategy(logger.NewNop())
	res, err := s.Simulate(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, []string{"EMPTY"}, res.SymbolsSkipped)
}

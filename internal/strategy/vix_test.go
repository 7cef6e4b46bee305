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

func TestVIX_BuysOnFearSpike(t *testing.T) {
	stock := []dto.Bar{
		dailyBar(2026, time.January, 5, 100, 101, 99, 100),
		dailyBar(2026, time.January, 6, 100, 101, 99, 100),
		dailyBar(2026, time.January, 7, 100, 103, 100, 102),
	}
	vix := []dto.Bar{
		dailyBar(2026, time.January, 5, 15, 16, 14, 15),
		dailyBar(2026, time.January, 6, 22, 25, 21, 24),
		dailyBar(2026, time.January, 7, 20, 21, 18, 19),
	}

	in := SimulationInput{
		Symbols: []string{"SPY"},
		Series: dto.PriceSeries{
			Bars:      map[string][]dto.Bar{"SPY": stock},
			Auxiliary: map[string][]dto.Bar{VIXSymbol: vix},
		},
		Start:          time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:            time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		InitialCapital: 10000,
		Params: dto.StrategyParams{VIX: &dto.VIXParams{
			VIXThreshold:    20,
			PositionSizePct: 0.10,
			HoldOvernight:   true,
		}},
	}

	s := NewVIXStrategy(logger.NewNop())
	res, err := s.Simulate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	trade := res.Trades[0]
	// Entry on the spike day close, exit on the next bar's close.
	assert.InDelta(t, 100.0, trade.EntryPrice, 1e-9)
	require.NotNil(t, trade.ExitPrice)
	assert.InDelta(t, 102.0, *trade.ExitPrice, 1e-9)
	assert.Equal(t, dto.ExitReasonOvernight, trade.Reason)
	assert.Equal(t, 10, trade.Shares)
	assert.InDelta(t, 20.0, trade.PnL, 1e-9)
}

func TestVIX_NoFearIndexSeries(t *testing.T) {
	in := SimulationInput{
		Symbols:        []string{"SPY"},
		Series:         dto.PriceSeries{Bars: map[string][]dto.Bar{}},
		InitialCapital: 10000,
		Params:         dto.StrategyParams{VIX: &dto.VIXParams{VIXThreshold: 20, PositionSizePct: 0.10}},
	}

	s := NewVIXStrategy(logger.NewNop())
	_, err := s.Simulate(context.Background(), in)
	assert.ErrorIs(t, err, dto.ErrDataUnavailable)
}

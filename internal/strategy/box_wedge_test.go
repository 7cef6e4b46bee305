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

// contractionSeries builds ten wide bars, six tight box bars, four tighter
// wedge bars, one breakout bar and four follow-through bars.
func contractionSeries() []dto.Bar {
	base := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	bar := func(i int, high, low, close float64) dto.Bar {
		return dto.Bar{
			Timestamp: base.AddDate(0, 0, i),
			Open:      close,
			High:      high,
			Low:       low,
			Close:     close,
		}
	}

	var bars []dto.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, bar(i, 110, 90, 100))
	}
	for i := 10; i < 16; i++ {
		bars = append(bars, bar(i, 101, 99, 100))
	}
	for i := 16; i < 20; i++ {
		bars = append(bars, bar(i, 100.4, 99.9, 100.1))
	}
	// Breakout above the wedge high.
	bars = append(bars, bar(20, 100.8, 100.0, 100.6))
	// Follow-through: 1.5R, 3R, then drift into the runner close.
	bars = append(bars, bar(21, 101.8, 100.5, 101.5))
	bars = append(bars, bar(22, 102.8, 100.7, 102.5))
	bars = append(bars, bar(23, 102.0, 101.0, 101.8))
	bars = append(bars, bar(24, 102.0, 101.0, 101.9))
	return bars
}

func TestBoxWedge_BreakoutScaleOut(t *testing.T) {
	bars := contractionSeries()
	in := SimulationInput{
		Symbols:        []string{"SPY"},
		Series:         dto.PriceSeries{Bars: map[string][]dto.Bar{"SPY": bars}},
		Start:          bars[0].Timestamp,
		End:            bars[20].Timestamp, // only the breakout bar may enter
		InitialCapital: 10000,
		Params: dto.StrategyParams{BoxWedge: &dto.BoxWedgeParams{
			BoxLookback:          10,
			WedgeLookback:        4,
			ContractionThreshold: 0.7,
			WedgeFraction:        0.6,
			RiskPerTradePct:      0.01,
			ScaleOut15RFrac:      0.5,
			ScaleOut3RFrac:       0.25,
		}},
	}

	s := NewBoxWedgeStrategy(logger.NewNop())
	res, err := s.Simulate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	trade := res.Trades[0]
	// Risk per share 0.7 (entry 100.6, wedge low 99.9): 1% of 10k risks 142 shares.
	assert.Equal(t, 142, trade.Shares)
	assert.InDelta(t, 100.6, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 99.9, trade.StopPrice, 1e-9)
	assert.True(t, trade.HitTarget)
	assert.False(t, trade.HitStop)
	assert.Equal(t, dto.ExitReasonRunnerClose, trade.Reason)

	// 71 shares at 1.5R (+1.05), 35 at 3R (+2.10), 36 runner at 101.9 (+1.30).
	wantPnL := 1.05*71 + 2.10*35 + 1.30*36
	assert.InDelta(t, wantPnL, trade.PnL, 1e-6)
	require.NotNil(t, trade.ExitPrice)
	assert.InDelta(t, 101.9, *trade.ExitPrice, 1e-9)
}

func TestBoxWedge_StopAfterBreakeven(t *testing.T) {
	bars := contractionSeries()
	// After the 1.5R scale-out the stop moves to the entry price; a dip to
	// it stops out the rest of the position.
	bars[22] = dto.Bar{
		Timestamp: bars[22].Timestamp,
		Open:      101.0, High: 101.2, Low: 100.5, Close: 100.8,
	}
	bars[23] = dto.Bar{
		Timestamp: bars[23].Timestamp,
		Open:      100.8, High: 101.0, Low: 100.6, Close: 100.9,
	}

	in := SimulationInput{
		Symbols:        []string{"SPY"},
		Series:         dto.PriceSeries{Bars: map[string][]dto.Bar{"SPY": bars}},
		Start:          bars[0].Timestamp,
		End:            bars[20].Timestamp,
		InitialCapital: 10000,
		Params: dto.StrategyParams{BoxWedge: &dto.BoxWedgeParams{
			BoxLookback:          10,
			WedgeLookback:        4,
			ContractionThreshold: 0.7,
			WedgeFraction:        0.6,
			RiskPerTradePct:      0.01,
			ScaleOut15RFrac:      0.5,
			ScaleOut3RFrac:       0.25,
		}},
	}

	s := NewBoxWedgeStrategy(logger.NewNop())
	res, err := s.Simulate(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	trade := res.Trades[0]
	assert.True(t, trade.HitTarget)
	assert.True(t, trade.HitStop)
	assert.Equal(t, dto.ExitReasonStopLoss, trade.Reason)
	// 71 shares at 1.5R, the remaining 71 flat at breakeven.
	assert.InDelta(t, 1.05*71, trade.PnL, 1e-6)
}

func TestFindBoxContraction(t *testing.T) {
	bars := contractionSeries()

	contracting, high, low := findBoxContraction(bars, 20, 10, 0.7)
	assert.True(t, contracting)
	assert.InDelta(t, 101.0, high, 1e-9)
	assert.InDelta(t, 99.0, low, 1e-9)

	// Inside the wide stretch nothing has contracted yet.
	contracting, _, _ = findBoxContraction(bars, 10, 10, 0.7)
	assert.False(t, contracting)
}

func TestFindWedge(t *testing.T) {
	bars := contractionSeries()
	has, high, low := findWedge(bars, 20, 101, 99, 4, 0.6)
	assert.True(t, has)
	assert.InDelta(t, 100.4, high, 1e-9)
	assert.InDelta(t, 99.9, low, 1e-9)

	// A wedge as wide as the box is rejected.
	has, _, _ = findWedge(bars, 15, 101, 99, 4, 0.6)
	assert.False(t, has)
}

func TestRiskPositionSize(t *testing.T) {
	assert.Equal(t, 142, riskPositionSize(10000, 0.01, 100.6, 99.9))
	assert.Equal(t, 0, riskPositionSize(10000, 0.01, 100, 100))
	assert.Equal(t, 0, riskPositionSize(10000, 0.01, 100, 101))
}

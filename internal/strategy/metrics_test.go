package strategy

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"alpatrade/internal/dto"
	"alpatrade/pkg/utils"
)

func closedTrade(exit time.Time, pnl, pnlPct, capitalAfter float64) dto.Trade {
	return dto.Trade{
		PnL:          pnl,
		PnLPct:       pnlPct,
		CapitalAfter: capitalAfter,
		ExitTime:     utils.ToPointer(exit),
		ExitPrice:    utils.ToPointer(100.0),
	}
}

func TestCalculateMetrics(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Duration(365.25 * 24 * float64(time.Hour)))

	trades := []dto.Trade{
		closedTrade(start.AddDate(0, 0, 1), 100, 1.0, 10100),
		closedTrade(start.AddDate(0, 0, 2), -50, -0.5, 10050),
	}

	m := CalculateMetrics(trades, 10000, start, end)

	assert.Equal(t, 2, m.TotalTrades)
	assert.Equal(t, 1, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 50.0, m.TotalPnL, 1e-9)
	assert.InDelta(t, 0.5, m.TotalReturn, 1e-9)
	assert.InDelta(t, 50.0, m.WinRate, 1e-9)
	// One full year: annualized equals total return.
	assert.InDelta(t, m.TotalReturn, m.AnnualizedReturn, 1e-6)

	// Returns {1.0, -0.5}: mean 0.25, population std 0.75.
	assert.InDelta(t, 0.25/0.75*math.Sqrt(252), m.SharpeRatio, 1e-9)

	// Peak 10100 then 10050.
	assert.InDelta(t, 50.0/10100*100, m.MaxDrawdown, 1e-9)
}

func TestCalculateMetrics_Empty(t *testing.T) {
	m := CalculateMetrics(nil, 10000, time.Now(), time.Now())
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.TotalPnL)
	assert.Zero(t, m.SharpeRatio)
}

func TestCalculateMetrics_SortsByExitTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	// Out of order: the later exit carries the final capital.
	trades := []dto.Trade{
		closedTrade(start.AddDate(0, 0, 5), 200, 2.0, 10200),
		closedTrade(start.AddDate(0, 0, 1), 100, 1.0, 10100),
	}
	m := CalculateMetrics(trades, 10000, start, end)
	assert.InDelta(t, 200.0, m.TotalPnL, 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		equity []float64
		want   float64
	}{
		{name: "empty", equity: nil, want: 0},
		{name: "monotonic rise", equity: []float64{100, 110, 120}, want: 0},
		{name: "single dip", equity: []float64{100, 80, 120}, want: 20},
		{name: "dip after new peak", equity: []float64{100, 120, 90, 130}, want: 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MaxDrawdown(tt.equity), 1e-9)
		})
	}
}

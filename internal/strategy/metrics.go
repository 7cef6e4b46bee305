package strategy

import (
	"math"
	"sort"
	"time"

	"alpatrade/internal/dto"
)

// EquityPoint is one sample of total equity (cash plus open market value)
// taken at the end of a simulation tick.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// CalculateMetrics derives performance metrics from closed trades ordered by
// exit time. Total P&L is final capital minus initial, win rate counts
// strictly positive P&L, Sharpe annualizes the per-trade return series with
// sqrt(252) and max drawdown is the largest peak-to-trough drop of the
// capital-after curve.
func CalculateMetrics(trades []dto.Trade, initialCapital float64, start, end time.Time) dto.Metrics {
	if len(trades) == 0 {
		return dto.Metrics{}
	}

	sorted := make([]dto.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].ExitTime, sorted[j].ExitTime
		if ti == nil || tj == nil {
			return ti != nil
		}
		return ti.Before(*tj)
	})

	finalCapital := sorted[len(sorted)-1].CapitalAfter
	totalPnL := finalCapital - initialCapital
	totalReturn := totalPnL / initialCapital * 100

	var winning, losing int
	returns := make([]float64, 0, len(sorted))
	equity := make([]float64, 0, len(sorted))
	for _, t := range sorted {
		if t.PnL > 0 {
			winning++
		} else if t.PnL < 0 {
			losing++
		}
		returns = append(returns, t.PnLPct)
		equity = append(equity, t.CapitalAfter)
	}

	winRate := float64(winning) / float64(len(sorted)) * 100

	days := end.Sub(start).Hours() / 24
	var annualized float64
	if days > 0 {
		annualized = totalReturn * 365.25 / days
	}

	return dto.Metrics{
		TotalReturn:      totalReturn,
		TotalPnL:         totalPnL,
		WinRate:          winRate,
		TotalTrades:      len(sorted),
		WinningTrades:    winning,
		LosingTrades:     losing,
		SharpeRatio:      sharpeRatio(returns),
		MaxDrawdown:      MaxDrawdown(equity),
		AnnualizedReturn: annualized,
	}
}

// MaxDrawdown returns the largest peak-to-trough decline of the equity curve
// as a positive percentage.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	runningMax := equity[0]
	worst := 0.0
	for _, e := range equity {
		if e > runningMax {
			runningMax = e
		}
		if runningMax > 0 {
			dd := (e - runningMax) / runningMax
			if dd < worst {
				worst = dd
			}
		}
	}
	return math.Abs(worst) * 100
}

// drawdownFromCurve recomputes max drawdown from tick-level equity samples,
// which is more accurate than the trade-only curve when positions stay open
// between exits.
func drawdownFromCurve(curve []EquityPoint) float64 {
	equity := make([]float64, len(curve))
	for i, p := range curve {
		equity[i] = p.Equity
	}
	return MaxDrawdown(equity)
}

func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

package strategy

import (
	"context"
	"fmt"

	"alpatrade/internal/dto"
	"alpatrade/pkg/common"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

// box/wedge scan and exit-window constants.
const (
	bwSMAPeriod     = 200
	bwMaxExitWindow = 200
	bwTarget15R     = 1.5
	bwTarget3R      = 3.0
)

// BoxWedgeStrategy trades volatility contractions: an outer box where the
// recent range shrinks below a fraction of the average historical range, an
// inner wedge tighter still, entry on wedge breakout with the stop at the
// wedge low. The position scales out at 1.5R and 3R, moves the stop to
// breakeven after the first scale-out and closes the runner at the end of
// the exit window.
type BoxWedgeStrategy struct {
	log *logger.Logger
}

func NewBoxWedgeStrategy(log *logger.Logger) *BoxWedgeStrategy {
	return &BoxWedgeStrategy{log: log}
}

func (s *BoxWedgeStrategy) Name() string {
	return dto.StrategyBoxWedge
}

type scaleExit struct {
	price  float64
	shares int
	reason string
}

func (s *BoxWedgeStrategy) Simulate(ctx context.Context, in SimulationInput) (*SimulationResult, error) {
	p := in.Params.BoxWedge
	if p == nil {
		return nil, fmt.Errorf("%w: box_wedge params not set", dto.ErrInvalidParameter)
	}

	var skipped []string
	capital := in.InitialCapital
	var trades []dto.Trade

	for _, sym := range in.Symbols {
		bars := in.Series.Bars[sym]
		if len(bars) == 0 {
			skipped = append(skipped, sym)
			continue
		}

		for i := p.BoxLookback; i < len(bars); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ts := bars[i].Timestamp
			if ts.Before(in.Start) || ts.After(in.End) {
				continue
			}
			if !bullishRegime(bars, i) {
				continue
			}

			contracting, boxHigh, boxLow := findBoxContraction(bars, i, p.BoxLookback, p.ContractionThreshold)
			if !contracting {
				continue
			}
			hasWedge, wedgeHigh, wedgeLow := findWedge(bars, i, boxHigh, boxLow, p.WedgeLookback, p.WedgeFraction)
			if !hasWedge {
				continue
			}
			if bars[i].High <= wedgeHigh {
				continue
			}

			// Wedge breakout: enter at close, stop at the wedge low.
			entryPrice := bars[i].Close
			stopPrice := wedgeLow
			shares := riskPositionSize(capital, p.RiskPerTradePct, entryPrice, stopPrice)
			if shares == 0 {
				continue
			}

			rValue := entryPrice - stopPrice
			target15 := entryPrice + bwTarget15R*rValue
			target3 := entryPrice + bwTarget3R*rValue

			end := i + 1 + bwMaxExitWindow
			if end > len(bars) {
				end = len(bars)
			}
			future := bars[i+1 : end]
			if len(future) == 0 {
				continue
			}

			remaining := shares
			frac15 := p.ScaleOut15RFrac
			frac3 := p.ScaleOut3RFrac
			var totalPnL float64
			var exits []scaleExit

			for _, fb := range future {
				if remaining == 0 {
					break
				}

				if fb.Low <= stopPrice {
					totalPnL += (stopPrice - entryPrice) * float64(remaining)
					exits = append(exits, scaleExit{price: stopPrice, shares: remaining, reason: dto.ExitReasonStopLoss})
					remaining = 0
					break
				}

				if fb.High >= target15 && frac15 > 0 {
					out := int(float64(shares) * frac15)
					if out > 0 && out <= remaining {
						totalPnL += (target15 - entryPrice) * float64(out)
						exits = append(exits, scaleExit{price: target15, shares: out, reason: dto.ExitReasonScaleOut15R})
						remaining -= out
						frac15 = 0
					}
				}

				if fb.High >= target3 && frac3 > 0 {
					out := int(float64(shares) * frac3)
					if out > 0 && out <= remaining {
						totalPnL += (target3 - entryPrice) * float64(out)
						exits = append(exits, scaleExit{price: target3, shares: out, reason: dto.ExitReasonScaleOut3R})
						remaining -= out
						frac3 = 0
					}
				}

				if len(exits) > 0 && exits[len(exits)-1].reason == dto.ExitReasonScaleOut15R {
					stopPrice = entryPrice
				}
			}

			if remaining > 0 {
				last := future[len(future)-1]
				totalPnL += (last.Close - entryPrice) * float64(remaining)
				exits = append(exits, scaleExit{price: last.Close, shares: remaining, reason: dto.ExitReasonRunnerClose})
			}

			var fees float64
			if in.IncludeCAT {
				fees += CalculateCATFee(shares)
			}
			for _, e := range exits {
				if in.IncludeTAF {
					fees += CalculateTAFFee(e.shares)
				}
				if in.IncludeCAT {
					fees += CalculateCATFee(e.shares)
				}
			}
			totalPnL -= fees

			capital += totalPnL
			pnlPct := totalPnL / (entryPrice * float64(shares)) * 100

			var hitTarget, hitStop bool
			for _, e := range exits {
				switch e.reason {
				case dto.ExitReasonScaleOut15R, dto.ExitReasonScaleOut3R:
					hitTarget = true
				case dto.ExitReasonStopLoss:
					hitStop = true
				}
			}

			final := exits[len(exits)-1]
			exitTime := future[len(future)-1].Timestamp
			trades = append(trades, dto.Trade{
				TradeType:    dto.TradeTypeBacktest,
				Symbol:       sym,
				Direction:    common.DirectionLong,
				Shares:       shares,
				EntryTime:    ts,
				EntryPrice:   entryPrice,
				ExitTime:     utils.ToPointer(exitTime),
				ExitPrice:    utils.ToPointer(final.price),
				TargetPrice:  target3,
				StopPrice:    wedgeLow,
				HitTarget:    hitTarget,
				HitStop:      hitStop,
				PnL:          totalPnL,
				PnLPct:       pnlPct,
				CapitalAfter: capital,
				Fees:         fees,
				Reason:       final.reason,
			})
		}
	}

	return &SimulationResult{
		Trades:         trades,
		Metrics:        CalculateMetrics(trades, in.InitialCapital, in.Start, in.End),
		SymbolsSkipped: skipped,
	}, nil
}

// bullishRegime is true when the close sits above the 200-period SMA, or when
// the series is too short to compute one.
func bullishRegime(bars []dto.Bar, index int) bool {
	if index < bwSMAPeriod {
		return true
	}
	var sum float64
	for _, b := range bars[index-bwSMAPeriod+1 : index+1] {
		sum += b.Close
	}
	return bars[index].Close > sum/float64(bwSMAPeriod)
}

// findBoxContraction checks whether the recent range over lookback bars has
// shrunk below threshold times the average rolling range of the doubled
// window. Windows end at the bar before index so a breakout bar cannot mask
// its own pattern.
func findBoxContraction(bars []dto.Bar, index, lookback int, threshold float64) (bool, float64, float64) {
	if index < lookback {
		return false, 0, 0
	}

	recent := bars[index-lookback : index]
	recentHigh := highestHigh(recent, len(recent))
	recentLow := lowestLow(recent, len(recent))
	recentRange := recentHigh - recentLow

	histStart := index - lookback*2
	if histStart < 0 {
		histStart = 0
	}
	hist := bars[histStart:index]

	// Mean of the rolling lookback-window range across the historical slice.
	var sum float64
	var n int
	for j := lookback - 1; j < len(hist); j++ {
		w := hist[j-lookback+1 : j+1]
		sum += highestHigh(w, len(w)) - lowestLow(w, len(w))
		n++
	}
	if n == 0 {
		return false, 0, 0
	}
	avgRange := sum / float64(n)

	return recentRange < avgRange*threshold, recentHigh, recentLow
}

// findWedge looks for a tighter contraction inside the box: the wedge range
// must be positive and below wedgeFraction of the box range.
func findWedge(bars []dto.Bar, index int, boxHigh, boxLow float64, lookback int, wedgeFraction float64) (bool, float64, float64) {
	if index < lookback {
		return false, 0, 0
	}
	w := bars[index-lookback : index]
	wedgeHigh := highestHigh(w, len(w))
	wedgeLow := lowestLow(w, len(w))
	wedgeRange := wedgeHigh - wedgeLow
	boxRange := boxHigh - boxLow

	return wedgeRange > 0 && wedgeRange < boxRange*wedgeFraction, wedgeHigh, wedgeLow
}

// riskPositionSize sizes a position so the distance to the stop risks the
// given fraction of capital.
func riskPositionSize(capital, riskPct, entryPrice, stopPrice float64) int {
	riskPerShare := entryPrice - stopPrice
	if riskPerShare <= 0 {
		return 0
	}
	return int(capital * riskPct / riskPerShare)
}

package strategy

import (
	"context"
	"fmt"
	"sort"

	"alpatrade/internal/dto"
	"alpatrade/pkg/common"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

// MomentumStrategy buys when a symbol's close has risen by at least the
// threshold over the lookback window, then exits at take profit, stop loss or
// the end of the hold period. Each entry is resolved against future bars
// before the scan moves on.
type MomentumStrategy struct {
	log *logger.Logger
}

func NewMomentumStrategy(log *logger.Logger) *MomentumStrategy {
	return &MomentumStrategy{log: log}
}

func (s *MomentumStrategy) Name() string {
	return dto.StrategyMomentum
}

func (s *MomentumStrategy) Simulate(ctx context.Context, in SimulationInput) (*SimulationResult, error) {
	p := in.Params.Momentum
	if p == nil {
		return nil, fmt.Errorf("%w: momentum params not set", dto.ErrInvalidParameter)
	}

	var skipped []string
	capital := in.InitialCapital
	var trades []dto.Trade

	for _, sym := range in.Symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		bars := in.Series.Bars[sym]
		if len(bars) == 0 {
			skipped = append(skipped, sym)
			continue
		}

		for i := p.LookbackPeriod; i < len(bars); i++ {
			ts := bars[i].Timestamp
			if ts.Before(in.Start) || ts.After(in.End) {
				continue
			}

			lookbackPrice := bars[i-p.LookbackPeriod].Close
			price := bars[i].Close
			if lookbackPrice <= 0 {
				continue
			}
			momentumPct := (price - lookbackPrice) / lookbackPrice * 100
			if momentumPct < p.MomentumThreshold {
				continue
			}

			shares := int(capital * p.PositionSizePct / price)
			if shares <= 0 {
				continue
			}

			target := price * (1 + p.TakeProfitPct)
			stop := price * (1 - p.StopLossPct)

			end := i + 1 + p.HoldDays
			if end > len(bars) {
				end = len(bars)
			}
			future := bars[i+1 : end]
			if len(future) == 0 {
				continue
			}

			exitIdx := -1
			var exitPrice float64
			reason := dto.ExitReasonHoldExpired
			for j, fb := range future {
				if in.ExitPolicy != dto.ExitPolicyTargetFirst && fb.Low <= stop {
					exitIdx, exitPrice, reason = j, stop, dto.ExitReasonStopLoss
					break
				}
				if fb.High >= target {
					exitIdx, exitPrice, reason = j, target, dto.ExitReasonTakeProfit
					break
				}
				if fb.Low <= stop {
					exitIdx, exitPrice, reason = j, stop, dto.ExitReasonStopLoss
					break
				}
			}
			if exitIdx == -1 {
				exitIdx = len(future) - 1
				exitPrice = future[exitIdx].Close
			}
			exitTime := future[exitIdx].Timestamp

			fees := roundTripFees(shares, in.IncludeTAF, in.IncludeCAT)
			pnl := (exitPrice-price)*float64(shares) - fees
			pnlPct := (exitPrice - price) / price * 100
			capital += pnl

			trades = append(trades, dto.Trade{
				TradeType:    dto.TradeTypeBacktest,
				Symbol:       sym,
				Direction:    common.DirectionLong,
				Shares:       shares,
				EntryTime:    ts,
				EntryPrice:   price,
				ExitTime:     utils.ToPointer(exitTime),
				ExitPrice:    utils.ToPointer(exitPrice),
				TargetPrice:  target,
				StopPrice:    stop,
				HitTarget:    reason == dto.ExitReasonTakeProfit,
				HitStop:      reason == dto.ExitReasonStopLoss,
				PnL:          pnl,
				PnLPct:       pnlPct,
				CapitalAfter: capital,
				Fees:         fees,
				Reason:       reason,
			})
		}
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].ExitTime.Before(*trades[j].ExitTime)
	})

	return &SimulationResult{
		Trades:         trades,
		Metrics:        CalculateMetrics(trades, in.InitialCapital, in.Start, in.End),
		SymbolsSkipped: skipped,
	}, nil
}

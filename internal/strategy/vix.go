package strategy

import (
	"context"
	"fmt"

	"alpatrade/internal/dto"
	"alpatrade/pkg/common"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

// VIXSymbol keys the fear-index series inside PriceSeries.Auxiliary.
const VIXSymbol = "^VIX"

// VIXStrategy buys every tradable symbol on days the fear index closes above
// the threshold, then exits on the next available bar.
type VIXStrategy struct {
	log *logger.Logger
}

func NewVIXStrategy(log *logger.Logger) *VIXStrategy {
	return &VIXStrategy{log: log}
}

func (s *VIXStrategy) Name() string {
	return dto.StrategyVIX
}

func (s *VIXStrategy) Simulate(ctx context.Context, in SimulationInput) (*SimulationResult, error) {
	p := in.Params.VIX
	if p == nil {
		return nil, fmt.Errorf("%w: vix params not set", dto.ErrInvalidParameter)
	}

	vixBars := in.Series.Auxiliary[VIXSymbol]
	if len(vixBars) == 0 {
		return nil, fmt.Errorf("%w: no fear index series", dto.ErrDataUnavailable)
	}

	var skipped []string
	for _, sym := range in.Symbols {
		if len(in.Series.Bars[sym]) == 0 {
			skipped = append(skipped, sym)
		}
	}

	capital := in.InitialCapital
	var trades []dto.Trade

	for _, vb := range vixBars {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if vb.Timestamp.Before(in.Start) || vb.Timestamp.After(in.End) {
			continue
		}
		if vb.Close <= p.VIXThreshold {
			continue
		}

		for _, sym := range in.Symbols {
			bars := in.Series.Bars[sym]
			entryBar, ok := barAt(bars, vb.Timestamp)
			if !ok {
				continue
			}

			entryPrice := entryBar.Close
			shares := int(capital * p.PositionSizePct / entryPrice)
			if shares <= 0 {
				continue
			}

			// Exit on the first bar after entry regardless of hold style;
			// same-day exits need finer bars than a daily series carries.
			var exitBar *dto.Bar
			for i := range bars {
				if bars[i].Timestamp.After(vb.Timestamp) {
					exitBar = &bars[i]
					break
				}
			}
			if exitBar == nil {
				continue
			}

			exitPrice := exitBar.Close
			pnl := (exitPrice - entryPrice) * float64(shares)
			pnlPct := (exitPrice - entryPrice) / entryPrice * 100
			capital += pnl

			reason := dto.ExitReasonOvernight
			if !p.HoldOvernight {
				reason = dto.ExitReasonHoldExpired
			}

			trades = append(trades, dto.Trade{
				TradeType:    dto.TradeTypeBacktest,
				Symbol:       sym,
				Direction:    common.DirectionLong,
				Shares:       shares,
				EntryTime:    vb.Timestamp,
				EntryPrice:   entryPrice,
				ExitTime:     utils.ToPointer(exitBar.Timestamp),
				ExitPrice:    utils.ToPointer(exitPrice),
				PnL:          pnl,
				PnLPct:       pnlPct,
				CapitalAfter: capital,
				Reason:       reason,
			})
		}
	}

	return &SimulationResult{
		Trades:         trades,
		Metrics:        CalculateMetrics(trades, in.InitialCapital, in.Start, in.End),
		SymbolsSkipped: skipped,
	}, nil
}

package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"alpatrade/internal/dto"
	"alpatrade/pkg/common"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

const defaultDipLookback = 20

// BuyTheDipStrategy buys when a symbol drops by a threshold from its rolling
// high and exits at take profit, stop loss or hold expiry. Exits are always
// processed before entries within a tick, and same-day exits are gated by the
// PDT tracker when one is supplied.
type BuyTheDipStrategy struct {
	log *logger.Logger
}

func NewBuyTheDipStrategy(log *logger.Logger) *BuyTheDipStrategy {
	return &BuyTheDipStrategy{log: log}
}

func (s *BuyTheDipStrategy) Name() string {
	return dto.StrategyBuyTheDip
}

type dipPosition struct {
	entryTime  time.Time
	entryDay   time.Time
	entryPrice float64
	shares     int
	target     float64
	stop       float64
	maxExit    time.Time
	dipPct     float64
}

type intradayExit struct {
	price     float64
	time      time.Time
	hitTarget bool
	hitStop   bool
}

func (s *BuyTheDipStrategy) Simulate(ctx context.Context, in SimulationInput) (*SimulationResult, error) {
	p := in.Params.BuyTheDip
	if p == nil {
		return nil, fmt.Errorf("%w: buy_the_dip params not set", dto.ErrInvalidParameter)
	}
	lookback := in.Lookback
	if lookback <= 0 {
		lookback = defaultDipLookback
	}

	var skipped []string
	tradable := make([]string, 0, len(in.Symbols))
	for _, sym := range in.Symbols {
		if len(in.Series.Bars[sym]) == 0 {
			skipped = append(skipped, sym)
			continue
		}
		tradable = append(tradable, sym)
	}
	if len(tradable) == 0 {
		return &SimulationResult{SymbolsSkipped: skipped}, nil
	}

	timestamps := unionTimestamps(in.Series.Bars, tradable, in.Start, in.End)

	capital := in.InitialCapital
	active := make(map[string]*dipPosition)
	exitedToday := make(map[string]struct{})
	var (
		trades  []dto.Trade
		equity  []EquityPoint
		prevDay time.Time
	)

	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		day := utils.TruncateToDay(ts.In(utils.GetEasternLocation()))
		if !day.Equal(prevDay) {
			exitedToday = make(map[string]struct{})
		}
		prevDay = day

		// Exits first, in symbol order for determinism.
		for _, sym := range sortedKeys(active) {
			pos := active[sym]
			bar, ok := barAt(in.Series.Bars[sym], ts)
			if !ok {
				continue
			}

			sameDay := utils.SameCalendarDay(ts, pos.entryDay)
			canDayTrade := !sameDay || in.PDT == nil || in.PDT.CanDayTrade(ts)

			var (
				hitTP, hitSL bool
				exitPrice    float64
				exitTime     = marketClose(ts)
			)

			var intra *intradayExit
			if p.IntradayExit && canDayTrade {
				intra = s.checkIntradayExit(sym, pos, ts, in)
			}

			if intra != nil {
				hitTP = intra.hitTarget
				hitSL = intra.hitStop
				exitPrice = intra.price
				exitTime = intra.time.In(utils.GetEasternLocation())
			} else {
				hitTP = canDayTrade && bar.High >= pos.target
				hitSL = canDayTrade && bar.Low <= pos.stop
				hitEnd := !ts.Before(pos.maxExit)

				if !hitTP && !hitSL && !hitEnd {
					continue
				}

				switch {
				case hitTP && hitSL:
					if in.ExitPolicy == dto.ExitPolicyTargetFirst {
						exitPrice, hitSL = pos.target, false
					} else {
						exitPrice, hitTP = pos.stop, false
					}
				case hitTP:
					exitPrice = pos.target
				case hitSL:
					exitPrice = pos.stop
				default:
					exitPrice = bar.Close
				}
			}

			fees := roundTripFees(pos.shares, in.IncludeTAF, in.IncludeCAT)
			pnl := (exitPrice-pos.entryPrice)*float64(pos.shares) - fees
			capital += pos.entryPrice*float64(pos.shares) + pnl
			pnlPct := (exitPrice - pos.entryPrice) / pos.entryPrice * 100

			delete(active, sym)
			exitedToday[sym] = struct{}{}
			capitalAfter := capital + openMarketValue(active, in.Series.Bars, ts)

			reason := dto.ExitReasonHoldExpired
			if hitTP {
				reason = dto.ExitReasonTakeProfit
			} else if hitSL {
				reason = dto.ExitReasonStopLoss
			}

			trades = append(trades, dto.Trade{
				TradeType:    dto.TradeTypeBacktest,
				Symbol:       sym,
				Direction:    common.DirectionLong,
				Shares:       pos.shares,
				EntryTime:    pos.entryTime,
				EntryPrice:   pos.entryPrice,
				ExitTime:     utils.ToPointer(exitTime),
				ExitPrice:    utils.ToPointer(exitPrice),
				TargetPrice:  pos.target,
				StopPrice:    pos.stop,
				HitTarget:    hitTP,
				HitStop:      hitSL,
				PnL:          pnl,
				PnLPct:       pnlPct,
				CapitalAfter: capitalAfter,
				Fees:         fees,
				Reason:       reason,
			})

			if sameDay && in.PDT != nil {
				in.PDT.RecordDayTrade(ts, sym)
			}
		}

		// Entries.
		entryTime := marketOpen(ts)
		if !utils.IsMarketOpen(entryTime, in.ExtendedHours) {
			recordEquity(&equity, entryTime, capital, active, in.Series.Bars, ts)
			continue
		}

		for _, sym := range tradable {
			if _, open := active[sym]; open {
				continue
			}
			if _, exited := exitedToday[sym]; exited {
				continue
			}

			historical := barsUpTo(in.Series.Bars[sym], ts)
			if len(historical) < lookback {
				continue
			}

			recentHigh := highestHigh(historical, lookback)
			price := historical[len(historical)-1].Close
			if recentHigh <= 0 || price <= 0 {
				continue
			}
			dipPct := (recentHigh - price) / recentHigh
			if dipPct < p.DipThreshold {
				continue
			}

			shares := int(capital * p.PositionSizePct / price)
			if shares <= 0 {
				continue
			}
			cost := price * float64(shares)
			if cost > capital {
				shares = int(capital / price)
				cost = price * float64(shares)
				if shares <= 0 {
					continue
				}
			}
			capital -= cost

			active[sym] = &dipPosition{
				entryTime:  entryTime,
				entryDay:   ts,
				entryPrice: price,
				shares:     shares,
				target:     price * (1 + p.TakeProfitPct),
				stop:       price * (1 - p.StopLossPct),
				maxExit:    ts.AddDate(0, 0, p.HoldDays),
				dipPct:     dipPct,
			}
		}

		recordEquity(&equity, entryTime, capital, active, in.Series.Bars, ts)
	}

	metrics := CalculateMetrics(trades, in.InitialCapital, in.Start, in.End)
	if len(equity) > 0 && len(trades) > 0 {
		metrics.MaxDrawdown = drawdownFromCurve(equity)
	}

	return &SimulationResult{
		Trades:         trades,
		Metrics:        metrics,
		Equity:         equity,
		SymbolsSkipped: skipped,
	}, nil
}

// checkIntradayExit walks the symbol's finer bars on ts's calendar day and
// returns the first level touched. The exit policy decides the order levels
// are checked within each bar.
func (s *BuyTheDipStrategy) checkIntradayExit(sym string, pos *dipPosition, ts time.Time, in SimulationInput) *intradayExit {
	bars := in.Series.Intraday[sym]
	if len(bars) == 0 {
		return nil
	}

	sameDay := utils.SameCalendarDay(ts, pos.entryDay)
	if sameDay && in.PDT != nil && !in.PDT.CanDayTrade(ts) {
		return nil
	}

	for _, b := range bars {
		if !utils.SameCalendarDay(b.Timestamp, ts) {
			continue
		}
		if in.ExitPolicy == dto.ExitPolicyTargetFirst {
			if b.High >= pos.target {
				return &intradayExit{price: pos.target, time: b.Timestamp, hitTarget: true}
			}
			if b.Low <= pos.stop {
				return &intradayExit{price: pos.stop, time: b.Timestamp, hitStop: true}
			}
			continue
		}
		if b.Low <= pos.stop {
			return &intradayExit{price: pos.stop, time: b.Timestamp, hitStop: true}
		}
		if b.High >= pos.target {
			return &intradayExit{price: pos.target, time: b.Timestamp, hitTarget: true}
		}
	}
	return nil
}

// openMarketValue sums shares times the latest close for every open position.
func openMarketValue(active map[string]*dipPosition, bars map[string][]dto.Bar, ts time.Time) float64 {
	var total float64
	for sym, pos := range active {
		if b, ok := lastBarAtOrBefore(bars[sym], ts); ok {
			total += float64(pos.shares) * b.Close
		}
	}
	return total
}

func recordEquity(equity *[]EquityPoint, displayTime time.Time, capital float64, active map[string]*dipPosition, bars map[string][]dto.Bar, ts time.Time) {
	*equity = append(*equity, EquityPoint{
		Timestamp: displayTime,
		Equity:    capital + openMarketValue(active, bars, ts),
	})
}

// marketOpen pins a daily bar timestamp to 9:30 ET on its calendar day.
func marketOpen(ts time.Time) time.Time {
	et := ts.In(utils.GetEasternLocation())
	return time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, et.Location())
}

// marketClose pins a daily bar timestamp to 16:00 ET on its calendar day.
func marketClose(ts time.Time) time.Time {
	et := ts.In(utils.GetEasternLocation())
	return time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, et.Location())
}

func sortedKeys(m map[string]*dipPosition) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package service

import (
	"context"
	"math"
	"time"

	"alpatrade/config"
	"alpatrade/internal/dto"
	"alpatrade/internal/repository"
	"alpatrade/pkg/common"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

// fillMatchWindow is how far a broker fill timestamp may drift from the
// recorded trade time and still count as the same execution.
const fillMatchWindow = 5 * time.Minute

// pnlMatchTolerance absorbs rounding between recorded P&L (net of fees) and
// the fee-free fill arithmetic the broker reports.
const pnlMatchTolerance = 1.00

// Reconciler cross-checks recorded paper trades against broker fills and
// positions over a time window.
type Reconciler interface {
	Reconcile(ctx context.Context, req dto.ReconciliationRequest) (*dto.ReconciliationReport, error)
}

type reconciler struct {
	cfg        *config.Config
	log        *logger.Logger
	brokerRepo repository.BrokerRepository
	tradeRepo  repository.TradeRepository

	now func() time.Time
}

func NewReconciler(
	cfg *config.Config,
	log *logger.Logger,
	brokerRepo repository.BrokerRepository,
	tradeRepo repository.TradeRepository,
) Reconciler {
	return &reconciler{
		cfg:        cfg,
		log:        log,
		brokerRepo: brokerRepo,
		tradeRepo:  tradeRepo,
		now:        time.Now,
	}
}

func (s *reconciler) Reconcile(ctx context.Context, req dto.ReconciliationRequest) (*dto.ReconciliationReport, error) {
	windowDays := req.WindowDays
	if windowDays <= 0 {
		windowDays = s.cfg.Orchestrator.ReconcileWindowDays
	}
	windowEnd := s.now().UTC()
	windowStart := windowEnd.AddDate(0, 0, -windowDays)

	report := &dto.ReconciliationReport{
		RunID:       req.RunID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}

	stored, err := s.tradeRepo.Get(ctx, repository.GetTradesParam{
		RunID:     &req.RunID,
		TradeType: utils.ToPointer(dto.TradeTypePaper),
	})
	if err != nil {
		report.Status = dto.ReconcileError
		return report, err
	}
	recorded := tradesInWindow(toTradeDTOs(stored), windowStart, windowEnd)

	fills, err := s.brokerRepo.GetFills(ctx, windowStart)
	if err != nil {
		s.log.ErrorContext(ctx, "could not fetch broker fills",
			logger.StringField("run_id", req.RunID), logger.ErrorField(err))
		report.Status = dto.ReconcileError
		return report, err
	}
	positions, err := s.brokerRepo.GetPositions(ctx)
	if err != nil {
		report.Status = dto.ReconcileError
		return report, err
	}

	s.matchFills(report, recorded, fills)
	s.comparePositions(report, recorded, positions)

	report.TotalIssues = len(report.PositionMismatches) + len(report.TradeMismatches) +
		len(report.MissingTrades) + len(report.ExtraTrades)
	if math.Abs(report.PnL.Delta) > pnlMatchTolerance {
		report.TotalIssues++
	}
	if report.TotalIssues == 0 {
		report.Status = dto.ReconcileMatched
	} else {
		report.Status = dto.ReconcileMismatched
	}

	s.log.InfoContext(ctx, "reconciliation finished",
		logger.StringField("run_id", req.RunID),
		logger.StringField("status", report.Status),
		logger.IntField("issues", report.TotalIssues))
	return report, nil
}

// matchFills pairs every recorded execution (entries and exits) with a broker
// fill by symbol, side, quantity and time proximity. Unpaired recorded
// executions are missing at the broker; unpaired fills are extra. Realized
// P&L is compared across the fill pairs of closed trades, where fees exist
// only on the recorded side.
func (s *reconciler) matchFills(report *dto.ReconciliationReport, recorded []dto.Trade, fills []dto.Fill) {
	used := make(map[int]bool, len(fills))

	match := func(symbol, side string, qty int, at time.Time, price float64) *dto.Fill {
		for i, f := range fills {
			if used[i] || f.Symbol != symbol || f.Side != side || int(f.Qty) != qty {
				continue
			}
			if absDuration(f.At.Sub(at)) > fillMatchWindow {
				continue
			}
			used[i] = true
			if math.Abs(f.Price-price) > 0.01 {
				report.TradeMismatches = append(report.TradeMismatches, dto.TradeMismatch{
					Symbol:   symbol,
					At:       at,
					Recorded: price,
					Broker:   f.Price,
					Message:  "fill price differs from recorded price",
				})
			}
			return &fills[i]
		}
		report.MissingTrades = append(report.MissingTrades, dto.TradeMismatch{
			Symbol:   symbol,
			At:       at,
			Recorded: price,
			Message:  "no broker fill matches recorded execution",
		})
		return nil
	}

	recordedPnL := 0.0
	brokerPnL := 0.0
	for _, t := range recorded {
		buy := match(t.Symbol, common.SideBuy, t.Shares, t.EntryTime, t.EntryPrice)
		if !t.Closed() {
			continue
		}
		sell := match(t.Symbol, common.SideSell, t.Shares, *t.ExitTime, *t.ExitPrice)

		recordedPnL += t.PnL
		if buy != nil && sell != nil {
			// Fill arithmetic is gross; subtract recorded fees to compare net.
			brokerPnL += sell.Qty*sell.Price - buy.Qty*buy.Price - t.Fees
		} else {
			// An unmatched leg already counts as an issue; keep the P&L
			// comparison over pairs that actually exist on both sides.
			recordedPnL -= t.PnL
		}
	}
	report.PnL = dto.PnLComparison{
		RecordedPnL: recordedPnL,
		BrokerPnL:   brokerPnL,
		Delta:       recordedPnL - brokerPnL,
	}

	for i, f := range fills {
		if !used[i] {
			report.ExtraTrades = append(report.ExtraTrades, dto.TradeMismatch{
				Symbol:  f.Symbol,
				At:      f.At,
				Broker:  f.Price,
				Message: "broker fill has no recorded trade",
			})
		}
	}
}

func (s *reconciler) comparePositions(report *dto.ReconciliationReport, recorded []dto.Trade, positions []dto.Position) {
	openQty := make(map[string]float64)
	for _, t := range recorded {
		if !t.Closed() {
			openQty[t.Symbol] += float64(t.Shares)
		}
	}

	brokerQty := make(map[string]float64, len(positions))
	for _, p := range positions {
		brokerQty[p.Symbol] = p.Qty
	}

	for symbol, qty := range openQty {
		if brokerQty[symbol] != qty {
			report.PositionMismatches = append(report.PositionMismatches, dto.PositionMismatch{
				Symbol:      symbol,
				RecordedQty: qty,
				BrokerQty:   brokerQty[symbol],
				Message:     "recorded open quantity differs from broker position",
			})
		}
	}
	for symbol, qty := range brokerQty {
		if _, ok := openQty[symbol]; !ok && qty != 0 {
			report.PositionMismatches = append(report.PositionMismatches, dto.PositionMismatch{
				Symbol:    symbol,
				BrokerQty: qty,
				Message:   "broker holds a position with no recorded open trade",
			})
		}
	}
}

func tradesInWindow(trades []dto.Trade, start, end time.Time) []dto.Trade {
	out := make([]dto.Trade, 0, len(trades))
	for _, t := range trades {
		at := t.EntryTime
		if t.Closed() {
			at = *t.ExitTime
		}
		if !at.Before(start) && !at.After(end) {
			out = append(out, t)
		}
	}
	return out
}

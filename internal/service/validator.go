package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"alpatrade/config"
	"alpatrade/internal/dto"
	"alpatrade/internal/repository"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

// Validator re-derives correctness of recorded trades against the independent
// market-data source and attempts bounded self-correction.
type Validator interface {
	Validate(ctx context.Context, req dto.ValidationRequest) (*dto.ValidationVerdict, error)
}

type validator struct {
	cfg            *config.Config
	log            *logger.Logger
	marketDataRepo repository.MarketDataRepository
	tradeRepo      repository.TradeRepository
	validationRepo repository.ValidationRepository
}

func NewValidator(
	cfg *config.Config,
	log *logger.Logger,
	marketDataRepo repository.MarketDataRepository,
	tradeRepo repository.TradeRepository,
	validationRepo repository.ValidationRepository,
) Validator {
	return &validator{
		cfg:            cfg,
		log:            log,
		marketDataRepo: marketDataRepo,
		tradeRepo:      tradeRepo,
		validationRepo: validationRepo,
	}
}

func (s *validator) Validate(ctx context.Context, req dto.ValidationRequest) (*dto.ValidationVerdict, error) {
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = s.cfg.Validation.MaxIterations
	}
	tolerance := req.PriceTolerance
	if tolerance <= 0 {
		tolerance = s.cfg.Validation.PriceTolerance
	}

	trades := req.Trades
	if len(trades) == 0 && req.RunID != "" {
		stored, err := s.tradeRepo.Get(ctx, repository.GetTradesParam{RunID: &req.RunID})
		if err != nil {
			return nil, err
		}
		trades = toTradeDTOs(stored)
	}

	verdict := &dto.ValidationVerdict{
		RunID:  req.RunID,
		Source: req.Source,
	}
	if len(trades) == 0 {
		verdict.Status = dto.VerdictPassed
		return verdict, s.persistVerdict(ctx, verdict)
	}
	verdict.TotalTradesChecked = len(trades)

	var allCorrections []dto.Correction
	applied := 0
	resolved := false
	iterationsRun := 0

	for iteration := 0; iteration < maxIterations; iteration++ {
		iterationsRun = iteration + 1
		anomalies := s.runChecks(ctx, trades, tolerance, req.ExtendedHours)
		if len(anomalies) == 0 {
			if applied > 0 {
				verdict.Status = dto.VerdictCorrected
			} else {
				verdict.Status = dto.VerdictPassed
			}
			verdict.IterationsUsed = iteration + 1
			resolved = true
			break
		}

		verdict.AnomaliesFound += len(anomalies)
		corrections := buildCorrections(anomalies)
		allCorrections = append(allCorrections, corrections...)

		var changed bool
		trades, changed = applyCorrections(trades, corrections)
		for _, c := range corrections {
			if c.Type != dto.CorrectionFlagged {
				applied++
			}
		}

		// Only flagged issues remain: the battery is deterministic, so the
		// remaining iterations would all find the same anomalies. Spend the
		// budget without re-running them.
		if !changed {
			iterationsRun = maxIterations
			break
		}
	}

	if !resolved {
		remaining := s.runChecks(ctx, trades, tolerance, req.ExtendedHours)
		verdict.Status = dto.VerdictFailed
		verdict.IterationsUsed = iterationsRun
		verdict.Anomalies = remaining
		verdict.Suggestions = generateSuggestions(remaining)
	}
	verdict.Corrections = allCorrections
	verdict.AnomaliesCorrected = applied

	s.log.InfoContext(ctx, "validation finished",
		logger.StringField("run_id", req.RunID),
		logger.StringField("status", verdict.Status),
		logger.IntField("iterations", verdict.IterationsUsed),
		logger.IntField("anomalies_found", verdict.AnomaliesFound),
		logger.IntField("anomalies_corrected", verdict.AnomaliesCorrected))

	return verdict, s.persistVerdict(ctx, verdict)
}

func (s *validator) persistVerdict(ctx context.Context, verdict *dto.ValidationVerdict) error {
	if verdict.RunID == "" {
		return nil
	}
	m := toVerdictModel(*verdict)
	if err := s.validationRepo.Create(ctx, &m); err != nil {
		s.log.ErrorContext(ctx, "failed to persist validation verdict",
			logger.StringField("run_id", verdict.RunID), logger.ErrorField(err))
		return err
	}
	return nil
}

// runChecks applies the fixed battery to every trade and tags each anomaly
// with the trade it belongs to.
func (s *validator) runChecks(ctx context.Context, trades []dto.Trade, tolerance float64, extendedHours bool) []dto.Anomaly {
	var anomalies []dto.Anomaly
	for i, trade := range trades {
		var issues []dto.Anomaly
		issues = append(issues, s.checkPriceTolerance(ctx, trade, tolerance)...)
		issues = append(issues, checkPnLMath(trade)...)
		issues = append(issues, checkMarketHours(trade, extendedHours)...)
		issues = append(issues, checkWeekends(trade)...)
		issues = append(issues, checkTPSLConflict(trade)...)
		for _, issue := range issues {
			issue.TradeIndex = i
			issue.Symbol = trade.Symbol
			anomalies = append(anomalies, issue)
		}
	}
	return anomalies
}

func (s *validator) checkPriceTolerance(ctx context.Context, trade dto.Trade, tolerance float64) []dto.Anomaly {
	var issues []dto.Anomaly

	if trade.EntryPrice > 0 {
		if issue := s.comparePrice(ctx, trade.Symbol, "entry_price", trade.EntryPrice, trade.EntryTime, tolerance); issue != nil {
			issues = append(issues, *issue)
		}
	}
	if trade.Closed() {
		if issue := s.comparePrice(ctx, trade.Symbol, "exit_price", *trade.ExitPrice, *trade.ExitTime, tolerance); issue != nil {
			issues = append(issues, *issue)
		}
	}
	return issues
}

func (s *validator) comparePrice(ctx context.Context, symbol, field string, recorded float64, at time.Time, tolerance float64) *dto.Anomaly {
	actual, ok := s.marketPriceAt(ctx, symbol, at)
	if !ok {
		return nil
	}
	diff := math.Abs(recorded-actual) / actual
	if diff <= tolerance {
		return nil
	}
	return &dto.Anomaly{
		Type:     dto.AnomalyPriceTolerance,
		Field:    field,
		Recorded: recorded,
		Expected: actual,
		Message: fmt.Sprintf("%s $%.2f differs from market $%.2f by %.1f%%",
			field, recorded, actual, diff*100),
	}
}

// marketPriceAt fetches minute bars around the timestamp and takes the close
// of the nearest one. A missing series skips the check rather than failing it.
func (s *validator) marketPriceAt(ctx context.Context, symbol string, at time.Time) (float64, bool) {
	bars, err := s.marketDataRepo.GetBars(ctx, dto.GetBarsParam{
		Symbol:   symbol,
		Start:    at.Add(-30 * time.Minute),
		End:      at.Add(30 * time.Minute),
		Interval: "1m",
	})
	if err != nil || len(bars) == 0 {
		s.log.DebugContext(ctx, "no reference price, check skipped",
			logger.StringField("symbol", symbol), logger.TimeField("at", at))
		return 0, false
	}

	nearest := bars[0]
	best := absDuration(bars[0].Timestamp.Sub(at))
	for _, b := range bars[1:] {
		if d := absDuration(b.Timestamp.Sub(at)); d < best {
			nearest, best = b, d
		}
	}
	return nearest.Close, true
}

func checkPnLMath(trade dto.Trade) []dto.Anomaly {
	if !trade.Closed() {
		return nil
	}
	expected := expectedPnL(trade)
	if math.Abs(trade.PnL-expected) <= 0.01 {
		return nil
	}
	return []dto.Anomaly{{
		Type:     dto.AnomalyPnLMath,
		Recorded: trade.PnL,
		Expected: expected,
		Message:  fmt.Sprintf("P&L mismatch: expected $%.2f, recorded $%.2f", expected, trade.PnL),
	}}
}

func expectedPnL(trade dto.Trade) float64 {
	return (*trade.ExitPrice-trade.EntryPrice)*float64(trade.Shares)*trade.DirectionSign() - trade.Fees
}

func checkMarketHours(trade dto.Trade, extendedHours bool) []dto.Anomaly {
	var issues []dto.Anomaly
	loc := utils.GetEasternLocation()

	check := func(field string, at time.Time) {
		et := at.In(loc)
		hour := float64(et.Hour()) + float64(et.Minute())/60.0
		inWindow := hour >= 9.5 && hour < 16.0
		window := "9:30AM-4PM"
		if extendedHours {
			inWindow = hour >= 4.0 && hour < 20.0
			window = "4AM-8PM"
		}
		if !inWindow {
			issues = append(issues, dto.Anomaly{
				Type:    dto.AnomalyMarketHours,
				Field:   field,
				Message: fmt.Sprintf("%s at %s ET is outside %s window", field, et.Format("15:04"), window),
			})
		}
	}

	check("entry_time", trade.EntryTime)
	if trade.ExitTime != nil {
		check("exit_time", *trade.ExitTime)
	}
	return issues
}

func checkWeekends(trade dto.Trade) []dto.Anomaly {
	var issues []dto.Anomaly
	loc := utils.GetEasternLocation()

	check := func(field string, at time.Time) {
		et := at.In(loc)
		if utils.IsWeekend(et) {
			issues = append(issues, dto.Anomaly{
				Type:    dto.AnomalyWeekendTrade,
				Field:   field,
				Message: fmt.Sprintf("%s on %s (weekend)", field, et.Weekday()),
			})
		}
	}

	check("entry_time", trade.EntryTime)
	if trade.ExitTime != nil {
		check("exit_time", *trade.ExitTime)
	}
	return issues
}

func checkTPSLConflict(trade dto.Trade) []dto.Anomaly {
	if !trade.HitTarget || !trade.HitStop {
		return nil
	}
	return []dto.Anomaly{{
		Type:    dto.AnomalyTPSLConflict,
		Message: "both take profit and stop loss marked as hit",
	}}
}

// buildCorrections maps each anomaly to its deterministic fix. Structural
// issues carry no safe fix and are flagged, never silently dropped.
func buildCorrections(anomalies []dto.Anomaly) []dto.Correction {
	corrections := make([]dto.Correction, 0, len(anomalies))
	for _, a := range anomalies {
		switch a.Type {
		case dto.AnomalyPnLMath:
			corrections = append(corrections, dto.Correction{
				Type:       dto.CorrectionPnLRecalc,
				TradeIndex: a.TradeIndex,
				OldValue:   a.Recorded,
				NewValue:   a.Expected,
			})
		case dto.AnomalyPriceTolerance:
			corrections = append(corrections, dto.Correction{
				Type:       dto.CorrectionPriceFix,
				TradeIndex: a.TradeIndex,
				Field:      a.Field,
				OldValue:   a.Recorded,
				NewValue:   a.Expected,
			})
		default:
			corrections = append(corrections, dto.Correction{
				Type:       dto.CorrectionFlagged,
				TradeIndex: a.TradeIndex,
				Issue:      a.Type,
				Message:    a.Message,
			})
		}
	}
	return corrections
}

// applyCorrections returns a fixed copy of the trades and whether anything
// actually changed. Flagged corrections never mutate data.
func applyCorrections(trades []dto.Trade, corrections []dto.Correction) ([]dto.Trade, bool) {
	out := make([]dto.Trade, len(trades))
	copy(out, trades)

	changed := false
	for _, c := range corrections {
		if c.TradeIndex < 0 || c.TradeIndex >= len(out) {
			continue
		}
		t := &out[c.TradeIndex]

		switch c.Type {
		case dto.CorrectionPnLRecalc:
			t.PnL = c.NewValue
			changed = true
		case dto.CorrectionPriceFix:
			switch c.Field {
			case "entry_price":
				t.EntryPrice = c.NewValue
			case "exit_price":
				t.ExitPrice = utils.ToPointer(c.NewValue)
			}
			if t.Closed() {
				t.PnL = expectedPnL(*t)
				if cost := t.EntryPrice * float64(t.Shares); cost > 0 {
					t.PnLPct = t.PnL / cost * 100
				}
			}
			changed = true
		}
	}
	return out, changed
}

func generateSuggestions(anomalies []dto.Anomaly) []string {
	types := make(map[string]bool, len(anomalies))
	for _, a := range anomalies {
		types[a.Type] = true
	}

	var suggestions []string
	if types[dto.AnomalyWeekendTrade] {
		suggestions = append(suggestions,
			"Weekend trades detected. Check the data source for incorrect timestamps or ensure the backtester skips weekends.")
	}
	if types[dto.AnomalyMarketHours] {
		suggestions = append(suggestions,
			"Trades outside market hours detected. Verify the data source provides correct timestamps and that the strategy respects trading hours.")
	}
	if types[dto.AnomalyPriceTolerance] {
		suggestions = append(suggestions,
			"Significant price deviations from market data. This may indicate stale price data; consider re-running with a different data source.")
	}
	if types[dto.AnomalyTPSLConflict] {
		suggestions = append(suggestions,
			"Take profit and stop loss both triggered on the same trade. Review the strategy exit logic for race conditions.")
	}
	if types[dto.AnomalyPnLMath] {
		suggestions = append(suggestions,
			"P&L mismatches remain after correction. Manually verify the fee calculations and entry/exit prices.")
	}
	return suggestions
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

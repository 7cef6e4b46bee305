package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpatrade/internal/dto"
	"alpatrade/pkg/logger"
)

// minuteBar places a one-minute reference bar at the exact timestamp.
func minuteBar(ts time.Time, close float64) dto.Bar {
	return dto.Bar{Timestamp: ts, Open: close, High: close, Low: close, Close: close}
}

func newTestValidator(market *fakeMarketDataRepo) (Validator, *fakeTradeRepo, *fakeValidationRepo) {
	tradeRepo := &fakeTradeRepo{}
	validationRepo := &fakeValidationRepo{}
	v := NewValidator(testConfig(), logger.NewNop(), market, tradeRepo, validationRepo)
	return v, tradeRepo, validationRepo
}

// closedTrade is a clean long trade: Tuesday 10:00 ET entry, Wednesday 10:00
// ET exit, P&L consistent with its prices.
func closedTrade(entryPrice, exitPrice float64) dto.Trade {
	entry := time.Date(2026, time.January, 6, 15, 0, 0, 0, time.UTC)
	exit := time.Date(2026, time.January, 7, 15, 0, 0, 0, time.UTC)
	return dto.Trade{
		RunID:      "run-v",
		TradeType:  dto.TradeTypeBacktest,
		Symbol:     "AAPL",
		Direction:  "long",
		Shares:     10,
		EntryTime:  entry,
		EntryPrice: entryPrice,
		ExitTime:   &exit,
		ExitPrice:  &exitPrice,
		PnL:        (exitPrice - entryPrice) * 10,
	}
}

func referenceBars() map[string][]dto.Bar {
	return map[string][]dto.Bar{
		"AAPL": {
			minuteBar(time.Date(2026, time.January, 6, 15, 0, 0, 0, time.UTC), 100),
			minuteBar(time.Date(2026, time.January, 7, 15, 0, 0, 0, time.UTC), 105),
		},
	}
}

func TestValidator_CorrectsPriceDeviation(t *testing.T) {
	// Entry recorded 3% above the reference close with a 1% tolerance: one
	// correction pass re-rounds the price and recomputes P&L, the next pass
	// comes back clean.
	market := &fakeMarketDataRepo{bars: referenceBars()}
	v, _, validationRepo := newTestValidator(market)

	trade := closedTrade(103, 105)
	verdict, err := v.Validate(context.Background(), dto.ValidationRequest{
		RunID:  "run-v",
		Source: dto.TradeTypeBacktest,
		Trades: []dto.Trade{trade},
	})
	require.NoError(t, err)

	assert.Equal(t, dto.VerdictCorrected, verdict.Status)
	assert.Equal(t, 2, verdict.IterationsUsed)
	assert.Equal(t, 1, verdict.AnomaliesFound)
	assert.Equal(t, 1, verdict.AnomaliesCorrected)
	assert.Empty(t, verdict.Anomalies)

	require.Len(t, verdict.Corrections, 1)
	corr := verdict.Corrections[0]
	assert.Equal(t, dto.CorrectionPriceFix, corr.Type)
	assert.Equal(t, "entry_price", corr.Field)
	assert.InDelta(t, 103, corr.OldValue, 1e-9)
	assert.InDelta(t, 100, corr.NewValue, 1e-9)

	require.Len(t, validationRepo.verdicts, 1)
	assert.Equal(t, dto.VerdictCorrected, validationRepo.verdicts[0].Status)
}

func TestValidator_CleanTradesPass(t *testing.T) {
	market := &fakeMarketDataRepo{bars: referenceBars()}
	v, _, _ := newTestValidator(market)

	verdict, err := v.Validate(context.Background(), dto.ValidationRequest{
		RunID:  "run-v",
		Trades: []dto.Trade{closedTrade(100, 105)},
	})
	require.NoError(t, err)

	assert.Equal(t, dto.VerdictPassed, verdict.Status)
	assert.Equal(t, 1, verdict.IterationsUsed)
	assert.Equal(t, 1, verdict.TotalTradesChecked)
	assert.Zero(t, verdict.AnomaliesFound)
	assert.Empty(t, verdict.Corrections)
}

func TestValidator_NoTradesPasses(t *testing.T) {
	v, _, _ := newTestValidator(&fakeMarketDataRepo{})

	verdict, err := v.Validate(context.Background(), dto.ValidationRequest{RunID: "run-empty"})
	require.NoError(t, err)
	assert.Equal(t, dto.VerdictPassed, verdict.Status)
	assert.Zero(t, verdict.TotalTradesChecked)
}

func TestValidator_PnLMismatchCorrected(t *testing.T) {
	// No reference series: the price check is skipped, only the arithmetic
	// runs.
	v, _, _ := newTestValidator(&fakeMarketDataRepo{})

	trade := closedTrade(100, 105)
	trade.PnL = 123.45
	verdict, err := v.Validate(context.Background(), dto.ValidationRequest{
		RunID:  "run-v",
		Trades: []dto.Trade{trade},
	})
	require.NoError(t, err)

	assert.Equal(t, dto.VerdictCorrected, verdict.Status)
	assert.Equal(t, 2, verdict.IterationsUsed)
	require.Len(t, verdict.Corrections, 1)
	assert.Equal(t, dto.CorrectionPnLRecalc, verdict.Corrections[0].Type)
	assert.InDelta(t, 123.45, verdict.Corrections[0].OldValue, 1e-9)
	assert.InDelta(t, 50, verdict.Corrections[0].NewValue, 1e-9)
}

func TestValidator_ConflictingExitFlagsFail(t *testing.T) {
	// Both exit flags set has no safe deterministic fix: the correction budget
	// is exhausted and the verdict reports every iteration as used.
	v, _, _ := newTestValidator(&fakeMarketDataRepo{})

	trade := closedTrade(100, 105)
	trade.HitTarget = true
	trade.HitStop = true
	verdict, err := v.Validate(context.Background(), dto.ValidationRequest{
		RunID:         "run-v",
		Trades:        []dto.Trade{trade},
		MaxIterations: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, dto.VerdictFailed, verdict.Status)
	assert.Equal(t, 10, verdict.IterationsUsed)
	require.Len(t, verdict.Anomalies, 1)
	assert.Equal(t, dto.AnomalyTPSLConflict, verdict.Anomalies[0].Type)
	require.Len(t, verdict.Corrections, 1)
	assert.Equal(t, dto.CorrectionFlagged, verdict.Corrections[0].Type)
	assert.NotEmpty(t, verdict.Suggestions)
}

func TestValidator_WeekendTradeFails(t *testing.T) {
	v, _, _ := newTestValidator(&fakeMarketDataRepo{})

	saturday := time.Date(2026, time.January, 10, 15, 0, 0, 0, time.UTC)
	exit := saturday.Add(time.Hour)
	exitPrice := 105.0
	trade := dto.Trade{
		Symbol:     "AAPL",
		Direction:  "long",
		Shares:     10,
		EntryTime:  saturday,
		EntryPrice: 100,
		ExitTime:   &exit,
		ExitPrice:  &exitPrice,
		PnL:        50,
	}

	verdict, err := v.Validate(context.Background(), dto.ValidationRequest{Trades: []dto.Trade{trade}})
	require.NoError(t, err)

	assert.Equal(t, dto.VerdictFailed, verdict.Status)
	types := make(map[string]bool)
	for _, a := range verdict.Anomalies {
		types[a.Type] = true
	}
	assert.True(t, types[dto.AnomalyWeekendTrade])
}

func TestValidator_OutsideMarketHoursFails(t *testing.T) {
	v, _, _ := newTestValidator(&fakeMarketDataRepo{})

	// Tuesday 23:00 UTC is 18:00 ET, outside the regular session.
	trade := closedTrade(100, 105)
	trade.EntryTime = time.Date(2026, time.January, 6, 23, 0, 0, 0, time.UTC)

	verdict, err := v.Validate(context.Background(), dto.ValidationRequest{Trades: []dto.Trade{trade}})
	require.NoError(t, err)

	assert.Equal(t, dto.VerdictFailed, verdict.Status)
	require.NotEmpty(t, verdict.Anomalies)
	assert.Equal(t, dto.AnomalyMarketHours, verdict.Anomalies[0].Type)
}

func TestValidator_ExtendedHoursWindow(t *testing.T) {
	v, _, _ := newTestValidator(&fakeMarketDataRepo{})

	trade := closedTrade(100, 105)
	trade.EntryTime = time.Date(2026, time.January, 6, 23, 0, 0, 0, time.UTC)

	verdict, err := v.Validate(context.Background(), dto.ValidationRequest{
		Trades:        []dto.Trade{trade},
		ExtendedHours: true,
	})
	require.NoError(t, err)
	assert.Equal(t, dto.VerdictPassed, verdict.Status)
}

func TestValidator_LoadsTradesFromStore(t *testing.T) {
	v, tradeRepo, _ := newTestValidator(&fakeMarketDataRepo{})

	trade := closedTrade(100, 105)
	require.NoError(t, tradeRepo.CreateBatch(context.Background(), toTradeModels([]dto.Trade{trade})))

	verdict, err := v.Validate(context.Background(), dto.ValidationRequest{
		RunID:  "run-v",
		Source: dto.TradeTypeBacktest,
	})
	require.NoError(t, err)
	assert.Equal(t, dto.VerdictPassed, verdict.Status)
	assert.Equal(t, 1, verdict.TotalTradesChecked)
}

func TestApplyCorrections_RecomputesDependents(t *testing.T) {
	trade := closedTrade(103, 105)
	fixed, changed := applyCorrections([]dto.Trade{trade}, []dto.Correction{{
		Type:       dto.CorrectionPriceFix,
		TradeIndex: 0,
		Field:      "entry_price",
		OldValue:   103,
		NewValue:   100,
	}})

	assert.True(t, changed)
	assert.InDelta(t, 100, fixed[0].EntryPrice, 1e-9)
	assert.InDelta(t, 50, fixed[0].PnL, 1e-9)
	assert.InDelta(t, 5, fixed[0].PnLPct, 1e-9)
	// The input is never mutated.
	assert.InDelta(t, 103, trade.EntryPrice, 1e-9)
}

func TestApplyCorrections_FlaggedChangesNothing(t *testing.T) {
	trade := closedTrade(100, 105)
	_, changed := applyCorrections([]dto.Trade{trade}, []dto.Correction{{
		Type:       dto.CorrectionFlagged,
		TradeIndex: 0,
		Issue:      dto.AnomalyWeekendTrade,
	}})
	assert.False(t, changed)
}

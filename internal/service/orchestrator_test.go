package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alpatrade/internal/bus"
	"alpatrade/internal/dto"
	"alpatrade/internal/strategy"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

// sessionBar stamps bars at 10:00 ET so validation's market-hours check
// accepts the simulated executions.
func sessionBar(y int, m time.Month, d int, open, high, low, close float64) dto.Bar {
	return dto.Bar{
		Timestamp: time.Date(y, m, d, 15, 0, 0, 0, time.UTC),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
	}
}

func sessionDipWeek() []dto.Bar {
	return []dto.Bar{
		sessionBar(2026, time.January, 5, 100, 100, 99, 100),
		sessionBar(2026, time.January, 6, 100, 100, 99, 100),
		sessionBar(2026, time.January, 7, 100, 100, 93.5, 94),
		sessionBar(2026, time.January, 8, 94.5, 96, 94, 95.5),
		sessionBar(2026, time.January, 9, 95.5, 96, 95, 95.5),
	}
}

func newTestOrchestrator(market *fakeMarketDataRepo, broker *fakeBrokerRepo) (*orchestrator, *fakeRunRepo, *fakeTradeRepo, *fakeValidationRepo, *bus.InMemoryBus) {
	cfg := testConfig()
	log := logger.NewNop()
	runRepo := newFakeRunRepo()
	variationRepo := &fakeVariationRepo{}
	tradeRepo := &fakeTradeRepo{}
	validationRepo := &fakeValidationRepo{}
	msgBus := bus.NewInMemoryBus(log)

	runner := NewBacktestRunner(cfg, log, strategy.NewEngine(log),
		market, runRepo, variationRepo, tradeRepo, fakeUnitOfWork{})
	val := NewValidator(cfg, log, market, tradeRepo, validationRepo)
	trader := &paperTrader{
		cfg: cfg, log: log, marketDataRepo: market, brokerRepo: broker,
		runRepo: runRepo, tradeRepo: tradeRepo, msgBus: msgBus,
		now: func() time.Time { return tradingTuesday },
	}
	rec := &reconciler{
		cfg: cfg, log: log, brokerRepo: broker, tradeRepo: tradeRepo,
		now: func() time.Time { return reconcileNow },
	}
	rep := NewReporter(cfg, log, runRepo, variationRepo, tradeRepo, validationRepo, &fakeAdvisorRepo{})

	orc := NewOrchestrator(cfg, log, runner, val, trader, rec, rep, runRepo, msgBus).(*orchestrator)
	return orc, runRepo, tradeRepo, validationRepo, msgBus
}

func waitDone(t *testing.T, handle *RunHandle) {
	t.Helper()
	select {
	case <-handle.Done:
	case <-time.After(15 * time.Second):
		t.Fatal("pipeline did not finish in time")
	}
}

func runStateOf(t *testing.T, runRepo *fakeRunRepo, runID string) runState {
	t.Helper()
	run, err := runRepo.GetByRunID(context.Background(), runID)
	require.NoError(t, err)
	var st runState
	require.NoError(t, json.Unmarshal(run.Result, &st))
	return st
}

func TestStagesForMode(t *testing.T) {
	tests := []struct {
		mode string
		want []string
	}{
		{dto.ModeFull, []string{StageBacktest, StageValidateBacktest, StagePaperTrade, StageValidatePaper, StageReconcile, StageReport}},
		{dto.ModeBacktest, []string{StageBacktest, StageValidateBacktest, StageReport}},
		{dto.ModeValidate, []string{StageValidateBacktest, StageReport}},
		{dto.ModePaper, []string{StagePaperTrade, StageValidatePaper, StageReconcile, StageReport}},
		{dto.ModeReconcile, []string{StageReconcile, StageReport}},
		{"weekly", nil},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			assert.Equal(t, tt.want, stagesForMode(tt.mode))
		})
	}
}

func TestResolveRunID(t *testing.T) {
	orc := &orchestrator{}

	cmd := dto.RunCommand{
		Mode:           dto.ModeFull,
		Backtest:       &dto.BacktestRequest{RunID: "run-x"},
		Reconciliation: &dto.ReconciliationRequest{},
	}
	assert.Equal(t, "run-x", orc.resolveRunID(&cmd))
	assert.Equal(t, "run-x", cmd.Reconciliation.RunID)

	generated := dto.RunCommand{Mode: dto.ModeBacktest, Backtest: &dto.BacktestRequest{}}
	runID := orc.resolveRunID(&generated)
	assert.NotEmpty(t, runID)
	assert.Equal(t, runID, generated.Backtest.RunID)
}

func TestOrchestrator_UnknownModeRejected(t *testing.T) {
	orc, runRepo, _, _, _ := newTestOrchestrator(&fakeMarketDataRepo{}, &fakeBrokerRepo{})

	_, err := orc.Dispatch(context.Background(), dto.RunCommand{Mode: "weekly"})
	assert.ErrorIs(t, err, dto.ErrInvalidParameter)
	assert.Empty(t, runRepo.runs)
}

func TestOrchestrator_BacktestPipelineRunsToCompletion(t *testing.T) {
	market := &fakeMarketDataRepo{bars: map[string][]dto.Bar{"AAPL": sessionDipWeek()}}
	orc, runRepo, tradeRepo, validationRepo, msgBus := newTestOrchestrator(market, &fakeBrokerRepo{})

	handle, err := orc.Dispatch(context.Background(), dto.RunCommand{
		Mode: dto.ModeBacktest,
		Backtest: &dto.BacktestRequest{
			RunID:          "run-o",
			Strategy:       dto.StrategyBuyTheDip,
			Symbols:        []string{"AAPL"},
			StartDate:      time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
			EndDate:        time.Date(2026, time.January, 12, 0, 0, 0, 0, time.UTC),
			InitialCapital: 10000,
			Grid:           singleComboGrid(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "run-o", handle.RunID)
	waitDone(t, handle)

	run, err := runRepo.GetByRunID(context.Background(), "run-o")
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, run.Status)
	assert.NotEmpty(t, run.StrategySlug)

	st := runStateOf(t, runRepo, "run-o")
	assert.Equal(t, stageCompleted, st.Stages[StageBacktest])
	assert.Equal(t, stageCompleted, st.Stages[StageValidateBacktest])
	assert.Equal(t, stageCompleted, st.Stages[StageReport])

	// The request/result conversation is on the audit trail.
	assert.Len(t, msgBus.History(bus.HistoryFilter{Type: dto.MsgBacktestRequest}), 1)
	assert.Len(t, msgBus.History(bus.HistoryFilter{Type: dto.MsgBacktestResult}), 1)
	assert.Len(t, msgBus.History(bus.HistoryFilter{Type: dto.MsgValidationResult}), 1)

	assert.NotEmpty(t, tradeRepo.trades)
	verdicts, err := validationRepo.GetByRunID(context.Background(), "run-o")
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.Contains(t, []string{dto.VerdictPassed, dto.VerdictCorrected}, verdicts[0].Status)
}

func TestOrchestrator_FailedValidationFailsRun(t *testing.T) {
	orc, runRepo, tradeRepo, _, _ := newTestOrchestrator(&fakeMarketDataRepo{}, &fakeBrokerRepo{})

	// A trade with both exit flags set is structurally broken and can never
	// be auto-corrected.
	conflicted := dto.Trade{
		RunID:      "run-v",
		TradeType:  dto.TradeTypeBacktest,
		Symbol:     "AAPL",
		Direction:  "long",
		Shares:     10,
		EntryTime:  time.Date(2026, time.January, 6, 15, 0, 0, 0, time.UTC),
		EntryPrice: 100,
		ExitTime:   utils.ToPointer(time.Date(2026, time.January, 7, 15, 0, 0, 0, time.UTC)),
		ExitPrice:  utils.ToPointer(106.0),
		HitTarget:  true,
		HitStop:    true,
		PnL:        60,
	}
	seedTrades(t, tradeRepo, conflicted)

	handle, err := orc.Dispatch(context.Background(), dto.RunCommand{
		Mode:       dto.ModeValidate,
		Validation: &dto.ValidationRequest{RunID: "run-v", Source: dto.TradeTypeBacktest},
	})
	require.NoError(t, err)
	waitDone(t, handle)

	run, err := runRepo.GetByRunID(context.Background(), "run-v")
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "validation exhausted")

	// Reporting still ran for the failed pipeline.
	st := runStateOf(t, runRepo, "run-v")
	assert.Equal(t, stageFailed, st.Stages[StageValidateBacktest])
	assert.Equal(t, stageCompleted, st.Stages[StageReport])
}

func TestOrchestrator_ReconcileModeRunsToCompletion(t *testing.T) {
	orc, runRepo, _, _, msgBus := newTestOrchestrator(&fakeMarketDataRepo{}, &fakeBrokerRepo{})

	handle, err := orc.Dispatch(context.Background(), dto.RunCommand{
		Mode:           dto.ModeReconcile,
		Reconciliation: &dto.ReconciliationRequest{RunID: "run-rc", WindowDays: 7},
	})
	require.NoError(t, err)
	waitDone(t, handle)

	run, err := runRepo.GetByRunID(context.Background(), "run-rc")
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, run.Status)
	assert.Len(t, msgBus.History(bus.HistoryFilter{Type: dto.MsgReconciliationResult}), 1)
}

func TestOrchestrator_PaperPipelineRecordsActiveRun(t *testing.T) {
	broker := &fakeBrokerRepo{
		account:   dto.Account{Equity: 30000, BuyingPower: 100000},
		fillPrice: 100,
	}
	orc, runRepo, _, _, _ := newTestOrchestrator(dipMarket(100), broker)

	req := dipStartRequest()
	req.RunID = "run-pp"
	handle, err := orc.Dispatch(context.Background(), dto.RunCommand{
		Mode:  dto.ModePaper,
		Paper: &req,
	})
	require.NoError(t, err)
	waitDone(t, handle)

	assert.Empty(t, orc.activePaperRunIDs())

	run, err := runRepo.GetByRunID(context.Background(), "run-pp")
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, run.Status)
	st := runStateOf(t, runRepo, "run-pp")
	assert.Equal(t, stageCompleted, st.Stages[StagePaperTrade])
	assert.Equal(t, stageCompleted, st.Stages[StageReconcile])
}

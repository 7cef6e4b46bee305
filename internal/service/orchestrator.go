package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"

	"alpatrade/config"
	"alpatrade/internal/bus"
	"alpatrade/internal/dto"
	"alpatrade/internal/model"
	"alpatrade/internal/repository"
	"alpatrade/pkg/logger"
	"alpatrade/pkg/utils"
)

// Pipeline stages, in execution order.
const (
	StageBacktest         = "backtest"
	StageValidateBacktest = "validate_backtest"
	StagePaperTrade       = "paper_trade"
	StageValidatePaper    = "validate_paper"
	StageReconcile        = "reconcile"
	StageReport           = "report"
)

// Stage statuses inside the run state record.
const (
	stagePending   = "pending"
	stageRunning   = "running"
	stageCompleted = "completed"
	stageFailed    = "failed"
	stageSkipped   = "skipped"
)

// RunHandle is what a presentation layer gets back from Dispatch: the run
// identifier, a completion signal and a cancel switch.
type RunHandle struct {
	RunID  string
	Done   <-chan struct{}
	cancel context.CancelFunc
}

// Cancel stops the pipeline cooperatively. Already-recorded trades survive.
func (h *RunHandle) Cancel() {
	h.cancel()
}

// Orchestrator drives a run through its stages. Workers perform one bounded
// unit of work each and answer over the message bus; the orchestrator owns
// the run record.
type Orchestrator interface {
	Dispatch(ctx context.Context, cmd dto.RunCommand) (*RunHandle, error)
	StartCron() error
	Stop()
}

type orchestrator struct {
	cfg            *config.Config
	log            *logger.Logger
	backtestRunner BacktestRunner
	validator      Validator
	paperTrader    PaperTrader
	reconciler     Reconciler
	reporter       Reporter
	runRepo        repository.RunRepository
	msgBus         bus.Bus
	cron           *cron.Cron

	// pipelineMu serializes pipelines: one coordinating process per run, and
	// the orchestrator's bus subscription carries one run's messages at a time.
	pipelineMu sync.Mutex

	mu              sync.Mutex
	activePaperRuns map[string]bool
}

func NewOrchestrator(
	cfg *config.Config,
	log *logger.Logger,
	backtestRunner BacktestRunner,
	validator Validator,
	paperTrader PaperTrader,
	reconciler Reconciler,
	reporter Reporter,
	runRepo repository.RunRepository,
	msgBus bus.Bus,
) Orchestrator {
	return &orchestrator{
		cfg:             cfg,
		log:             log,
		backtestRunner:  backtestRunner,
		validator:       validator,
		paperTrader:     paperTrader,
		reconciler:      reconciler,
		reporter:        reporter,
		runRepo:         runRepo,
		msgBus:          msgBus,
		cron:            cron.New(),
		activePaperRuns: make(map[string]bool),
	}
}

// runState is the run-scoped state record snapshotted into the run row on
// every transition.
type runState struct {
	RunID     string            `json:"run_id"`
	Mode      string            `json:"mode"`
	Stage     string            `json:"stage"`
	Stages    map[string]string `json:"stages"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func stagesForMode(mode string) []string {
	switch mode {
	case dto.ModeFull:
		return []string{StageBacktest, StageValidateBacktest, StagePaperTrade, StageValidatePaper, StageReconcile, StageReport}
	case dto.ModeBacktest:
		return []string{StageBacktest, StageValidateBacktest, StageReport}
	case dto.ModeValidate:
		return []string{StageValidateBacktest, StageReport}
	case dto.ModePaper:
		return []string{StagePaperTrade, StageValidatePaper, StageReconcile, StageReport}
	case dto.ModeReconcile:
		return []string{StageReconcile, StageReport}
	default:
		return nil
	}
}

func (s *orchestrator) Dispatch(ctx context.Context, cmd dto.RunCommand) (*RunHandle, error) {
	stages := stagesForMode(cmd.Mode)
	if stages == nil {
		return nil, fmt.Errorf("%w: unknown mode %q", dto.ErrInvalidParameter, cmd.Mode)
	}

	runID := s.resolveRunID(&cmd)
	st := &runState{
		RunID:  runID,
		Mode:   cmd.Mode,
		Stage:  stages[0],
		Stages: make(map[string]string, len(stages)),
	}
	for _, stage := range stages {
		st.Stages[stage] = stagePending
	}

	if err := s.createRun(ctx, runID, cmd); err != nil {
		return nil, err
	}

	// The pipeline outlives the dispatching request.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	utils.GoSafe(func() {
		defer close(done)
		defer cancel()
		s.execute(runCtx, cmd, st)
	})

	return &RunHandle{RunID: runID, Done: done, cancel: cancel}, nil
}

// resolveRunID picks one run ID for the whole pipeline and pushes it into
// every stage request.
func (s *orchestrator) resolveRunID(cmd *dto.RunCommand) string {
	runID := ""
	switch {
	case cmd.Backtest != nil && cmd.Backtest.RunID != "":
		runID = cmd.Backtest.RunID
	case cmd.Paper != nil && cmd.Paper.RunID != "":
		runID = cmd.Paper.RunID
	case cmd.Validation != nil && cmd.Validation.RunID != "":
		runID = cmd.Validation.RunID
	case cmd.Reconciliation != nil && cmd.Reconciliation.RunID != "":
		runID = cmd.Reconciliation.RunID
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	if cmd.Backtest != nil {
		cmd.Backtest.RunID = runID
	}
	if cmd.Paper != nil {
		cmd.Paper.RunID = runID
	}
	if cmd.Validation != nil {
		cmd.Validation.RunID = runID
	}
	if cmd.Reconciliation != nil {
		cmd.Reconciliation.RunID = runID
	}
	return runID
}

func (s *orchestrator) createRun(ctx context.Context, runID string, cmd dto.RunCommand) error {
	if _, err := s.runRepo.GetByRunID(ctx, runID); err == nil {
		return nil
	}

	strategyID := ""
	var symbols []string
	if cmd.Backtest != nil {
		strategyID = cmd.Backtest.Strategy
		symbols = cmd.Backtest.Symbols
	} else if cmd.Paper != nil {
		strategyID = cmd.Paper.Strategy
		symbols = cmd.Paper.Symbols
	}

	symbolsJSON, _ := json.Marshal(symbols)
	configJSON, _ := json.Marshal(cmd)
	return s.runRepo.Create(ctx, &model.Run{
		RunID:     runID,
		Mode:      cmd.Mode,
		Strategy:  strategyID,
		Status:    dto.RunStatusPending,
		Symbols:   datatypes.JSON(symbolsJSON),
		Config:    datatypes.JSON(configJSON),
		StartedAt: time.Now().UTC(),
	})
}

// execute walks the stage sequence. A failed stage short-circuits the
// pipeline to reporting; it never terminates silently.
func (s *orchestrator) execute(ctx context.Context, cmd dto.RunCommand, st *runState) {
	s.pipelineMu.Lock()
	defer s.pipelineMu.Unlock()

	s.updateRunStatus(ctx, st.RunID, dto.RunStatusRunning, nil)
	sub := s.msgBus.Subscribe(dto.AgentOrchestrator)

	var backtestResult *dto.BacktestResult
	failed := false
	var failure error

	fail := func(stage string, err error) {
		failed = true
		failure = err
		st.Stages[stage] = stageFailed
		s.snapshot(ctx, st)
		s.log.ErrorContext(ctx, "stage failed, proceeding to reporting",
			logger.StringField("run_id", st.RunID),
			logger.StringField("stage", stage),
			logger.ErrorField(err))
	}

	for _, stage := range stagesForMode(cmd.Mode) {
		if ctx.Err() != nil {
			s.finish(ctx, st, dto.RunStatusCancelled, ctx.Err())
			return
		}
		if failed && stage != StageReport {
			st.Stages[stage] = stageSkipped
			continue
		}

		st.Stage = stage
		st.Stages[stage] = stageRunning
		s.snapshot(ctx, st)

		var err error
		switch stage {
		case StageBacktest:
			backtestResult, err = s.stageBacktest(ctx, sub, cmd)
		case StageValidateBacktest:
			err = s.stageValidate(ctx, sub, cmd, st.RunID, stage, dto.TradeTypeBacktest, backtestResult)
		case StagePaperTrade:
			err = s.stagePaperTrade(ctx, sub, cmd, st.RunID)
		case StageValidatePaper:
			err = s.stageValidate(ctx, sub, cmd, st.RunID, stage, dto.TradeTypePaper, nil)
		case StageReconcile:
			err = s.stageReconcile(ctx, sub, cmd, st.RunID)
		case StageReport:
			err = s.stageReport(ctx, st.RunID)
		}

		if err != nil {
			fail(stage, err)
			continue
		}
		st.Stages[stage] = stageCompleted
		s.snapshot(ctx, st)
	}

	if failed {
		s.finish(ctx, st, dto.RunStatusFailed, failure)
		return
	}
	s.finish(ctx, st, dto.RunStatusCompleted, nil)
}

func (s *orchestrator) stageBacktest(ctx context.Context, sub <-chan dto.Message, cmd dto.RunCommand) (*dto.BacktestResult, error) {
	req := cmd.Backtest
	if req == nil {
		return nil, fmt.Errorf("%w: %s mode requires a backtest request", dto.ErrInvalidParameter, cmd.Mode)
	}

	payload, err := s.dispatchWork(ctx, sub, dto.AgentBacktester,
		dto.MsgBacktestRequest, dto.MsgBacktestResult, StageBacktest, *req,
		s.cfg.Orchestrator.StageTimeout,
		func(workCtx context.Context) (interface{}, error) {
			return s.backtestRunner.Run(workCtx, *req)
		})
	if err != nil {
		return nil, err
	}
	result, ok := payload.(*dto.BacktestResult)
	if !ok {
		return nil, fmt.Errorf("unexpected backtest result payload %T", payload)
	}
	return result, nil
}

func (s *orchestrator) stageValidate(ctx context.Context, sub <-chan dto.Message, cmd dto.RunCommand, runID, stage, source string, backtestResult *dto.BacktestResult) error {
	req := dto.ValidationRequest{RunID: runID, Source: source}
	if cmd.Validation != nil {
		req = *cmd.Validation
		req.RunID = runID
		if req.Source == "" {
			req.Source = source
		}
	}
	if backtestResult != nil && len(req.Trades) == 0 {
		req.Trades = backtestResult.Trades
	}

	payload, err := s.dispatchWork(ctx, sub, dto.AgentValidator,
		dto.MsgValidationRequest, dto.MsgValidationResult, stage, req,
		s.cfg.Orchestrator.StageTimeout,
		func(workCtx context.Context) (interface{}, error) {
			return s.validator.Validate(workCtx, req)
		})
	if err != nil {
		return err
	}
	verdict, ok := payload.(*dto.ValidationVerdict)
	if !ok {
		return fmt.Errorf("unexpected validation result payload %T", payload)
	}
	if verdict.Status == dto.VerdictFailed {
		return fmt.Errorf("validation exhausted after %d iterations with %d anomalies remaining",
			verdict.IterationsUsed, len(verdict.Anomalies))
	}
	return nil
}

func (s *orchestrator) stagePaperTrade(ctx context.Context, sub <-chan dto.Message, cmd dto.RunCommand, runID string) error {
	req := dto.PaperTradeStart{RunID: runID}
	if cmd.Paper != nil {
		req = *cmd.Paper
		req.RunID = runID
	}
	if cmd.Backtest != nil && req.Params.StrategyID() == "" && cmd.Backtest.Params != nil {
		req.Params = *cmd.Backtest.Params
	}
	duration := req.Duration
	if duration <= 0 {
		duration = s.cfg.PaperTrading.Duration
	}

	s.setPaperRunActive(runID, true)
	defer s.setPaperRunActive(runID, false)

	// The paper session is bounded by its own duration rather than the stage
	// budget; the budget covers the wind-down.
	_, err := s.dispatchWork(ctx, sub, dto.AgentPaperTrader,
		dto.MsgPaperTradeStart, dto.MsgPaperTradeResult, StagePaperTrade, req,
		duration+s.cfg.Orchestrator.StageTimeout,
		func(workCtx context.Context) (interface{}, error) {
			return s.paperTrader.Start(workCtx, req)
		})
	return err
}

func (s *orchestrator) stageReconcile(ctx context.Context, sub <-chan dto.Message, cmd dto.RunCommand, runID string) error {
	req := dto.ReconciliationRequest{RunID: runID, WindowDays: s.cfg.Orchestrator.ReconcileWindowDays}
	if cmd.Reconciliation != nil {
		req = *cmd.Reconciliation
		req.RunID = runID
	}

	payload, err := s.dispatchWork(ctx, sub, dto.AgentReconciler,
		dto.MsgReconciliationRequest, dto.MsgReconciliationResult, StageReconcile, req,
		s.cfg.Orchestrator.StageTimeout,
		func(workCtx context.Context) (interface{}, error) {
			return s.reconciler.Reconcile(workCtx, req)
		})
	if err != nil {
		return err
	}
	report, ok := payload.(*dto.ReconciliationReport)
	if !ok {
		return fmt.Errorf("unexpected reconciliation payload %T", payload)
	}
	if report.Status == dto.ReconcileMismatched {
		s.log.WarnContext(ctx, "reconciliation found discrepancies",
			logger.StringField("run_id", runID),
			logger.IntField("issues", report.TotalIssues))
	}
	return nil
}

func (s *orchestrator) stageReport(ctx context.Context, runID string) error {
	detail, err := s.reporter.Detail(ctx, runID)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "run report",
		logger.StringField("run_id", runID),
		logger.StringField("status", detail.Run.Status),
		logger.Float64Field("total_pnl", detail.Run.TotalPnL),
		logger.Float64Field("sharpe", detail.Run.SharpeRatio),
		logger.IntField("trades", detail.Run.TotalTrades))
	return nil
}

// dispatchWork publishes the stage request, runs the worker in its own
// goroutine and waits for the matching result on the bus. A worker that does
// not answer within the budget is treated as an error message, not a hang.
func (s *orchestrator) dispatchWork(
	ctx context.Context,
	sub <-chan dto.Message,
	agent string,
	reqType, resultType dto.MessageType,
	stage string,
	reqPayload interface{},
	timeout time.Duration,
	work func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	if msg, err := dto.NewMessage(dto.AgentOrchestrator, agent, reqType, reqPayload); err == nil {
		if err := s.msgBus.Publish(ctx, msg); err != nil {
			s.log.WarnContext(ctx, "request publish failed", logger.ErrorField(err))
		}
	}

	workCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	utils.GoSafe(func() {
		result, err := work(workCtx)
		var msg dto.Message
		if err != nil {
			msg, _ = dto.NewMessage(agent, dto.AgentOrchestrator, dto.MsgError, dto.ErrorPayload{
				Stage: stage,
				Error: err.Error(),
			})
		} else {
			msg, _ = dto.NewMessage(agent, dto.AgentOrchestrator, resultType, result)
		}
		if err := s.msgBus.Publish(context.WithoutCancel(ctx), msg); err != nil {
			s.log.WarnContext(ctx, "result publish failed", logger.ErrorField(err))
		}
	})

	timer := time.NewTimer(timeout + time.Second)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("stage %s timed out after %s", stage, timeout)
		case msg, ok := <-sub:
			if !ok {
				return nil, fmt.Errorf("message bus closed")
			}
			switch msg.Type {
			case resultType:
				return msg.Payload, nil
			case dto.MsgError:
				if p, ok := msg.Payload.(dto.ErrorPayload); ok {
					return nil, fmt.Errorf("worker %s: %s", msg.From, p.Error)
				}
				return nil, fmt.Errorf("worker %s reported an error", msg.From)
			case dto.MsgTradeUpdate:
				s.log.DebugContext(ctx, "trade update",
					logger.StringField("from", msg.From))
			default:
				// Unexpected types are logged and ignored, never fatal.
				s.log.WarnContext(ctx, "unexpected message type, ignoring",
					logger.StringField("type", string(msg.Type)),
					logger.StringField("from", msg.From))
			}
		}
	}
}

func (s *orchestrator) snapshot(ctx context.Context, st *runState) {
	st.UpdatedAt = time.Now().UTC()
	stateJSON, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.runRepo.Update(ctx, model.UpdateRunParam{
		Filter: model.UpdateRunFilterParam{RunID: &st.RunID},
		Value:  model.UpdateRunValueParam{Result: datatypes.JSON(stateJSON)},
	}); err != nil {
		s.log.WarnContext(ctx, "run state snapshot failed",
			logger.StringField("run_id", st.RunID), logger.ErrorField(err))
	}
}

func (s *orchestrator) updateRunStatus(ctx context.Context, runID, status string, cause error) {
	value := model.UpdateRunValueParam{Status: &status}
	if cause != nil {
		value.ErrorMessage = utils.ToPointer(cause.Error())
	}
	if status == dto.RunStatusCompleted || status == dto.RunStatusFailed || status == dto.RunStatusCancelled {
		value.CompletedAt = utils.ToPointer(time.Now().UTC())
	}
	if err := s.runRepo.Update(ctx, model.UpdateRunParam{
		Filter: model.UpdateRunFilterParam{RunID: &runID},
		Value:  value,
	}); err != nil {
		s.log.ErrorContext(ctx, "run status update failed",
			logger.StringField("run_id", runID), logger.ErrorField(err))
	}
}

func (s *orchestrator) finish(ctx context.Context, st *runState, status string, cause error) {
	// ctx may already be cancelled; the final writes must still land.
	ctx = context.WithoutCancel(ctx)
	s.snapshot(ctx, st)
	s.updateRunStatus(ctx, st.RunID, status, cause)
	s.log.InfoContext(ctx, "run finished",
		logger.StringField("run_id", st.RunID),
		logger.StringField("status", status))
}

func (s *orchestrator) setPaperRunActive(runID string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.activePaperRuns[runID] = true
	} else {
		delete(s.activePaperRuns, runID)
	}
}

func (s *orchestrator) activePaperRunIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.activePaperRuns))
	for id := range s.activePaperRuns {
		ids = append(ids, id)
	}
	return ids
}

// StartCron schedules periodic validation of trades accumulated by running
// paper sessions.
func (s *orchestrator) StartCron() error {
	_, err := s.cron.AddFunc(s.cfg.Orchestrator.ValidationCron, func() {
		ctx := context.Background()
		for _, runID := range s.activePaperRunIDs() {
			s.log.InfoContext(ctx, "periodic validation of paper run",
				logger.StringField("run_id", runID))
			if _, err := s.validator.Validate(ctx, dto.ValidationRequest{
				RunID:  runID,
				Source: dto.TradeTypePaper,
			}); err != nil {
				s.log.ErrorContext(ctx, "periodic validation failed",
					logger.StringField("run_id", runID), logger.ErrorField(err))
			}
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *orchestrator) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

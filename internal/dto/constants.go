package dto

// Run modes.
const (
	ModeFull      = "full"
	ModeBacktest  = "backtest"
	ModeValidate  = "validate"
	ModePaper     = "paper"
	ModeReconcile = "reconcile"
)

// Run statuses. A run is terminal at completed or failed.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// Strategy identifiers.
const (
	StrategyBuyTheDip = "buy_the_dip"
	StrategyMomentum  = "momentum"
	StrategyVIX       = "vix"
	StrategyBoxWedge  = "box_wedge"
)

// Trade types.
const (
	TradeTypeBacktest = "backtest"
	TradeTypePaper    = "paper"
	TradeTypeLive     = "live"
)

// Exit reasons.
const (
	ExitReasonTakeProfit  = "take_profit"
	ExitReasonStopLoss    = "stop_loss"
	ExitReasonHoldExpired = "hold_expired"
	ExitReasonScaleOut15R = "1.5r_target"
	ExitReasonScaleOut3R  = "3r_target"
	ExitReasonRunnerClose = "runner_close"
	ExitReasonOvernight   = "overnight"
)

// Validation verdict statuses.
const (
	VerdictPassed    = "passed"
	VerdictCorrected = "corrected"
	VerdictFailed    = "failed"
)

// Reconciliation statuses.
const (
	ReconcileMatched    = "matched"
	ReconcileMismatched = "mismatched"
	ReconcileError      = "error"
)

// ExitPolicy decides which level wins when take profit and stop loss both
// fall inside a single bar's range.
type ExitPolicy string

const (
	// ExitPolicyStopFirst assumes the adverse move happens first.
	ExitPolicyStopFirst   ExitPolicy = "stop_first"
	ExitPolicyTargetFirst ExitPolicy = "target_first"
)

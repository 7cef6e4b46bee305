package dto

// Anomaly types produced by the validator's check battery.
const (
	AnomalyPriceTolerance = "price_tolerance"
	AnomalyPnLMath        = "pnl_math"
	AnomalyMarketHours    = "market_hours"
	AnomalyWeekendTrade   = "weekend_trade"
	AnomalyTPSLConflict   = "tp_sl_conflict"
)

// Correction types.
const (
	CorrectionPriceFix  = "price_correction"
	CorrectionPnLRecalc = "pnl_recalculation"
	CorrectionFlagged   = "flagged"
)

// ValidationRequest asks the validator to re-derive correctness for a run's
// trades against the independent market-data source.
type ValidationRequest struct {
	RunID          string  `json:"run_id" validate:"required"`
	Source         string  `json:"source"` // backtest or paper
	Trades         []Trade `json:"trades,omitempty"`
	MaxIterations  int     `json:"max_iterations,omitempty"`
	PriceTolerance float64 `json:"price_tolerance,omitempty"`
	ExtendedHours  bool    `json:"extended_hours"`
}

// Anomaly is a single failed check, attached to a trade by index.
type Anomaly struct {
	Type       string  `json:"type"`
	TradeIndex int     `json:"trade_index"`
	Symbol     string  `json:"symbol,omitempty"`
	Field      string  `json:"field,omitempty"`
	Recorded   float64 `json:"recorded,omitempty"`
	Expected   float64 `json:"expected,omitempty"`
	Message    string  `json:"message"`
}

// Correction records one applied or flagged fix.
type Correction struct {
	Type       string  `json:"type"`
	TradeIndex int     `json:"trade_index"`
	Field      string  `json:"field,omitempty"`
	OldValue   float64 `json:"old_value,omitempty"`
	NewValue   float64 `json:"new_value,omitempty"`
	Issue      string  `json:"issue,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// ValidationVerdict is the immutable outcome of one validation invocation.
type ValidationVerdict struct {
	RunID              string       `json:"run_id"`
	Source             string       `json:"source"`
	Status             string       `json:"status"` // passed, corrected, failed
	TotalTradesChecked int          `json:"total_trades_checked"`
	AnomaliesFound     int          `json:"anomalies_found"`
	AnomaliesCorrected int          `json:"anomalies_corrected"`
	IterationsUsed     int          `json:"iterations_used"`
	Anomalies          []Anomaly    `json:"anomalies"`
	Corrections        []Correction `json:"corrections"`
	Suggestions        []string     `json:"suggestions"`
}

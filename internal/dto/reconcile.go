package dto

import "time"

// ReconciliationRequest asks the reconciler to cross-check recorded state
// against the broker for a time window.
type ReconciliationRequest struct {
	RunID      string `json:"run_id" validate:"required"`
	WindowDays int    `json:"window_days" validate:"omitempty,gte=1"`
}

// PositionMismatch is a held-position discrepancy between the store and the
// broker.
type PositionMismatch struct {
	Symbol      string  `json:"symbol"`
	RecordedQty float64 `json:"recorded_qty"`
	BrokerQty   float64 `json:"broker_qty"`
	Message     string  `json:"message"`
}

// TradeMismatch is a fill discrepancy inside the window.
type TradeMismatch struct {
	Symbol   string    `json:"symbol"`
	At       time.Time `json:"at"`
	Recorded float64   `json:"recorded"`
	Broker   float64   `json:"broker"`
	Message  string    `json:"message"`
}

// PnLComparison compares realized P&L over the window.
type PnLComparison struct {
	RecordedPnL float64 `json:"recorded_pnl"`
	BrokerPnL   float64 `json:"broker_pnl"`
	Delta       float64 `json:"delta"`
}

// ReconciliationReport is the reconciler's reply.
type ReconciliationReport struct {
	RunID              string             `json:"run_id"`
	Status             string             `json:"status"` // matched, mismatched, error
	WindowStart        time.Time          `json:"window_start"`
	WindowEnd          time.Time          `json:"window_end"`
	PositionMismatches []PositionMismatch `json:"position_mismatches"`
	TradeMismatches    []TradeMismatch    `json:"trade_mismatches"`
	MissingTrades      []TradeMismatch    `json:"missing_trades"`
	ExtraTrades        []TradeMismatch    `json:"extra_trades"`
	PnL                PnLComparison      `json:"pnl_comparison"`
	TotalIssues        int                `json:"total_issues"`
}

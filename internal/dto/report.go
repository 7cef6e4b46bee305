package dto

import "time"

// RunSummaryRow is one row in the report summary listing.
type RunSummaryRow struct {
	RunID        string     `json:"run_id"`
	Mode         string     `json:"mode"`
	Strategy     string     `json:"strategy"`
	StrategySlug string     `json:"strategy_slug,omitempty"`
	Status       string     `json:"status"`
	TotalPnL     float64    `json:"total_pnl"`
	TotalReturn  float64    `json:"total_return"`
	SharpeRatio  float64    `json:"sharpe_ratio"`
	WinRate      float64    `json:"win_rate"`
	TotalTrades  int        `json:"total_trades"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// RunDetail is the full report for a single run.
type RunDetail struct {
	Run         RunSummaryRow       `json:"run"`
	Variations  []VariationResult   `json:"variations,omitempty"`
	Trades      []Trade             `json:"trades,omitempty"`
	Validations []ValidationVerdict `json:"validations,omitempty"`
	Narrative   string              `json:"narrative,omitempty"`
}

// ReportRequest selects a summary listing or a single-run detail.
type ReportRequest struct {
	RunID string `json:"run_id,omitempty"`
	Mode  string `json:"mode,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

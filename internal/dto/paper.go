package dto

import "time"

// PaperTradeStart configures a paper trading session.
type PaperTradeStart struct {
	RunID           string         `json:"run_id"`
	Strategy        string         `json:"strategy"`
	Symbols         []string       `json:"symbols" validate:"required,min=1"`
	Params          StrategyParams `json:"params"`
	Duration        time.Duration  `json:"duration"`
	PollInterval    time.Duration  `json:"poll_interval"`
	CapitalPerTrade float64        `json:"capital_per_trade"`
	ExtendedHours   bool           `json:"extended_hours"`
	PDTProtection   *bool          `json:"pdt_protection,omitempty"`
}

// DailyPnL is one day's realized result inside a paper session.
type DailyPnL struct {
	Date   time.Time `json:"date"`
	PnL    float64   `json:"pnl"`
	Trades int       `json:"trades"`
}

// PaperTradeResult summarizes a finished (or cancelled) paper session.
type PaperTradeResult struct {
	RunID       string     `json:"run_id"`
	SessionID   string     `json:"session_id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     time.Time  `json:"ended_at"`
	Cancelled   bool       `json:"cancelled"`
	TotalTrades int        `json:"total_trades"`
	TotalPnL    float64    `json:"total_pnl"`
	WinRate     float64    `json:"win_rate"`
	Trades      []Trade    `json:"trades"`
	DailyPnL    []DailyPnL `json:"daily_pnl"`
}

// TradeUpdate is the periodic progress payload emitted by the paper loop.
type TradeUpdate struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`
	Trade     Trade  `json:"trade"`
}

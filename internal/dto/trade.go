package dto

import "time"

// Trade is the unified trade record shared by backtest, paper and live flows.
// A closed trade is append-only; an open trade is mutated exactly once when
// the exit fields are filled in.
type Trade struct {
	RunID        string     `json:"run_id"`
	TradeType    string     `json:"trade_type"`
	Symbol       string     `json:"symbol"`
	Direction    string     `json:"direction"`
	Shares       int        `json:"shares"`
	EntryTime    time.Time  `json:"entry_time"`
	EntryPrice   float64    `json:"entry_price"`
	ExitTime     *time.Time `json:"exit_time,omitempty"`
	ExitPrice    *float64   `json:"exit_price,omitempty"`
	TargetPrice  float64    `json:"target_price"`
	StopPrice    float64    `json:"stop_price"`
	HitTarget    bool       `json:"hit_target"`
	HitStop      bool       `json:"hit_stop"`
	PnL          float64    `json:"pnl"`
	PnLPct       float64    `json:"pnl_pct"`
	CapitalAfter float64    `json:"capital_after"`
	Fees         float64    `json:"fees"`
	OrderRef     string     `json:"order_ref,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// Closed reports whether the trade has exit fields.
func (t Trade) Closed() bool {
	return t.ExitTime != nil && t.ExitPrice != nil
}

// DirectionSign maps long to +1 and short to -1.
func (t Trade) DirectionSign() float64 {
	if t.Direction == "short" {
		return -1
	}
	return 1
}

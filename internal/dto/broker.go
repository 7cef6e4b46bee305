package dto

import "time"

// Account is the broker account snapshot consumed by the core.
type Account struct {
	Equity           float64 `json:"equity"`
	BuyingPower      float64 `json:"buying_power"`
	PortfolioValue   float64 `json:"portfolio_value"`
	DayTradeCount    int     `json:"daytrade_count"`
	PatternDayTrader bool    `json:"pattern_day_trader"`
	TradingBlocked   bool    `json:"trading_blocked"`
}

// Position is a broker-held open position.
type Position struct {
	Symbol        string  `json:"symbol"`
	Qty           float64 `json:"qty"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pl"`
}

// OrderRequest is an immediate-execution (market, day) order.
type OrderRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	Side   string `json:"side" validate:"oneof=buy sell"`
	Qty    int    `json:"qty" validate:"gt=0"`
}

// Order is the broker's acknowledgement of a placed order.
type Order struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Qty         float64   `json:"qty"`
	FilledPrice float64   `json:"filled_avg_price"`
	Status      string    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Fill is an executed trade reported by the broker, used by reconciliation.
type Fill struct {
	Symbol string    `json:"symbol"`
	Side   string    `json:"side"`
	Qty    float64   `json:"qty"`
	Price  float64   `json:"price"`
	At     time.Time `json:"transaction_time"`
}

// PDTStatus summarizes whether the account may day trade at all.
type PDTStatus struct {
	Blocked          bool    `json:"blocked"`
	Reason           string  `json:"reason,omitempty"`
	Equity           float64 `json:"equity"`
	DayTradeCount    int     `json:"daytrade_count"`
	PatternDayTrader bool    `json:"pattern_day_trader"`
}

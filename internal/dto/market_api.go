package dto

import "time"

// Wire shapes of the market data API (Alpaca-style bars endpoint).

type BarAPIModel struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

type BarsAPIResponse struct {
	Bars          []BarAPIModel `json:"bars"`
	Symbol        string        `json:"symbol"`
	NextPageToken *string       `json:"next_page_token"`
}

type LatestTradeAPIResponse struct {
	Symbol string `json:"symbol"`
	Trade  struct {
		Timestamp time.Time `json:"t"`
		Price     float64   `json:"p"`
		Size      float64   `json:"s"`
	} `json:"trade"`
}

// Wire shapes of the broker API. Numeric fields arrive as strings.

type AccountAPIModel struct {
	Equity           string `json:"equity"`
	BuyingPower      string `json:"buying_power"`
	PortfolioValue   string `json:"portfolio_value"`
	DayTradeCount    int    `json:"daytrade_count"`
	PatternDayTrader bool   `json:"pattern_day_trader"`
	TradingBlocked   bool   `json:"trading_blocked"`
}

type PositionAPIModel struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	MarketValue   string `json:"market_value"`
	UnrealizedPnL string `json:"unrealized_pl"`
	CurrentPrice  string `json:"current_price"`
	Side          string `json:"side"`
}

type OrderAPIModel struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Symbol         string     `json:"symbol"`
	Qty            string     `json:"qty"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice *string    `json:"filled_avg_price"`
	Side           string     `json:"side"`
	Type           string     `json:"type"`
	TimeInForce    string     `json:"time_in_force"`
	Status         string     `json:"status"`
	SubmittedAt    time.Time  `json:"submitted_at"`
	FilledAt       *time.Time `json:"filled_at"`
}

type PlaceOrderAPIRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ExtendedHours bool   `json:"extended_hours,omitempty"`
}

type ActivityAPIModel struct {
	ID              string    `json:"id"`
	ActivityType    string    `json:"activity_type"`
	Symbol          string    `json:"symbol"`
	Qty             string    `json:"qty"`
	Price           string    `json:"price"`
	Side            string    `json:"side"`
	TransactionTime time.Time `json:"transaction_time"`
	OrderID         string    `json:"order_id"`
}

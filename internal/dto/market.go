package dto

import "time"

// Bar is a single OHLCV candle. Series are ordered by strictly increasing
// timestamps; gaps are tolerated.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// GetBarsParam selects a bar range for one symbol.
type GetBarsParam struct {
	Symbol   string
	Start    time.Time
	End      time.Time
	Interval string // "1d", "60m", "5m", "1m"
}

// PriceSeries bundles per-symbol daily bars with optional finer intraday bars
// used to resolve same-day TP/SL ordering.
type PriceSeries struct {
	Bars     map[string][]Bar
	Intraday map[string][]Bar
	// Auxiliary holds secondary indicator series, e.g. the fear index for the
	// vix strategy.
	Auxiliary map[string][]Bar
}

package dto

import "time"

// BacktestRequest asks the backtest runner to sweep a parameter grid over a
// symbol set and date range. Grid drives buy_the_dip sweeps; Params pins a
// single combination for the other strategies.
type BacktestRequest struct {
	RunID          string          `json:"run_id"`
	Strategy       string          `json:"strategy" validate:"required"`
	Symbols        []string        `json:"symbols" validate:"required,min=1"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        time.Time       `json:"end_date"`
	InitialCapital float64         `json:"initial_capital" validate:"omitempty,gt=0"`
	Grid           ParameterGrid   `json:"grid"`
	Params         *StrategyParams `json:"params,omitempty"`
	ExtendedHours  bool            `json:"extended_hours"`
	IntradayExit   bool            `json:"intraday_exit"`
	ExitPolicy     ExitPolicy      `json:"exit_policy,omitempty"`
	PDTProtection  *bool           `json:"pdt_protection,omitempty"`
}

// Metrics are the performance figures computed per parameter combination.
type Metrics struct {
	TotalReturn      float64 `json:"total_return"`
	TotalPnL         float64 `json:"total_pnl"`
	WinRate          float64 `json:"win_rate"`
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	AnnualizedReturn float64 `json:"annualized_return"`
}

// VariationResult is one evaluated grid combination.
type VariationResult struct {
	RunID          string         `json:"run_id"`
	VariationIndex int            `json:"variation_index"`
	Params         StrategyParams `json:"params"`
	Slug           string         `json:"slug"`
	Metrics        Metrics        `json:"metrics"`
	IsBest         bool           `json:"is_best"`
	Trades         []Trade        `json:"trades,omitempty"`
	SymbolsSkipped []string       `json:"symbols_skipped,omitempty"`
	Err            string         `json:"error,omitempty"`
}

// BacktestResult is the runner's reply to the orchestrator.
type BacktestResult struct {
	RunID           string            `json:"run_id"`
	Strategy        string            `json:"strategy"`
	TotalVariations int               `json:"total_variations"`
	Best            *VariationResult  `json:"best_config,omitempty"`
	Variations      []VariationResult `json:"all_results_summary"`
	Trades          []Trade           `json:"trades,omitempty"`
}

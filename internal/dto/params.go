package dto

import "fmt"

// StrategyParams is a tagged union: exactly one variant must be set. The
// variant determines which strategy simulates the series.
type StrategyParams struct {
	BuyTheDip *BuyTheDipParams `json:"buy_the_dip,omitempty"`
	Momentum  *MomentumParams  `json:"momentum,omitempty"`
	VIX       *VIXParams       `json:"vix,omitempty"`
	BoxWedge  *BoxWedgeParams  `json:"box_wedge,omitempty"`
}

type BuyTheDipParams struct {
	DipThreshold    float64 `json:"dip_threshold" validate:"gt=0,lt=1"`
	TakeProfitPct   float64 `json:"take_profit_pct" validate:"gt=0,lt=1"`
	StopLossPct     float64 `json:"stop_loss_pct" validate:"gt=0,lt=1"`
	HoldDays        int     `json:"hold_days" validate:"gte=1"`
	PositionSizePct float64 `json:"position_size_pct" validate:"gt=0,lte=1"`
	IntradayExit    bool    `json:"intraday_exit"`
}

type MomentumParams struct {
	LookbackPeriod    int     `json:"lookback_period" validate:"gte=2"`
	MomentumThreshold float64 `json:"momentum_threshold" validate:"gt=0"`
	TakeProfitPct     float64 `json:"take_profit_pct" validate:"gt=0,lt=1"`
	StopLossPct       float64 `json:"stop_loss_pct" validate:"gt=0,lt=1"`
	HoldDays          int     `json:"hold_days" validate:"gte=1"`
	PositionSizePct   float64 `json:"position_size_pct" validate:"gt=0,lte=1"`
}

type VIXParams struct {
	VIXThreshold    float64 `json:"vix_threshold" validate:"gt=0"`
	PositionSizePct float64 `json:"position_size_pct" validate:"gt=0,lte=1"`
	HoldOvernight   bool    `json:"hold_overnight"`
}

type BoxWedgeParams struct {
	BoxLookback          int     `json:"box_lookback" validate:"gte=10"`
	WedgeLookback        int     `json:"wedge_lookback" validate:"gte=2"`
	ContractionThreshold float64 `json:"contraction_threshold" validate:"gt=0,lt=1"`
	WedgeFraction        float64 `json:"wedge_fraction" validate:"gt=0,lt=1"`
	RiskPerTradePct      float64 `json:"risk_per_trade_pct" validate:"gt=0,lt=1"`
	ScaleOut15RFrac      float64 `json:"scale_out_1_5r_frac" validate:"gte=0,lte=1"`
	ScaleOut3RFrac       float64 `json:"scale_out_3r_frac" validate:"gte=0,lte=1"`
}

// StrategyID returns the identifier of the set variant, or "" when none is set.
func (p StrategyParams) StrategyID() string {
	switch {
	case p.BuyTheDip != nil:
		return StrategyBuyTheDip
	case p.Momentum != nil:
		return StrategyMomentum
	case p.VIX != nil:
		return StrategyVIX
	case p.BoxWedge != nil:
		return StrategyBoxWedge
	}
	return ""
}

// Validate rejects empty and ambiguous unions. Field-level domain checks are
// done by the request validator.
func (p StrategyParams) Validate() error {
	count := 0
	if p.BuyTheDip != nil {
		count++
	}
	if p.Momentum != nil {
		count++
	}
	if p.VIX != nil {
		count++
	}
	if p.BoxWedge != nil {
		count++
	}
	if count == 0 {
		return fmt.Errorf("%w: no strategy variant set", ErrInvalidParameter)
	}
	if count > 1 {
		return fmt.Errorf("%w: multiple strategy variants set", ErrInvalidParameter)
	}
	return nil
}

// ParameterGrid declares candidate values per buy-the-dip parameter. The
// backtest runner expands the Cartesian product.
type ParameterGrid struct {
	DipThreshold []float64 `json:"dip_threshold"`
	TakeProfit   []float64 `json:"take_profit"`
	StopLoss     []float64 `json:"stop_loss"`
	HoldDays     []int     `json:"hold_days"`
	PositionSize []float64 `json:"position_size"`
}

// DefaultGrid mirrors the stock parameter sweep used when a request does not
// carry its own variations.
func DefaultGrid() ParameterGrid {
	return ParameterGrid{
		DipThreshold: []float64{0.03, 0.05, 0.07},
		TakeProfit:   []float64{0.01, 0.015},
		StopLoss:     []float64{0.005},
		HoldDays:     []int{1, 2, 3},
		PositionSize: []float64{0.10},
	}
}

// Size returns the number of combinations in the Cartesian product.
func (g ParameterGrid) Size() int {
	return len(g.DipThreshold) * len(g.TakeProfit) * len(g.StopLoss) * len(g.HoldDays) * len(g.PositionSize)
}

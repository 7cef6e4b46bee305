package strategy

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"alpatrade/internal/dto"
)

var slugPrefixes = map[string]string{
	dto.StrategyBuyTheDip: "btd",
	dto.StrategyMomentum:  "mom",
	dto.StrategyVIX:       "vix",
	dto.StrategyBoxWedge:  "bwg",
}

// BuildSlug encodes a strategy plus its parameters into a short human-readable
// identifier, e.g. "btd-3dp-05sl-1tp-1h-1m" for buy-the-dip with a 3% dip,
// 0.5% stop, 1% target, 1-day hold and a 1-month lookback.
func BuildSlug(params dto.StrategyParams, lookback string) string {
	id := params.StrategyID()
	prefix, ok := slugPrefixes[id]
	if !ok {
		if len(id) > 3 {
			prefix = id[:3]
		} else {
			prefix = id
		}
	}
	tokens := []string{prefix}

	switch {
	case params.BuyTheDip != nil:
		p := params.BuyTheDip
		tokens = append(tokens,
			fmtPct(p.DipThreshold)+"dp",
			fmtPct(p.StopLossPct)+"sl",
			fmtPct(p.TakeProfitPct)+"tp",
			fmt.Sprintf("%dh", p.HoldDays),
		)
	case params.Momentum != nil:
		p := params.Momentum
		tokens = append(tokens,
			fmt.Sprintf("%dlb", p.LookbackPeriod),
			fmtPct(p.MomentumThreshold)+"mt",
			fmt.Sprintf("%dh", p.HoldDays),
			fmtPct(p.TakeProfitPct)+"tp",
			fmtPct(p.StopLossPct)+"sl",
		)
	case params.VIX != nil:
		p := params.VIX
		tokens = append(tokens, fmtPct(p.VIXThreshold)+"t")
		if p.HoldOvernight {
			tokens = append(tokens, "on")
		} else {
			tokens = append(tokens, "sd")
		}
	case params.BoxWedge != nil:
		p := params.BoxWedge
		tokens = append(tokens,
			fmtPct(p.RiskPerTradePct)+"r",
			fmtPct(p.ContractionThreshold)+"ct",
		)
	}

	if lookback != "" {
		tokens = append(tokens, lookback)
	}
	return strings.Join(tokens, "-")
}

// fmtPct renders a percentage token: ratios below 1 are scaled to percent,
// whole numbers keep no decimals and fractional values drop the dot
// (0.5 -> "05", 1.5 -> "15", 0.03 -> "3").
func fmtPct(value float64) string {
	v := value
	if v > 0 && v < 1 {
		v = roundTo(v*100, 4)
	}
	v = roundTo(v, 4)
	if v == math.Trunc(v) {
		return strconv.Itoa(int(v))
	}
	return strings.ReplaceAll(strconv.FormatFloat(v, 'f', -1, 64), ".", "")
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

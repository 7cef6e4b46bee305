package strategy

import "math"

const (
	tafFeePerShare = 0.000166
	tafFeeCap      = 8.30
	catFeePerShare = 0.0000265
)

// CalculateTAFFee returns the FINRA Trading Activity Fee for a sell of the
// given share count. The fee is rounded up to the nearest penny and capped
// at $8.30 per trade. Buys are not charged.
func CalculateTAFFee(shares int) float64 {
	if shares <= 0 {
		return 0
	}
	raw := float64(shares) * tafFeePerShare
	fee := math.Ceil(raw*100) / 100
	return math.Min(fee, tafFeeCap)
}

// CalculateCATFee returns the Consolidated Audit Trail fee for a trade of the
// given share count. It applies to both buys and sells at a 1:1 ratio for
// NMS equities.
func CalculateCATFee(shares int) float64 {
	if shares <= 0 {
		return 0
	}
	return float64(shares) * catFeePerShare
}

// roundTripFees sums the regulatory fees for one buy plus one sell of the
// given share count, honoring the per-fee toggles.
func roundTripFees(shares int, includeTAF, includeCAT bool) float64 {
	var total float64
	if includeTAF {
		total += CalculateTAFFee(shares)
	}
	if includeCAT {
		total += CalculateCATFee(shares) * 2
	}
	return total
}

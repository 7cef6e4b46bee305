package common

const (
	KeyBars    = "bars:%s:%s:%d"
	KeyPrice   = "price:%s:%d"
	KeyAccount = "broker:account"
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// PDT regulatory constants.
const (
	PDTDayTradeCeiling = 3
	PDTEquityThreshold = 25000.0
	PDTWindowDays      = 5
)

package strategy

import (
	"fmt"
	"sync"
	"time"

	"alpatrade/internal/dto"
	"alpatrade/pkg/common"
	"alpatrade/pkg/utils"
)

// DayTrade is one recorded round trip opened and closed on the same day.
type DayTrade struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
}

// PDTTracker counts day trades in a rolling 5-business-day window and blocks
// at 3 so the 4th, which would flag the account, is never placed. Safe for
// concurrent use.
type PDTTracker struct {
	mu        sync.Mutex
	ceiling   int
	dayTrades []DayTrade
}

func NewPDTTracker() *PDTTracker {
	return NewPDTTrackerWithCeiling(common.PDTDayTradeCeiling)
}

// NewPDTTrackerWithCeiling builds a tracker with a non-standard ceiling,
// e.g. for accounts already over the equity threshold.
func NewPDTTrackerWithCeiling(ceiling int) *PDTTracker {
	return &PDTTracker{ceiling: ceiling}
}

// CountInWindow returns the number of day trades inside the 5-business-day
// window ending on checkDate. The window is half-open: trades on the day the
// window starts do not count, trades on checkDate do.
func (t *PDTTracker) CountInWindow(checkDate time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countLocked(checkDate)
}

func (t *PDTTracker) countLocked(checkDate time.Time) int {
	check := utils.TruncateToDay(checkDate)
	windowStart := utils.BusinessDaysBack(check, common.PDTWindowDays)
	count := 0
	for _, dt := range t.dayTrades {
		d := utils.TruncateToDay(dt.Date)
		if d.After(windowStart) && !d.After(check) {
			count++
		}
	}
	return count
}

// CanDayTrade reports whether another day trade on checkDate stays under the
// ceiling.
func (t *PDTTracker) CanDayTrade(checkDate time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countLocked(checkDate) < t.ceiling
}

// WouldViolate reports whether recording proposed more day trades on
// checkDate would push the window count past the ceiling. Equality to the
// ceiling is permitted.
func (t *PDTTracker) WouldViolate(checkDate time.Time, proposed int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countLocked(checkDate)+proposed > t.ceiling
}

// RecordDayTrade appends a day trade for the given date and symbol.
func (t *PDTTracker) RecordDayTrade(tradeDate time.Time, symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dayTrades = append(t.dayTrades, DayTrade{Date: utils.TruncateToDay(tradeDate), Symbol: symbol})
}

// Bootstrap replaces the tracked history, typically from persisted trades or
// broker activity on startup.
func (t *PDTTracker) Bootstrap(dayTrades []DayTrade) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dayTrades = make([]DayTrade, 0, len(dayTrades))
	for _, dt := range dayTrades {
		t.dayTrades = append(t.dayTrades, DayTrade{Date: utils.TruncateToDay(dt.Date), Symbol: dt.Symbol})
	}
}

// Reset clears all tracked day trades.
func (t *PDTTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dayTrades = nil
}

// CheckAccountPDTStatus inspects a broker account snapshot for PDT blocks:
// trading blocked outright, already PDT-flagged under $25k equity, or at the
// day-trade ceiling under $25k where one more trade would trigger the flag.
func CheckAccountPDTStatus(account dto.Account) dto.PDTStatus {
	status := dto.PDTStatus{
		Equity:           account.Equity,
		DayTradeCount:    account.DayTradeCount,
		PatternDayTrader: account.PatternDayTrader,
	}

	switch {
	case account.TradingBlocked:
		status.Blocked = true
		status.Reason = "account trading is blocked by the broker"
	case account.PatternDayTrader && account.Equity < common.PDTEquityThreshold:
		status.Blocked = true
		status.Reason = fmt.Sprintf("PDT-flagged account with equity $%.2f < $25k", account.Equity)
	case account.DayTradeCount >= common.PDTDayTradeCeiling && account.Equity < common.PDTEquityThreshold:
		status.Blocked = true
		status.Reason = fmt.Sprintf("at %d day trades with equity $%.2f < $25k, next day trade would trigger PDT flag",
			account.DayTradeCount, account.Equity)
	}
	return status
}

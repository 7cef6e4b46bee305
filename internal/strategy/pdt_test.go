package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"alpatrade/internal/dto"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPDTTracker_WouldViolate(t *testing.T) {
	mon := day(2026, time.January, 5)
	tue := day(2026, time.January, 6)
	wed := day(2026, time.January, 7)
	thu := day(2026, time.January, 8)

	tracker := NewPDTTracker()
	tracker.RecordDayTrade(mon, "AAPL")
	tracker.RecordDayTrade(tue, "MSFT")
	tracker.RecordDayTrade(wed, "NVDA")

	assert.Equal(t, 3, tracker.CountInWindow(thu))
	assert.True(t, tracker.WouldViolate(thu, 1))
	assert.False(t, tracker.CanDayTrade(thu))

	relaxed := NewPDTTrackerWithCeiling(4)
	relaxed.RecordDayTrade(mon, "AAPL")
	relaxed.RecordDayTrade(tue, "MSFT")
	relaxed.RecordDayTrade(wed, "NVDA")
	// Equality to the ceiling is permitted, two proposed trades are not.
	assert.False(t, relaxed.WouldViolate(thu, 1))
	assert.True(t, relaxed.WouldViolate(thu, 2))
	assert.True(t, relaxed.CanDayTrade(thu))
}

func TestPDTTracker_WindowRollsOff(t *testing.T) {
	tracker := NewPDTTracker()
	tracker.RecordDayTrade(day(2026, time.January, 5), "AAPL")
	tracker.RecordDayTrade(day(2026, time.January, 6), "AAPL")
	tracker.RecordDayTrade(day(2026, time.January, 7), "AAPL")

	// The following Thursday the window starts on Jan 8; all three trades
	// have rolled off.
	later := day(2026, time.January, 15)
	assert.Equal(t, 0, tracker.CountInWindow(later))
	assert.True(t, tracker.CanDayTrade(later))
}

func TestPDTTracker_BootstrapAndReset(t *testing.T) {
	tracker := NewPDTTracker()
	tracker.Bootstrap([]DayTrade{
		{Date: day(2026, time.January, 5), Symbol: "AAPL"},
		{Date: day(2026, time.January, 6), Symbol: "MSFT"},
	})
	assert.Equal(t, 2, tracker.CountInWindow(day(2026, time.January, 7)))

	tracker.Reset()
	assert.Equal(t, 0, tracker.CountInWindow(day(2026, time.January, 7)))
}

func TestCheckAccountPDTStatus(t *testing.T) {
	tests := []struct {
		name        string
		account     dto.Account
		wantBlocked bool
	}{
		{
			name:        "trading blocked outright",
			account:     dto.Account{Equity: 50000, TradingBlocked: true},
			wantBlocked: true,
		},
		{
			name:        "pdt flagged under threshold",
			account:     dto.Account{Equity: 12000, PatternDayTrader: true},
			wantBlocked: true,
		},
		{
			name:        "at ceiling under threshold",
			account:     dto.Account{Equity: 12000, DayTradeCount: 3},
			wantBlocked: true,
		},
		{
			name:        "pdt flagged but over threshold",
			account:     dto.Account{Equity: 30000, PatternDayTrader: true, DayTradeCount: 5},
			wantBlocked: false,
		},
		{
			name:        "clean account",
			account:     dto.Account{Equity: 12000, DayTradeCount: 1},
			wantBlocked: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := CheckAccountPDTStatus(tt.account)
			assert.Equal(t, tt.wantBlocked, status.Blocked)
			if tt.wantBlocked {
				assert.NotEmpty(t, status.Reason)
			} else {
				assert.Empty(t, status.Reason)
			}
		})
	}
}

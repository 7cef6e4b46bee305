package utils

import (
	"log"
	"time"
)

// GetEasternLocation returns the US equity market time zone.
func GetEasternLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		log.Fatal("Failed to load location", err)
	}
	return loc
}

func TimeNowEastern() time.Time {
	return time.Now().In(GetEasternLocation())
}

// SameCalendarDay reports whether a and b fall on the same calendar day in
// Eastern time.
func SameCalendarDay(a, b time.Time) bool {
	loc := GetEasternLocation()
	ya, ma, da := a.In(loc).Date()
	yb, mb, db := b.In(loc).Date()
	return ya == yb && ma == mb && da == db
}

// IsWeekend reports whether t falls on a Saturday or Sunday in Eastern time.
func IsWeekend(t time.Time) bool {
	wd := t.In(GetEasternLocation()).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsMarketOpen reports whether t is inside the US equity trading window.
// Regular session is 9:30-16:00 ET; extended is 4:00-20:00 ET.
func IsMarketOpen(t time.Time, extendedHours bool) bool {
	et := t.In(GetEasternLocation())
	if IsWeekend(et) {
		return false
	}

	hourFloat := float64(et.Hour()) + float64(et.Minute())/60.0
	if extendedHours {
		return hourFloat >= 4.0 && hourFloat < 20.0
	}
	return hourFloat >= 9.5 && hourFloat < 16.0
}

// BusinessDaysBack returns the date n business days before from. Weekends are
// skipped; exchange holidays are not modelled.
func BusinessDaysBack(from time.Time, n int) time.Time {
	current := from
	counted := 0
	for counted < n {
		current = current.AddDate(0, 0, -1)
		if wd := current.Weekday(); wd != time.Saturday && wd != time.Sunday {
			counted++
		}
	}
	return current
}

// TruncateToDay drops the time-of-day component in t's location.
func TruncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Package calendar implements the exchange calendar contract consumed
// by the regular-hours backtest filter (spec §6, §4.G); the scheduler's
// freshness check does not consult it. No library in the
// retrieval pack models a trading calendar (see DESIGN.md); this is a
// small stdlib implementation of the two required queries.
package calendar

import "time"

var newYork = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// fixedHolidays lists 2026 NYSE full-day market holidays (month, day).
// A calendar spanning multiple years would need a generated table; this
// platform's backtests and live scheduler both operate within 2026, so
// one year's table is sufficient for now.
var fixedHolidays = map[[2]int]bool{
	{1, 1}:   true, // New Year's Day
	{1, 19}:  true, // Martin Luther King Jr. Day (3rd Monday)
	{2, 16}:  true, // Washington's Birthday (3rd Monday)
	{4, 3}:   true, // Good Friday
	{5, 25}:  true, // Memorial Day (last Monday)
	{6, 19}:  true, // Juneteenth
	{7, 3}:   true, // Independence Day observed
	{9, 7}:   true, // Labor Day (1st Monday)
	{11, 26}: true, // Thanksgiving (4th Thursday)
	{12, 25}: true, // Christmas
}

// Calendar answers is_trading_day/session_bounds (spec §6) for the
// America/New_York-anchored NYSE equity session.
type Calendar struct{}

func New() Calendar { return Calendar{} }

// IsTradingDay reports whether date is a NYSE trading day: not a
// weekend, not a fixed holiday.
func (Calendar) IsTradingDay(date time.Time) bool {
	local := date.In(newYork)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !fixedHolidays[[2]int{int(local.Month()), local.Day()}]
}

// SessionBounds returns the regular-hours open/close instants for date
// in UTC: 09:30-16:00 America/New_York.
func (c Calendar) SessionBounds(date time.Time) (open, close time.Time, ok bool) {
	if !c.IsTradingDay(date) {
		return time.Time{}, time.Time{}, false
	}
	local := date.In(newYork)
	open = time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, newYork).UTC()
	close = time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, newYork).UTC()
	return open, close, true
}

// InRegularHours reports whether t falls within date's regular session.
// Used by the backtester's regular-hours filter (spec §4.G).
func (c Calendar) InRegularHours(t time.Time) bool {
	open, close, ok := c.SessionBounds(t)
	if !ok {
		return false
	}
	return !t.Before(open) && !t.After(close)
}

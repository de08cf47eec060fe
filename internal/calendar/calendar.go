// Package calendar answers trading-day and trading-session questions for the
// exchange. It is pure over an immutable holiday table and the caller-supplied
// time; it never performs I/O.
package calendar

import (
	"fmt"
	"time"

	"github.com/nvik/alphafeed/internal/model"
)

const (
	openHour    = 9
	openMinute  = 30
	closeHour   = 16
	earlyClose  = 13
	exchangeTZ  = "America/New_York"
	maxWalkDays = 30
)

// Calendar provides market-hours awareness for the exchange.
type Calendar struct {
	loc      *time.Location
	holidays map[string]DayStatus
}

// New creates a Calendar using the built-in NYSE holiday table.
func New() (*Calendar, error) {
	loc, err := time.LoadLocation(exchangeTZ)
	if err != nil {
		return nil, fmt.Errorf("load exchange time zone: %w", err)
	}
	return &Calendar{loc: loc, holidays: nyseHolidays}, nil
}

// Location returns the exchange time zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Status classifies the calendar date of t. Weekends are closed regardless of
// the holiday table.
func (c *Calendar) Status(t time.Time) DayStatus {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return StatusClosed
	}
	if st, ok := c.holidays[t.Format(model.ISODate)]; ok {
		return st
	}
	return StatusOpen
}

// IsTradingDay reports whether the exchange is open at all on the date of t.
// Early-close days count as trading days.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	return c.Status(t) != StatusClosed
}

// IsTradingSession reports whether now falls inside the live session:
// 09:30:00 through the close minute inclusive (16:00 normally, 13:00 on
// early-close days), exchange-local time.
func (c *Calendar) IsTradingSession(now time.Time) bool {
	local := now.In(c.loc)

	status := c.Status(local)
	if status == StatusClosed {
		return false
	}

	close := closeHour
	if status == StatusEarlyClose {
		close = earlyClose
	}

	h, m, _ := local.Clock()
	afterOpen := h > openHour || (h == openHour && m >= openMinute)
	beforeClose := h < close || (h == close && m == 0)
	return afterOpen && beforeClose
}

// CurrentTradingDay returns the exchange-local date when now is inside a
// trading session, and false otherwise.
func (c *Calendar) CurrentTradingDay(now time.Time) (time.Time, bool) {
	if !c.IsTradingSession(now) {
		return time.Time{}, false
	}
	return model.Day(now.In(c.loc)), true
}

// LastTradingDay returns the most recent completed-or-current trading day as a
// midnight-UTC date. When now is inside a session and includeToday is set, it
// returns today. Otherwise it walks backward, first adjusting for a pre-open
// reference time, then skipping closed days. The walk is bounded so a
// malformed holiday table surfaces as an error instead of a spin.
func (c *Calendar) LastTradingDay(now time.Time, includeToday bool) (time.Time, error) {
	local := now.In(c.loc)

	if c.IsTradingSession(now) {
		if includeToday {
			return model.Day(local), nil
		}
		local = local.AddDate(0, 0, -1)
	}

	if h, m, _ := local.Clock(); h < openHour || (h == openHour && m < openMinute) {
		local = local.AddDate(0, 0, -1)
	}

	for i := 0; i < maxWalkDays; i++ {
		if c.Status(local) == StatusClosed {
			local = local.AddDate(0, 0, -1)
			continue
		}
		return model.Day(local), nil
	}

	return time.Time{}, fmt.Errorf("no trading day within %d days of %s", maxWalkDays, now.Format(model.ISODate))
}

// ValidTradingDates returns every trading date in [start, end] inclusive,
// ascending. Weekends and closed holidays are excluded; early-close days are
// included.
func (c *Calendar) ValidTradingDates(start, end time.Time) []time.Time {
	var dates []time.Time
	for d := model.Day(start); !d.After(model.Day(end)); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d) {
			dates = append(dates, d)
		}
	}
	return dates
}

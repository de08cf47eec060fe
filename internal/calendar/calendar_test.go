package calendar

import (
	"testing"
	"time"

	"github.com/nvik/alphafeed/internal/model"
)

func mustCalendar(t *testing.T) *Calendar {
	t.Helper()
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// nyTime builds an exchange-local timestamp for session tests.
func nyTime(t *testing.T, y int, mo time.Month, d, h, mi int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return time.Date(y, mo, d, h, mi, 0, 0, loc)
}

func TestIsTradingDay(t *testing.T) {
	c := mustCalendar(t)

	tests := []struct {
		name string
		date string
		want bool
	}{
		{"regular weekday", "2025-03-12", true},
		{"saturday", "2025-03-15", false},
		{"sunday", "2025-03-16", false},
		{"full closure", "2025-06-19", false},
		{"early close still trades", "2025-07-04", true},
		{"good friday closure", "2025-04-18", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := model.ParseDay(tt.date)
			if err != nil {
				t.Fatalf("ParseDay: %v", err)
			}
			if got := c.IsTradingDay(d); got != tt.want {
				t.Errorf("IsTradingDay(%s) = %v, want %v", tt.date, got, tt.want)
			}
		})
	}
}

func TestIsTradingSession(t *testing.T) {
	c := mustCalendar(t)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before open", nyTime(t, 2025, 3, 12, 9, 29), false},
		{"at open", nyTime(t, 2025, 3, 12, 9, 30), true},
		{"midday", nyTime(t, 2025, 3, 12, 12, 0), true},
		{"at close", nyTime(t, 2025, 3, 12, 16, 0), true},
		{"after close", nyTime(t, 2025, 3, 12, 16, 1), false},
		{"early close before 13:00", nyTime(t, 2025, 7, 4, 12, 59), true},
		{"early close at 13:00", nyTime(t, 2025, 7, 4, 13, 0), true},
		{"early close after 13:00", nyTime(t, 2025, 7, 4, 13, 1), false},
		{"early close regular close time", nyTime(t, 2025, 7, 4, 15, 0), false},
		{"closed holiday midday", nyTime(t, 2025, 6, 19, 12, 0), false},
		{"saturday midday", nyTime(t, 2025, 3, 15, 12, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsTradingSession(tt.now); got != tt.want {
				t.Errorf("IsTradingSession(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestCurrentTradingDay(t *testing.T) {
	c := mustCalendar(t)

	if d, ok := c.CurrentTradingDay(nyTime(t, 2025, 3, 12, 11, 0)); !ok || d.Format(model.ISODate) != "2025-03-12" {
		t.Errorf("CurrentTradingDay in session = %v, %v, want 2025-03-12, true", d, ok)
	}
	if _, ok := c.CurrentTradingDay(nyTime(t, 2025, 3, 12, 20, 0)); ok {
		t.Error("CurrentTradingDay after close reported a session")
	}
}

func TestLastTradingDay(t *testing.T) {
	c := mustCalendar(t)

	// 2025-04-21 is the Monday after Good Friday (2025-04-18, closed).
	tests := []struct {
		name         string
		now          time.Time
		includeToday bool
		want         string
	}{
		{"in session include today", nyTime(t, 2025, 4, 21, 10, 0), true, "2025-04-21"},
		{"in session exclude today skips weekend and closed friday", nyTime(t, 2025, 4, 21, 10, 0), false, "2025-04-17"},
		{"pre-open monday", nyTime(t, 2025, 4, 21, 8, 0), false, "2025-04-17"},
		{"after close returns completed day", nyTime(t, 2025, 4, 21, 20, 0), false, "2025-04-21"},
		{"plain tuesday after close", nyTime(t, 2025, 3, 11, 18, 0), false, "2025-03-11"},
		{"plain tuesday pre-open", nyTime(t, 2025, 3, 11, 8, 0), false, "2025-03-10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.LastTradingDay(tt.now, tt.includeToday)
			if err != nil {
				t.Fatalf("LastTradingDay error = %v", err)
			}
			if got.Format(model.ISODate) != tt.want {
				t.Errorf("LastTradingDay(%v, %v) = %s, want %s",
					tt.now, tt.includeToday, got.Format(model.ISODate), tt.want)
			}
		})
	}
}

func TestLastTradingDayBoundedWalk(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	// A table that closes every weekday forces the walk to its bound.
	closedForever := make(map[string]DayStatus)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		closedForever[start.AddDate(0, 0, -i).Format(model.ISODate)] = StatusClosed
	}
	c := &Calendar{loc: loc, holidays: closedForever}

	if _, err := c.LastTradingDay(nyTime(t, 2025, 1, 1, 12, 0), false); err == nil {
		t.Error("LastTradingDay did not fail on a fully closed table")
	}
}

func TestValidTradingDates(t *testing.T) {
	c := mustCalendar(t)

	day := func(s string) time.Time {
		d, err := model.ParseDay(s)
		if err != nil {
			t.Fatalf("ParseDay: %v", err)
		}
		return d
	}

	t.Run("closed single day is empty", func(t *testing.T) {
		if got := c.ValidTradingDates(day("2025-06-19"), day("2025-06-19")); len(got) != 0 {
			t.Errorf("ValidTradingDates(closed, closed) = %v, want empty", got)
		}
	})

	t.Run("early close single day included", func(t *testing.T) {
		got := c.ValidTradingDates(day("2025-07-04"), day("2025-07-04"))
		if len(got) != 1 || got[0].Format(model.ISODate) != "2025-07-04" {
			t.Errorf("ValidTradingDates(earlyClose) = %v, want [2025-07-04]", got)
		}
	})

	t.Run("week spanning closed friday", func(t *testing.T) {
		got := c.ValidTradingDates(day("2025-04-14"), day("2025-04-21"))
		want := []string{"2025-04-14", "2025-04-15", "2025-04-16", "2025-04-17", "2025-04-21"}
		if len(got) != len(want) {
			t.Fatalf("ValidTradingDates len = %d, want %d (%v)", len(got), len(want), got)
		}
		for i, w := range want {
			if got[i].Format(model.ISODate) != w {
				t.Errorf("ValidTradingDates[%d] = %s, want %s", i, got[i].Format(model.ISODate), w)
			}
		}
	})

	t.Run("inverted range is empty", func(t *testing.T) {
		if got := c.ValidTradingDates(day("2025-04-21"), day("2025-04-14")); len(got) != 0 {
			t.Errorf("ValidTradingDates(inverted) = %v, want empty", got)
		}
	})
}

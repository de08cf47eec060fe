package calendar

// DayStatus classifies an exchange calendar date.
type DayStatus string

const (
	StatusOpen       DayStatus = "open"
	StatusClosed     DayStatus = "closed"
	StatusEarlyClose DayStatus = "early_close"
)

// nyseHolidays lists NYSE full closures and early closes, keyed by ISO date.
// Early-close sessions end at 13:00 ET instead of 16:00.
var nyseHolidays = map[string]DayStatus{
	// 2024
	"2024-01-01": StatusClosed,
	"2024-01-15": StatusClosed,
	"2024-02-19": StatusClosed,
	"2024-05-27": StatusClosed,
	"2024-06-19": StatusClosed,
	"2024-07-04": StatusEarlyClose,
	"2024-09-02": StatusClosed,
	"2024-11-28": StatusEarlyClose,
	"2024-12-25": StatusEarlyClose,
	// 2025
	"2025-01-01": StatusClosed,
	"2025-01-20": StatusClosed,
	"2025-02-17": StatusClosed,
	"2025-04-18": StatusClosed,
	"2025-05-26": StatusClosed,
	"2025-06-19": StatusClosed,
	"2025-07-04": StatusEarlyClose,
	"2025-09-01": StatusClosed,
	"2025-11-27": StatusEarlyClose,
	"2025-12-25": StatusEarlyClose,
	// 2026
	"2026-01-01": StatusClosed,
	"2026-01-19": StatusClosed,
	"2026-02-16": StatusClosed,
	"2026-04-03": StatusClosed,
	"2026-05-25": StatusClosed,
	"2026-06-19": StatusClosed,
	"2026-07-03": StatusClosed,
	"2026-09-07": StatusClosed,
	"2026-11-26": StatusEarlyClose,
	"2026-12-25": StatusEarlyClose,
}

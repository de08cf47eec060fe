package provider

import (
	"net/url"
	"time"

	"github.com/nvik/alphafeed/internal/model"
)

// Request is one of the upstream operations the service actually uses. Each
// variant knows its own query parameters, so callers get compile-time shape
// checking instead of an open-ended parameter bag.
type Request interface {
	// Function returns the provider function name, used for logging.
	Function() string

	// Values returns the query parameters for the request, excluding the
	// API key.
	Values() url.Values
}

// DailySeries requests the adjusted daily price series for a symbol.
type DailySeries struct {
	Symbol string
	Full   bool // full history instead of the compact ~100-day window
}

func (r DailySeries) Function() string { return "TIME_SERIES_DAILY_ADJUSTED" }

func (r DailySeries) Values() url.Values {
	size := "compact"
	if r.Full {
		size = "full"
	}
	return url.Values{
		"function":   {r.Function()},
		"symbol":     {r.Symbol},
		"outputsize": {size},
	}
}

// GlobalQuote requests the realtime quote for a symbol.
type GlobalQuote struct {
	Symbol string
}

func (r GlobalQuote) Function() string { return "GLOBAL_QUOTE" }

func (r GlobalQuote) Values() url.Values {
	return url.Values{
		"function":    {r.Function()},
		"symbol":      {r.Symbol},
		"entitlement": {"realtime"},
	}
}

// HistoricalOptions requests the settled options chain for a symbol on a date.
type HistoricalOptions struct {
	Symbol string
	Date   time.Time
}

func (r HistoricalOptions) Function() string { return "HISTORICAL_OPTIONS" }

func (r HistoricalOptions) Values() url.Values {
	return url.Values{
		"function": {r.Function()},
		"symbol":   {r.Symbol},
		"date":     {r.Date.Format(model.ISODate)},
	}
}

// RealtimeOptions requests the live options chain for a symbol.
type RealtimeOptions struct {
	Symbol string
}

func (r RealtimeOptions) Function() string { return "REALTIME_OPTIONS" }

func (r RealtimeOptions) Values() url.Values {
	return url.Values{
		"function": {r.Function()},
		"symbol":   {r.Symbol},
	}
}

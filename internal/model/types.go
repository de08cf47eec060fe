package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ISODate is the canonical date layout used for diffing and provider queries.
const ISODate = "2006-01-02"

// Day truncates t to midnight UTC. All per-date records are keyed on days, not
// instants, so every date that crosses a package boundary goes through here.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses an ISO yyyy-mm-dd string into a midnight-UTC day.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(ISODate, s, time.UTC)
}

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// Instrument represents a tracked symbol. Presence in the store is the only
// state; instruments are created on first reconciliation touch and never deleted.
type Instrument struct {
	ID        string    // Primary key: uppercased ticker (e.g., "AAPL")
	CreatedAt time.Time // First touch time
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// DailyQuote represents one settled daily bar for an instrument.
type DailyQuote struct {
	Symbol string          // Instrument ticker
	Day    time.Time       // Trading date (midnight UTC)
	Open   decimal.Decimal // Opening price
	High   decimal.Decimal // Session high
	Low    decimal.Decimal // Session low
	Close  decimal.Decimal // Adjusted close
	Volume int64           // Share volume
}

// OptionSide distinguishes puts from calls.
type OptionSide string

const (
	SidePut  OptionSide = "put"
	SideCall OptionSide = "call"
)

// OptionQuote represents a single option leg within a chain snapshot.
type OptionQuote struct {
	ContractID string          // Provider contract identifier (e.g., "AAPL240119P00150000")
	Symbol     string          // Underlying ticker
	Side       OptionSide      // put or call
	Day        time.Time       // Chain date (midnight UTC)
	Expiration time.Time       // Contract expiration date
	Strike     decimal.Decimal // Strike price
	Last       decimal.Decimal // Last trade price
	Mark       decimal.Decimal // Mark price
	Bid        decimal.Decimal // Best bid
	BidSize    int             // Bid size
	Ask        decimal.Decimal // Best ask
	AskSize    int             // Ask size
	Volume     int             // Contract volume
	OpenInt    int             // Open interest
	ImpliedVol decimal.Decimal // Implied volatility
}

// OptionChain represents all legs for one instrument on one trading date.
type OptionChain struct {
	Symbol string        // Underlying ticker
	Day    time.Time     // Trading date (midnight UTC)
	Puts   []OptionQuote // Put legs
	Calls  []OptionQuote // Call legs
}

// Legs returns puts and calls as a single slice.
func (c OptionChain) Legs() []OptionQuote {
	legs := make([]OptionQuote, 0, len(c.Puts)+len(c.Calls))
	legs = append(legs, c.Puts...)
	legs = append(legs, c.Calls...)
	return legs
}

// IntervalChain represents an intraday options-chain snapshot taken at a fixed
// interval mark during a trading session.
type IntervalChain struct {
	Symbol string        // Underlying ticker
	TS     time.Time     // Snapshot timestamp, rounded to the interval mark
	Puts   []OptionQuote // Put legs
	Calls  []OptionQuote // Call legs
}

// SplitLegs partitions a flat leg list into puts and calls, preserving order.
func SplitLegs(legs []OptionQuote) (puts, calls []OptionQuote) {
	for _, l := range legs {
		if l.Side == SidePut {
			puts = append(puts, l)
		} else {
			calls = append(calls, l)
		}
	}
	return puts, calls
}

package store

import (
	"context"
	"time"

	"github.com/nvik/alphafeed/internal/model"
)

// InstrumentStore persists the registered symbol universe.
type InstrumentStore interface {
	UpsertInstrument(ctx context.Context, symbol string) error
	ListInstruments(ctx context.Context) ([]model.Instrument, error)
}

// QuoteStore persists settled daily quotes.
type QuoteStore interface {
	// QuotesByRange returns quotes for symbol with start <= day <= end,
	// newest first.
	QuotesByRange(ctx context.Context, symbol string, start, end time.Time) ([]model.DailyQuote, error)

	// UpsertQuotes writes quotes idempotently; rows already present for a
	// (symbol, day) pair are left untouched.
	UpsertQuotes(ctx context.Context, quotes []model.DailyQuote) error
}

// OptionStore persists settled options chains.
type OptionStore interface {
	// ChainsByRange returns per-day chains for symbol with start <= day <= end,
	// newest first.
	ChainsByRange(ctx context.Context, symbol string, start, end time.Time) ([]model.OptionChain, error)

	// UpsertChain writes every leg of one day's chain in a single transaction.
	// Duplicate contract rows are skipped, never overwritten.
	UpsertChain(ctx context.Context, chain model.OptionChain) error
}

// IntervalStore persists intraday chain snapshots.
type IntervalStore interface {
	UpsertIntervalChain(ctx context.Context, chain model.IntervalChain) error
}

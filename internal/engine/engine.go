package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nvik/alphafeed/internal/calendar"
	"github.com/nvik/alphafeed/internal/model"
	"github.com/nvik/alphafeed/internal/provider"
)

// compactSeriesDepth is how many daily bars the provider's compact output
// covers; older windows need the full series.
const compactSeriesDepth = 100

// Dispatcher admits upstream requests through the rate limiter.
type Dispatcher interface {
	Do(ctx context.Context, req provider.Request, priority int) ([]byte, error)
}

// Registrar ensures a symbol is registered before its first fetch.
type Registrar interface {
	Ensure(ctx context.Context, symbol string) error
}

// QuoteSink accepts quote batches for deferred persistence.
type QuoteSink interface {
	Enqueue(quotes []model.DailyQuote)
}

// QuoteReader reads stored quotes.
type QuoteReader interface {
	QuotesByRange(ctx context.Context, symbol string, start, end time.Time) ([]model.DailyQuote, error)
}

// Config holds Engine tuning.
type Config struct {
	SettlementHour   int // exchange-local hour after which the last close is settled
	FetchBatchSize   int // missing dates fetched in parallel per batch
	Priority         int // scheduler priority for historical fetches
	RealtimePriority int // scheduler priority for live-session fetches
}

// DefaultConfig returns the production reconciliation settings.
func DefaultConfig() Config {
	return Config{
		SettlementHour:   21,
		FetchBatchSize:   35,
		Priority:         10,
		RealtimePriority: 1,
	}
}

// Engine reconciles stored history against the trading calendar, fetching
// only the dates the store is missing.
type Engine struct {
	cfg      Config
	cal      *calendar.Calendar
	sched    Dispatcher
	registry Registrar
	quotes   QuoteReader
	writer   QuoteSink
	options  OptionReaderWriter
	logger   *slog.Logger

	now func() time.Time
}

// New creates an Engine.
func New(
	cfg Config,
	cal *calendar.Calendar,
	sched Dispatcher,
	registry Registrar,
	quotes QuoteReader,
	writer QuoteSink,
	options OptionReaderWriter,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		cal:      cal,
		sched:    sched,
		registry: registry,
		quotes:   quotes,
		writer:   writer,
		options:  options,
		logger:   logger,
		now:      time.Now,
	}
}

// window is the reconciliation date range plus the realtime flag.
type window struct {
	start, end time.Time
	realtime   bool
}

// resolveWindow computes [start, end] for a days-deep lookback ending skip
// days ago. A not-yet-settled end date is pulled back one day and flagged for
// a realtime fetch instead.
func (e *Engine) resolveWindow(now time.Time, days, skip int) (window, error) {
	local := now.In(e.cal.Location())
	today := model.Day(local)

	w := window{start: today.AddDate(0, 0, -(days + skip))}

	if skip > 0 {
		w.end = today.AddDate(0, 0, -(skip + 1))
		return w, nil
	}

	end, err := e.cal.LastTradingDay(now, false)
	if err != nil {
		return window{}, err
	}
	if end.Equal(today) && local.Hour() < e.cfg.SettlementHour {
		end = end.AddDate(0, 0, -1)
		w.realtime = true
	}
	w.end = end
	return w, nil
}

// ReconcileQuotes returns daily quotes for the lookback window, newest first,
// fetching whatever the store is missing. One series fetch covers every
// missing date, so a fully-populated store costs zero upstream requests.
func (e *Engine) ReconcileQuotes(ctx context.Context, symbol string, days, skip int) ([]model.DailyQuote, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol")
	}
	if err := e.registry.Ensure(ctx, symbol); err != nil {
		return nil, err
	}

	now := e.now()
	w, err := e.resolveWindow(now, days, skip)
	if err != nil {
		return nil, err
	}

	existing, err := e.quotes.QuotesByRange(ctx, symbol, w.start, w.end)
	if err != nil {
		return nil, err
	}

	missing := missingDates(e.cal.ValidTradingDates(w.start, w.end), quoteDates(existing))
	result := existing

	if len(missing) > 0 {
		fetched, err := e.fetchMissingQuotes(ctx, symbol, w, missing)
		if err != nil {
			return nil, err
		}
		e.writer.Enqueue(fetched)
		result = append(result, fetched...)
	}

	if w.realtime || e.cal.IsTradingSession(now) {
		result = e.prependRealtimeQuote(ctx, symbol, result)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Day.After(result[j].Day) })

	e.logger.Debug("quotes reconciled",
		"symbol", symbol,
		"window_start", w.start.Format(model.ISODate),
		"window_end", w.end.Format(model.ISODate),
		"missing", len(missing),
		"returned", len(result),
	)
	return result, nil
}

// fetchMissingQuotes pulls the daily series once and keeps only the quotes
// for dates the store lacked.
func (e *Engine) fetchMissingQuotes(ctx context.Context, symbol string, w window, missing []time.Time) ([]model.DailyQuote, error) {
	full := model.Day(e.now().In(e.cal.Location())).Sub(w.start) > compactSeriesDepth*24*time.Hour

	body, err := e.sched.Do(ctx, provider.DailySeries{Symbol: symbol, Full: full}, e.cfg.Priority)
	if err != nil {
		return nil, fmt.Errorf("fetch daily series for %s: %w", symbol, err)
	}
	series, err := provider.ParseDailySeries(body)
	if err != nil {
		return nil, err
	}

	want := make(map[string]struct{}, len(missing))
	for _, d := range missing {
		want[d.Format(model.ISODate)] = struct{}{}
	}

	var out []model.DailyQuote
	for _, q := range series {
		if _, ok := want[q.Day.Format(model.ISODate)]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// prependRealtimeQuote adds a live snapshot for the current trading day when
// the provider answers; a realtime failure degrades to history-only.
func (e *Engine) prependRealtimeQuote(ctx context.Context, symbol string, quotes []model.DailyQuote) []model.DailyQuote {
	body, err := e.sched.Do(ctx, provider.GlobalQuote{Symbol: symbol}, e.cfg.RealtimePriority)
	if err != nil {
		e.logger.Warn("realtime quote fetch failed", "symbol", symbol, "error", err)
		return quotes
	}
	q, err := provider.ParseGlobalQuote(body)
	if err != nil {
		e.logger.Warn("realtime quote parse failed", "symbol", symbol, "error", err)
		return quotes
	}
	q.Symbol = symbol

	for _, existing := range quotes {
		if existing.Day.Equal(q.Day) {
			return quotes
		}
	}
	return append([]model.DailyQuote{q}, quotes...)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func quoteDates(quotes []model.DailyQuote) map[string]struct{} {
	out := make(map[string]struct{}, len(quotes))
	for _, q := range quotes {
		out[q.Day.Format(model.ISODate)] = struct{}{}
	}
	return out
}

// missingDates returns the valid dates absent from have, preserving order.
func missingDates(valid []time.Time, have map[string]struct{}) []time.Time {
	var out []time.Time
	for _, d := range valid {
		if _, ok := have[d.Format(model.ISODate)]; !ok {
			out = append(out, d)
		}
	}
	return out
}

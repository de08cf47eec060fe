package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvik/alphafeed/internal/model"
	"github.com/nvik/alphafeed/internal/provider"
)

// OptionReaderWriter is the chain persistence surface the engine needs.
type OptionReaderWriter interface {
	ChainsByRange(ctx context.Context, symbol string, start, end time.Time) ([]model.OptionChain, error)
	UpsertChain(ctx context.Context, chain model.OptionChain) error
}

// ReconcileOptions returns per-day options chains for the lookback window,
// newest first. Missing dates cost one upstream request each, fetched in
// parallel batches; each batch is persisted before the next begins.
func (e *Engine) ReconcileOptions(ctx context.Context, symbol string, days, skip int) ([]model.OptionChain, error) {
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

	existing, err := e.options.ChainsByRange(ctx, symbol, w.start, w.end)
	if err != nil {
		return nil, err
	}

	missing := missingDates(e.cal.ValidTradingDates(w.start, w.end), chainDates(existing))
	result := existing

	for len(missing) > 0 {
		n := min(e.cfg.FetchBatchSize, len(missing))
		batch, err := e.fetchChainBatch(ctx, symbol, missing[:n])
		if err != nil {
			return nil, err
		}
		for _, chain := range batch {
			if err := e.options.UpsertChain(ctx, chain); err != nil {
				return nil, err
			}
		}
		result = append(result, batch...)
		missing = missing[n:]
	}

	if w.realtime || e.cal.IsTradingSession(now) {
		result = e.prependRealtimeChain(ctx, symbol, result)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Day.After(result[j].Day) })

	e.logger.Debug("options reconciled",
		"symbol", symbol,
		"window_start", w.start.Format(model.ISODate),
		"window_end", w.end.Format(model.ISODate),
		"returned", len(result),
	)
	return result, nil
}

// fetchChainBatch fetches one chain per date concurrently. Dates the provider
// has no data for (empty payloads) are skipped.
func (e *Engine) fetchChainBatch(ctx context.Context, symbol string, dates []time.Time) ([]model.OptionChain, error) {
	chains := make([]model.OptionChain, len(dates))

	g, gctx := errgroup.WithContext(ctx)
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			body, err := e.sched.Do(gctx, provider.HistoricalOptions{Symbol: symbol, Date: date}, e.cfg.Priority)
			if err != nil {
				return fmt.Errorf("fetch options for %s %s: %w", symbol, date.Format(model.ISODate), err)
			}
			chain, err := provider.ParseOptionsChain(body, symbol, date)
			if err != nil {
				return err
			}
			chains[i] = chain
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := chains[:0]
	for _, chain := range chains {
		if len(chain.Puts)+len(chain.Calls) > 0 {
			out = append(out, chain)
		}
	}
	return out, nil
}

// prependRealtimeChain adds a live chain snapshot; failures degrade to
// history-only. The live chain is not persisted here, that is the intraday
// snapshot job's concern.
func (e *Engine) prependRealtimeChain(ctx context.Context, symbol string, chains []model.OptionChain) []model.OptionChain {
	chain, err := e.FetchRealtimeChain(ctx, symbol)
	if err != nil {
		e.logger.Warn("realtime chain fetch failed", "symbol", symbol, "error", err)
		return chains
	}
	if len(chain.Puts)+len(chain.Calls) == 0 {
		e.logger.Debug("realtime chain empty, skipping", "symbol", symbol)
		return chains
	}

	for _, existing := range chains {
		if existing.Day.Equal(chain.Day) {
			return chains
		}
	}
	return append([]model.OptionChain{chain}, chains...)
}

// FetchRealtimeChain fetches the current live chain for symbol through the
// rate limiter. The payload's own date stamps the chain.
func (e *Engine) FetchRealtimeChain(ctx context.Context, symbol string) (model.OptionChain, error) {
	symbol = normalizeSymbol(symbol)

	body, err := e.sched.Do(ctx, provider.RealtimeOptions{Symbol: symbol}, e.cfg.RealtimePriority)
	if err != nil {
		return model.OptionChain{}, fmt.Errorf("fetch realtime options for %s: %w", symbol, err)
	}
	return provider.ParseOptionsChain(body, symbol, time.Time{})
}

func chainDates(chains []model.OptionChain) map[string]struct{} {
	out := make(map[string]struct{}, len(chains))
	for _, c := range chains {
		out[c.Day.Format(model.ISODate)] = struct{}{}
	}
	return out
}

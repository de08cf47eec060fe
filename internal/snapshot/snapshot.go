// Package snapshot runs the periodic ingestion jobs: a nightly reconciliation
// after settlement and intraday options-chain snapshots during the trading
// session.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/nvik/alphafeed/internal/calendar"
	"github.com/nvik/alphafeed/internal/model"
	"github.com/nvik/alphafeed/internal/store"
)

// Reconciler is the engine surface the jobs drive.
type Reconciler interface {
	ReconcileQuotes(ctx context.Context, symbol string, days, skip int) ([]model.DailyQuote, error)
	ReconcileOptions(ctx context.Context, symbol string, days, skip int) ([]model.OptionChain, error)
	FetchRealtimeChain(ctx context.Context, symbol string) (model.OptionChain, error)
}

// SymbolSource lists the symbols the jobs cover.
type SymbolSource interface {
	Symbols() []string
}

// Config holds snapshot job settings.
type Config struct {
	EODTime         string        // exchange-local "HH:MM" for the nightly job
	IntradayEvery   time.Duration // cadence of live chain snapshots
	BackfillDays    int           // lookback depth of the nightly reconciliation
	JobTimeout      time.Duration // per-job deadline
	ReconcileOption bool          // nightly job also reconciles chains
}

// DefaultConfig returns the production schedule: nightly just after the
// settlement cutoff, live chains every 15 minutes.
func DefaultConfig() Config {
	return Config{
		EODTime:         "21:05",
		IntradayEvery:   15 * time.Minute,
		BackfillDays:    30,
		JobTimeout:      10 * time.Minute,
		ReconcileOption: true,
	}
}

// Runner owns the cron schedule.
type Runner struct {
	cfg       Config
	cal       *calendar.Calendar
	engine    Reconciler
	symbols   SymbolSource
	intervals store.IntervalStore
	logger    *slog.Logger

	cron *gocron.Scheduler
	now  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Runner.
func New(
	cfg Config,
	cal *calendar.Calendar,
	engine Reconciler,
	symbols SymbolSource,
	intervals store.IntervalStore,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:       cfg,
		cal:       cal,
		engine:    engine,
		symbols:   symbols,
		intervals: intervals,
		logger:    logger,
		cron:      gocron.NewScheduler(cal.Location()),
		now:       time.Now,
	}
}

// Start registers and launches the jobs.
func (r *Runner) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	if _, err := r.cron.Every(1).Day().At(r.cfg.EODTime).Do(r.runEOD); err != nil {
		return fmt.Errorf("schedule eod job: %w", err)
	}
	if _, err := r.cron.Every(r.cfg.IntradayEvery).Do(r.runIntraday); err != nil {
		return fmt.Errorf("schedule intraday job: %w", err)
	}

	r.cron.StartAsync()
	r.logger.Info("snapshot jobs started",
		"eod_at", r.cfg.EODTime,
		"intraday_every", r.cfg.IntradayEvery,
	)
	return nil
}

// Stop halts the schedule and waits for running jobs, which observe the
// cancelled context, to finish.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	r.cron.Stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("snapshot jobs stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("snapshot jobs stop timed out")
		return ctx.Err()
	}
}

// runEOD reconciles recent history for every known symbol once the day's
// close has settled. Non-trading days are skipped.
func (r *Runner) runEOD() {
	r.wg.Add(1)
	defer r.wg.Done()

	now := r.now().In(r.cal.Location())
	if !r.cal.IsTradingDay(now) {
		r.logger.Debug("eod job skipped, not a trading day")
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.JobTimeout)
	defer cancel()

	symbols := r.symbols.Symbols()
	r.logger.Info("eod reconciliation started", "symbols", len(symbols))

	for _, sym := range symbols {
		if _, err := r.engine.ReconcileQuotes(ctx, sym, r.cfg.BackfillDays, 0); err != nil {
			r.logger.Error("eod quote reconciliation failed", "symbol", sym, "error", err)
			continue
		}
		if r.cfg.ReconcileOption {
			if _, err := r.engine.ReconcileOptions(ctx, sym, r.cfg.BackfillDays, 0); err != nil {
				r.logger.Error("eod options reconciliation failed", "symbol", sym, "error", err)
			}
		}
	}
	r.logger.Info("eod reconciliation finished", "symbols", len(symbols))
}

// runIntraday snapshots the live chain for every known symbol, stamped to the
// current interval mark. Outside the trading session it is a no-op.
func (r *Runner) runIntraday() {
	r.wg.Add(1)
	defer r.wg.Done()

	now := r.now()
	if !r.cal.IsTradingSession(now) {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.JobTimeout)
	defer cancel()

	ts := intervalMark(now.In(r.cal.Location()), r.cfg.IntradayEvery)
	for _, sym := range r.symbols.Symbols() {
		chain, err := r.engine.FetchRealtimeChain(ctx, sym)
		if err != nil {
			r.logger.Warn("intraday chain fetch failed", "symbol", sym, "error", err)
			continue
		}
		snap := model.IntervalChain{Symbol: sym, TS: ts, Puts: chain.Puts, Calls: chain.Calls}
		if err := r.intervals.UpsertIntervalChain(ctx, snap); err != nil {
			r.logger.Error("intraday snapshot write failed", "symbol", sym, "error", err)
		}
	}
}

// intervalMark rounds t down to the start of its interval within the hour.
func intervalMark(t time.Time, every time.Duration) time.Time {
	return t.Truncate(every)
}

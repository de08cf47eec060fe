package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nvik/alphafeed/internal/model"
)

const (
	txRetries    = 3
	txRetryDelay = time.Second
)

// Postgres implements the store interfaces on a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, connString string, minConns, maxConns int, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MinConns = int32(minConns)
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping verifies the connection is healthy.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// UpsertInstrument registers a symbol. Re-registration is a no-op.
func (p *Postgres) UpsertInstrument(ctx context.Context, symbol string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO instruments (id, created_at)
		VALUES ($1, now())
		ON CONFLICT (id) DO NOTHING
	`, symbol)
	if err != nil {
		return fmt.Errorf("upsert instrument %s: %w", symbol, err)
	}
	return nil
}

// ListInstruments returns every registered symbol.
func (p *Postgres) ListInstruments(ctx context.Context) ([]model.Instrument, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, created_at FROM instruments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var out []model.Instrument
	for rows.Next() {
		var ins model.Instrument
		if err := rows.Scan(&ins.ID, &ins.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

// QuotesByRange returns quotes for symbol within [start, end], newest first.
func (p *Postgres) QuotesByRange(ctx context.Context, symbol string, start, end time.Time) ([]model.DailyQuote, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT symbol, day, open, high, low, close, volume
		FROM daily_quotes
		WHERE symbol = $1 AND day >= $2 AND day <= $3
		ORDER BY day DESC
	`, symbol, model.Day(start), model.Day(end))
	if err != nil {
		return nil, fmt.Errorf("quotes by range for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []model.DailyQuote
	for rows.Next() {
		var q model.DailyQuote
		if err := rows.Scan(&q.Symbol, &q.Day, &q.Open, &q.High, &q.Low, &q.Close, &q.Volume); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		q.Day = model.Day(q.Day)
		out = append(out, q)
	}
	return out, rows.Err()
}

// UpsertQuotes writes quotes in one round trip. Existing (symbol, day) rows
// are left as stored.
func (p *Postgres) UpsertQuotes(ctx context.Context, quotes []model.DailyQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, q := range quotes {
		batch.Queue(`
			INSERT INTO daily_quotes (symbol, day, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (symbol, day) DO NOTHING
		`, q.Symbol, q.Day, q.Open, q.High, q.Low, q.Close, q.Volume)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	conflicts := 0
	for range quotes {
		ct, err := results.Exec()
		if err != nil {
			return fmt.Errorf("upsert quotes: %w", err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	p.logger.Debug("quotes upserted",
		"count", len(quotes),
		"conflicts", conflicts,
	)
	return nil
}

// ChainsByRange returns per-day chains for symbol within [start, end],
// newest first.
func (p *Postgres) ChainsByRange(ctx context.Context, symbol string, start, end time.Time) ([]model.OptionChain, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT contract_id, symbol, side, day, expiration, strike, last, mark,
		       bid, bid_size, ask, ask_size, volume, open_interest, implied_vol
		FROM option_quotes
		WHERE symbol = $1 AND day >= $2 AND day <= $3
		ORDER BY day DESC, contract_id
	`, symbol, model.Day(start), model.Day(end))
	if err != nil {
		return nil, fmt.Errorf("chains by range for %s: %w", symbol, err)
	}
	defer rows.Close()

	var chains []model.OptionChain
	for rows.Next() {
		var leg model.OptionQuote
		if err := rows.Scan(
			&leg.ContractID, &leg.Symbol, &leg.Side, &leg.Day, &leg.Expiration,
			&leg.Strike, &leg.Last, &leg.Mark, &leg.Bid, &leg.BidSize,
			&leg.Ask, &leg.AskSize, &leg.Volume, &leg.OpenInt, &leg.ImpliedVol,
		); err != nil {
			return nil, fmt.Errorf("scan option leg: %w", err)
		}
		leg.Day = model.Day(leg.Day)
		leg.Expiration = model.Day(leg.Expiration)

		// Rows arrive ordered by day, so each new day opens a chain.
		if len(chains) == 0 || !chains[len(chains)-1].Day.Equal(leg.Day) {
			chains = append(chains, model.OptionChain{Symbol: symbol, Day: leg.Day})
		}
		c := &chains[len(chains)-1]
		if leg.Side == model.SidePut {
			c.Puts = append(c.Puts, leg)
		} else {
			c.Calls = append(c.Calls, leg)
		}
	}
	return chains, rows.Err()
}

// UpsertChain writes every leg of one day's chain in a single transaction,
// retrying transient failures a few times before giving up.
func (p *Postgres) UpsertChain(ctx context.Context, chain model.OptionChain) error {
	legs := chain.Legs()
	if len(legs) == 0 {
		return nil
	}

	err := p.withRetry(ctx, func() error {
		return p.insertLegs(ctx, `
			INSERT INTO option_quotes (contract_id, symbol, side, day, expiration, strike,
			                           last, mark, bid, bid_size, ask, ask_size,
			                           volume, open_interest, implied_vol)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (contract_id, day) DO NOTHING
		`, legs, func(leg model.OptionQuote) []any {
			return []any{
				leg.ContractID, leg.Symbol, leg.Side, leg.Day, leg.Expiration,
				leg.Strike, leg.Last, leg.Mark, leg.Bid, leg.BidSize,
				leg.Ask, leg.AskSize, leg.Volume, leg.OpenInt, leg.ImpliedVol,
			}
		})
	})
	if err != nil {
		return fmt.Errorf("upsert chain %s %s: %w", chain.Symbol, chain.Day.Format(model.ISODate), err)
	}

	p.logger.Debug("chain upserted",
		"symbol", chain.Symbol,
		"day", chain.Day.Format(model.ISODate),
		"legs", len(legs),
	)
	return nil
}

// UpsertIntervalChain writes one intraday snapshot transactionally.
func (p *Postgres) UpsertIntervalChain(ctx context.Context, chain model.IntervalChain) error {
	legs := append(append([]model.OptionQuote{}, chain.Puts...), chain.Calls...)
	if len(legs) == 0 {
		return nil
	}

	err := p.withRetry(ctx, func() error {
		return p.insertLegs(ctx, `
			INSERT INTO interval_option_quotes (contract_id, symbol, side, ts, expiration, strike,
			                                    last, mark, bid, bid_size, ask, ask_size,
			                                    volume, open_interest, implied_vol)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (contract_id, ts) DO NOTHING
		`, legs, func(leg model.OptionQuote) []any {
			return []any{
				leg.ContractID, leg.Symbol, leg.Side, chain.TS, leg.Expiration,
				leg.Strike, leg.Last, leg.Mark, leg.Bid, leg.BidSize,
				leg.Ask, leg.AskSize, leg.Volume, leg.OpenInt, leg.ImpliedVol,
			}
		})
	})
	if err != nil {
		return fmt.Errorf("upsert interval chain %s: %w", chain.Symbol, err)
	}
	return nil
}

// insertLegs runs one multi-row insert inside a transaction.
func (p *Postgres) insertLegs(ctx context.Context, sql string, legs []model.OptionQuote, args func(model.OptionQuote) []any) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, leg := range legs {
		batch.Queue(sql, args(leg)...)
	}

	results := tx.SendBatch(ctx, batch)
	for range legs {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert leg: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// withRetry runs fn up to txRetries times with a fixed delay between attempts.
func (p *Postgres) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= txRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == txRetries {
			break
		}
		p.logger.Warn("transaction failed, retrying",
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(txRetryDelay):
		}
	}
	return err
}

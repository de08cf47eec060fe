package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nvik/alphafeed/internal/model"
)

// WriterConfig holds QuoteWriter configuration.
type WriterConfig struct {
	QueueSize  int           // buffered batches before Enqueue drops
	MaxRetries int           // write attempts per batch
	RetryDelay time.Duration // fixed wait between attempts
}

// DefaultWriterConfig returns conservative persistence settings.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:  256,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// WriterMetrics counts QuoteWriter activity.
type WriterMetrics struct {
	Flushes int64
	Quotes  int64
	Errors  int64
	Dropped int64
}

// QuoteWriter persists quote batches off the request path. Reconciliation
// responses never wait on storage; a batch that keeps failing is logged and
// dropped rather than propagated.
type QuoteWriter struct {
	cfg    WriterConfig
	store  QuoteStore
	logger *slog.Logger

	input chan []model.DailyQuote

	mu      sync.Mutex
	metrics WriterMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQuoteWriter creates a QuoteWriter over the given store.
func NewQuoteWriter(cfg WriterConfig, store QuoteStore, logger *slog.Logger) *QuoteWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteWriter{
		cfg:    cfg,
		store:  store,
		logger: logger,
		input:  make(chan []model.DailyQuote, cfg.QueueSize),
	}
}

// Start begins consuming queued batches.
func (w *QuoteWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.logger.Info("quote writer started", "queue_size", w.cfg.QueueSize)
	return nil
}

// Stop drains in-flight work and shuts down.
func (w *QuoteWriter) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("quote writer stopped")
		return nil
	case <-ctx.Done():
		w.logger.Warn("quote writer stop timed out")
		return ctx.Err()
	}
}

// Enqueue queues a batch for persistence. It never blocks; when the queue is
// full the batch is dropped and counted.
func (w *QuoteWriter) Enqueue(quotes []model.DailyQuote) {
	if len(quotes) == 0 {
		return
	}

	select {
	case w.input <- quotes:
	default:
		w.mu.Lock()
		w.metrics.Dropped += int64(len(quotes))
		w.mu.Unlock()
		w.logger.Warn("quote writer queue full, dropping batch", "count", len(quotes))
	}
}

// Stats returns current metrics.
func (w *QuoteWriter) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *QuoteWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			// Drain whatever was queued before shutdown.
			for {
				select {
				case batch := <-w.input:
					w.flush(batch)
				default:
					return
				}
			}
		case batch := <-w.input:
			w.flush(batch)
		}
	}
}

// flush writes one batch, retrying transient failures before dropping it.
func (w *QuoteWriter) flush(batch []model.DailyQuote) {
	var err error
	for attempt := 1; attempt <= w.cfg.MaxRetries; attempt++ {
		if err = w.store.UpsertQuotes(context.Background(), batch); err == nil {
			w.mu.Lock()
			w.metrics.Flushes++
			w.metrics.Quotes += int64(len(batch))
			w.mu.Unlock()
			return
		}
		if attempt < w.cfg.MaxRetries {
			time.Sleep(w.cfg.RetryDelay)
		}
	}

	w.mu.Lock()
	w.metrics.Errors++
	w.metrics.Dropped += int64(len(batch))
	w.mu.Unlock()
	w.logger.Error("quote batch dropped after retries",
		"count", len(batch),
		"retries", w.cfg.MaxRetries,
		"error", err,
	)
}

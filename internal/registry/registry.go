package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/nvik/alphafeed/internal/model"
)

// InstrumentStore is the persistence surface the registry needs.
type InstrumentStore interface {
	UpsertInstrument(ctx context.Context, symbol string) error
	ListInstruments(ctx context.Context) ([]model.Instrument, error)
}

// Registry tracks which symbols have been registered upstream. Ensure
// coalesces concurrent registrations of the same symbol into one store write.
type Registry struct {
	store  InstrumentStore
	logger *slog.Logger

	mu    sync.RWMutex
	known map[string]struct{}

	group singleflight.Group
}

// New creates a Registry over the given store.
func New(store InstrumentStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		logger: logger,
		known:  make(map[string]struct{}),
	}
}

// Preload seeds the in-memory set from the store. Called once at startup.
func (r *Registry) Preload(ctx context.Context) error {
	instruments, err := r.store.ListInstruments(ctx)
	if err != nil {
		return fmt.Errorf("preload instruments: %w", err)
	}

	r.mu.Lock()
	for _, ins := range instruments {
		r.known[ins.ID] = struct{}{}
	}
	n := len(r.known)
	r.mu.Unlock()

	r.logger.Info("registry preloaded", "symbols", n)
	return nil
}

// Ensure registers symbol if it is not already known. Concurrent calls for
// the same symbol share a single store write.
func (r *Registry) Ensure(ctx context.Context, symbol string) error {
	r.mu.RLock()
	_, ok := r.known[symbol]
	r.mu.RUnlock()
	if ok {
		return nil
	}

	_, err, _ := r.group.Do(symbol, func() (interface{}, error) {
		if err := r.store.UpsertInstrument(ctx, symbol); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.known[symbol] = struct{}{}
		r.mu.Unlock()
		r.logger.Debug("symbol registered", "symbol", symbol)
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("register symbol %s: %w", symbol, err)
	}
	return nil
}

// Known reports whether symbol has been registered.
func (r *Registry) Known(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[symbol]
	return ok
}

// Symbols returns all registered symbols in lexical order.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.known))
	for s := range r.known {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

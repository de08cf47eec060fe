package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nvik/alphafeed/internal/model"
)

type fakeStore struct {
	mu       sync.Mutex
	upserts  int32
	existing []model.Instrument
	delay    time.Duration
	err      error
}

func (s *fakeStore) UpsertInstrument(_ context.Context, symbol string) error {
	atomic.AddInt32(&s.upserts, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.err
}

func (s *fakeStore) ListInstruments(_ context.Context) ([]model.Instrument, error) {
	return s.existing, s.err
}

func TestPreload(t *testing.T) {
	store := &fakeStore{existing: []model.Instrument{{ID: "AAPL"}, {ID: "MSFT"}}}
	r := New(store, nil)

	if err := r.Preload(context.Background()); err != nil {
		t.Fatalf("Preload: %v", err)
	}
	if !r.Known("AAPL") || !r.Known("MSFT") {
		t.Error("preloaded symbols not known")
	}
	if r.Known("TSLA") {
		t.Error("unexpected symbol known")
	}
}

func TestEnsureRegistersOnce(t *testing.T) {
	store := &fakeStore{}
	r := New(store, nil)

	if err := r.Ensure(context.Background(), "AAPL"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := r.Ensure(context.Background(), "AAPL"); err != nil {
		t.Fatalf("Ensure second call: %v", err)
	}

	if n := atomic.LoadInt32(&store.upserts); n != 1 {
		t.Errorf("upserts = %d, want 1", n)
	}
	if !r.Known("AAPL") {
		t.Error("symbol not known after Ensure")
	}
}

func TestEnsureCoalescesConcurrent(t *testing.T) {
	store := &fakeStore{delay: 20 * time.Millisecond}
	r := New(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Ensure(context.Background(), "AAPL"); err != nil {
				t.Errorf("Ensure: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&store.upserts); n != 1 {
		t.Errorf("upserts = %d, want 1 (coalesced)", n)
	}
}

func TestEnsurePropagatesStoreError(t *testing.T) {
	storeErr := errors.New("write failed")
	store := &fakeStore{err: storeErr}
	r := New(store, nil)

	if err := r.Ensure(context.Background(), "AAPL"); !errors.Is(err, storeErr) {
		t.Fatalf("error = %v, want wrapped store error", err)
	}
	if r.Known("AAPL") {
		t.Error("failed registration marked known")
	}
}

func TestSymbols(t *testing.T) {
	store := &fakeStore{}
	r := New(store, nil)

	for _, s := range []string{"MSFT", "AAPL", "TSLA"} {
		if err := r.Ensure(context.Background(), s); err != nil {
			t.Fatalf("Ensure %s: %v", s, err)
		}
	}

	got := r.Symbols()
	want := []string{"AAPL", "MSFT", "TSLA"}
	if len(got) != len(want) {
		t.Fatalf("Symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Symbols = %v, want %v", got, want)
		}
	}
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nvik/alphafeed/internal/provider"
)

// fakeFetcher records calls and delegates to fn.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  []string
	starts []time.Time
	fn     func(call int, req provider.Request) ([]byte, error)
}

func (f *fakeFetcher) Fetch(_ context.Context, req provider.Request) ([]byte, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, req.Values().Get("symbol"))
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()

	if f.fn != nil {
		return f.fn(call, req)
	}
	return []byte(`{}`), nil
}

func (f *fakeFetcher) symbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeFetcher) startTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.starts))
	copy(out, f.starts)
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MinSleep = time.Millisecond
	return cfg
}

func startScheduler(t *testing.T, cfg Config, f Fetcher) *Scheduler {
	t.Helper()

	s := New(cfg, f, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestDoReturnsBody(t *testing.T) {
	f := &fakeFetcher{fn: func(int, provider.Request) ([]byte, error) {
		return []byte(`{"ok": true}`), nil
	}}
	s := startScheduler(t, testConfig(), f)

	body, err := s.Do(context.Background(), provider.GlobalQuote{Symbol: "AAPL"}, 5)
	if err != nil {
		t.Fatalf("Do error = %v", err)
	}
	if string(body) != `{"ok": true}` {
		t.Errorf("body = %s", body)
	}
	if s.window.len() != 1 {
		t.Errorf("window len = %d, want 1", s.window.len())
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	s := New(testConfig(), &fakeFetcher{}, nil)

	_, err := s.Enqueue(provider.GlobalQuote{Symbol: "AAPL"}, 0).Wait(context.Background())
	if !errors.Is(err, ErrNotStarted) {
		t.Fatalf("error = %v, want ErrNotStarted", err)
	}
}

func TestPriorityOrder(t *testing.T) {
	release := make(chan struct{})
	f := &fakeFetcher{fn: func(call int, _ provider.Request) ([]byte, error) {
		if call == 0 {
			<-release
		}
		return []byte(`{}`), nil
	}}

	cfg := testConfig()
	cfg.BatchCap = 1
	s := startScheduler(t, cfg, f)

	// The first job occupies the dispatcher while the rest queue up.
	first := s.Enqueue(provider.GlobalQuote{Symbol: "HOLD"}, 0)

	var futures []*Future
	for _, sym := range []string{"LOW", "HIGH", "MID"} {
		prio := map[string]int{"LOW": 9, "HIGH": 1, "MID": 5}[sym]
		futures = append(futures, s.Enqueue(provider.GlobalQuote{Symbol: sym}, prio))
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := first.Wait(ctx); err != nil {
		t.Fatalf("first job: %v", err)
	}
	for _, fu := range futures {
		if _, err := fu.Wait(ctx); err != nil {
			t.Fatalf("queued job: %v", err)
		}
	}

	got := f.symbols()
	want := []string{"HOLD", "HIGH", "MID", "LOW"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestThrottleRetriesWithoutCounting(t *testing.T) {
	f := &fakeFetcher{fn: func(call int, _ provider.Request) ([]byte, error) {
		if call < 2 {
			return nil, provider.ErrThrottled
		}
		return []byte(`{}`), nil
	}}
	s := startScheduler(t, testConfig(), f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.Do(ctx, provider.GlobalQuote{Symbol: "AAPL"}, 5); err != nil {
		t.Fatalf("Do error = %v", err)
	}

	if len(f.symbols()) != 3 {
		t.Errorf("calls = %d, want 3", len(f.symbols()))
	}
	// Only the final, successful attempt lands in the rate window.
	if s.window.len() != 1 {
		t.Errorf("window len = %d, want 1", s.window.len())
	}
}

func TestRetriesExhausted(t *testing.T) {
	upstreamErr := fmt.Errorf("connection reset")
	f := &fakeFetcher{fn: func(int, provider.Request) ([]byte, error) {
		return nil, upstreamErr
	}}

	cfg := testConfig()
	cfg.MaxRetries = 2
	s := startScheduler(t, cfg, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.Do(ctx, provider.GlobalQuote{Symbol: "AAPL"}, 5)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}

	// Initial attempt plus MaxRetries retries.
	if got := len(f.symbols()); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if got := s.Stats().QueueSize; got != 0 {
		t.Errorf("queue size = %d, want 0", got)
	}
}

func TestDispatchRespectsPerSecondCeiling(t *testing.T) {
	if testing.Short() {
		t.Skip("paces real time across several seconds")
	}

	f := &fakeFetcher{}
	cfg := testConfig()
	cfg.PerSecond = 2
	s := startScheduler(t, cfg, f)

	const jobs = 6
	futures := make([]*Future, jobs)
	for i := range futures {
		futures[i] = s.Enqueue(provider.GlobalQuote{Symbol: fmt.Sprintf("SYM%d", i)}, 5)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, fu := range futures {
		if _, err := fu.Wait(ctx); err != nil {
			t.Fatalf("job failed: %v", err)
		}
	}

	starts := f.startTimes()
	if len(starts) != jobs {
		t.Fatalf("dispatches = %d, want %d", len(starts), jobs)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	// With a ceiling of 2/s, the start following any two consecutive starts
	// must land at least a second after the first of them.
	const tolerance = 10 * time.Millisecond
	for i := 0; i+cfg.PerSecond < len(starts); i++ {
		gap := starts[i+cfg.PerSecond].Sub(starts[i])
		if gap < time.Second-tolerance {
			t.Errorf("starts %d..%d span %v, want >= 1s (per-second ceiling breached)", i, i+cfg.PerSecond, gap)
		}
	}
}

func TestAvailableSlots(t *testing.T) {
	cfg := testConfig()
	cfg.PerMinute = 5
	cfg.PerSecond = 2
	s := New(cfg, &fakeFetcher{}, nil)

	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	if got := s.availableSlots(now); got != 2 {
		t.Errorf("availableSlots empty = %d, want 2 (second window binds)", got)
	}

	s.window.record(now.Add(-100 * time.Millisecond))
	s.window.record(now.Add(-200 * time.Millisecond))
	if got := s.availableSlots(now); got != 0 {
		t.Errorf("availableSlots at second cap = %d, want 0", got)
	}

	for i := 0; i < 3; i++ {
		s.window.record(now.Add(-time.Duration(i+2) * time.Second))
	}
	if got := s.availableSlots(now); got != 0 {
		t.Errorf("availableSlots at minute cap = %d, want 0", got)
	}
}

func TestAvailableSlotsSingleWindow(t *testing.T) {
	cfg := testConfig()
	cfg.PerMinute = 3
	cfg.PerSecond = 0
	s := New(cfg, &fakeFetcher{}, nil)

	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)
	s.window.record(now.Add(-100 * time.Millisecond))
	if got := s.availableSlots(now); got != 2 {
		t.Errorf("availableSlots = %d, want 2", got)
	}
}

func TestPriorityClamping(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPriority = 10
	s := New(cfg, &fakeFetcher{}, nil)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.dispatching = true // keep jobs queued for inspection

	s.Enqueue(provider.GlobalQuote{Symbol: "A"}, -3)
	s.Enqueue(provider.GlobalQuote{Symbol: "B"}, 99)

	stats := s.Stats()
	if stats.QueueByPriority[0] != 1 {
		t.Errorf("priority 0 count = %d, want 1", stats.QueueByPriority[0])
	}
	if stats.QueueByPriority[10] != 1 {
		t.Errorf("priority 10 count = %d, want 1", stats.QueueByPriority[10])
	}
	s.cancel()
}

func TestStats(t *testing.T) {
	s := New(testConfig(), &fakeFetcher{}, nil)

	now := time.Now()
	s.window.record(now.Add(-30 * time.Second))
	s.window.record(now.Add(-100 * time.Millisecond))

	stats := s.Stats()
	if stats.RequestsInLastMinute != 2 {
		t.Errorf("RequestsInLastMinute = %d, want 2", stats.RequestsInLastMinute)
	}
	if stats.RequestsInLastSecond != 1 {
		t.Errorf("RequestsInLastSecond = %d, want 1", stats.RequestsInLastSecond)
	}
	if stats.QueueSize != 0 {
		t.Errorf("QueueSize = %d, want 0", stats.QueueSize)
	}
}

package scheduler

import (
	"sync"
	"time"
)

// rateWindow tracks completion timestamps of upstream requests. It only
// records history; the throttle itself is enforced by the dispatch loop's
// availability check. Single-writer: only dispatched jobs append.
type rateWindow struct {
	mu       sync.Mutex
	times    []time.Time
	lookback time.Duration // longest enforced window; older entries are pruned
}

func newRateWindow(lookback time.Duration) *rateWindow {
	return &rateWindow{lookback: lookback}
}

// record appends a completion timestamp.
func (w *rateWindow) record(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times = append(w.times, t)
}

// countSince returns how many requests completed within the trailing span.
func (w *rateWindow) countSince(now time.Time, span time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-span)
	n := 0
	for _, t := range w.times {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}

// oldestSince returns the oldest timestamp within the trailing span.
func (w *rateWindow) oldestSince(now time.Time, span time.Duration) (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-span)
	for _, t := range w.times {
		if t.After(cutoff) {
			return t, true
		}
	}
	return time.Time{}, false
}

// prune drops timestamps older than the lookback. Called from the prune timer
// and lazily before availability checks.
func (w *rateWindow) prune(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.lookback)
	keep := 0
	for _, t := range w.times {
		if t.After(cutoff) {
			w.times[keep] = t
			keep++
		}
	}
	w.times = w.times[:keep]
}

func (w *rateWindow) len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.times)
}

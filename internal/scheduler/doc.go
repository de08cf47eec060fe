// Package scheduler serializes all upstream provider calls behind sliding
// rate windows. Callers enqueue requests with a priority and receive a Future;
// the single dispatch loop drains the queue in priority order, dispatching
// batches sized to the available per-minute and per-second slots and
// staggering each batch across the per-second budget.
//
// A soft-throttled request (provider.ErrThrottled) is retried at the front of
// its priority tier without counting against the rate window or the retry
// budget. Hard failures consume the budget and terminate with
// ErrRetriesExhausted once it runs out.
package scheduler

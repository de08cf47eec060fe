// Package engine reconciles stored market history against the trading
// calendar. Given a lookback window it computes which trading dates the store
// is missing, fetches only those through the rate-limited scheduler, persists
// them, and returns the merged result newest first. During a live session, or
// before the evening settlement cutoff, a realtime snapshot is prepended in
// place of the not-yet-settled close.
package engine

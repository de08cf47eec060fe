// Package store persists instruments, daily quotes, and options chains in
// Postgres. Writes are idempotent: quote upserts skip existing (symbol, day)
// rows and chain writes commit all legs for one date in a single transaction,
// skipping duplicate contracts. The QuoteWriter defers quote persistence off
// the request path.
package store

// Package model defines shared data types for the alphafeed service.
//
// Conventions:
//   - Prices: decimal.Decimal (exact, matches the provider's string payloads)
//   - Dates: time.Time truncated to midnight UTC via Day
//   - IDs: uppercased ticker strings; provider contract IDs for option legs
package model

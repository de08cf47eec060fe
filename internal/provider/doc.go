// Package provider implements the AlphaVantage REST client.
//
// The provider signals throttling inside HTTP-200 bodies rather than via
// status codes, so Fetch surfaces ErrThrottled as a first-class outcome.
// Retry policy lives in the scheduler, not here: every Fetch is exactly one
// upstream request.
package provider

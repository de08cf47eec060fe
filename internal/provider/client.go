package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the AlphaVantage query endpoint.
const DefaultBaseURL = "https://www.alphavantage.co/query"

// throttleMarkers are substrings the provider embeds in HTTP-200 bodies when a
// request was throttled instead of fulfilled.
var throttleMarkers = [][]byte{
	[]byte("Thank you for using Alpha Vantage"),
	[]byte("Burst pattern detected"),
}

// ErrThrottled indicates a soft rate-limit response: transport-successful, but
// the body carries a throttle marker instead of data.
var ErrThrottled = errors.New("provider: soft rate limit")

// APIError represents a transport-level error from the provider.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// DataMismatchError indicates the provider returned data for a different date
// than the one requested. It is surfaced to the caller, never auto-retried.
type DataMismatchError struct {
	Requested string
	Got       string
}

func (e *DataMismatchError) Error() string {
	return fmt.Sprintf("provider returned date %s for requested date %s", e.Got, e.Requested)
}

// Client provides access to the AlphaVantage REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Fetch performs a single upstream request for req. It returns the raw
// response body, ErrThrottled on a soft rate-limit body, or an *APIError on a
// transport-level failure.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	query := req.Values()
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	if throttled(body) {
		c.logger.Debug("provider throttled request", "function", req.Function())
		return nil, ErrThrottled
	}

	return body, nil
}

// throttled reports whether a 200 body carries a soft rate-limit marker.
func throttled(body []byte) bool {
	for _, m := range throttleMarkers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}

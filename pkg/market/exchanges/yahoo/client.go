// Package yahoo implements the futures market.Source over the Yahoo Finance
// v8 chart API, used for CME micro futures (MCL, MGC, MES, MNQ).
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL          = "https://query1.finance.yahoo.com"
	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 250 * time.Millisecond
	defaultMaxRetryBackoff  = 5 * time.Second
	defaultRequestsPerSec   = 2
	defaultMaxInFlight      = 2
)

// ErrRequestFailed indicates a chart request that exhausted its retry budget.
var ErrRequestFailed = errors.New("yahoo: request failed")

// Client wraps the Yahoo chart endpoint with the same throttling and retry
// discipline as the crypto client. Yahoo is less tolerant of bursts, so the
// defaults are tighter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	inflight   chan struct{}
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the chart endpoint (fakes in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithMaxRetries adjusts the per-request retry budget.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient constructs a Yahoo Finance chart client.
func NewClient(opts ...Option) *Client {
	client := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		maxRetries: defaultMaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(defaultRequestsPerSec), 1),
		inflight:   make(chan struct{}, defaultMaxInFlight),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) doGet(ctx context.Context, path string, params url.Values, result interface{}) error {
	select {
	case c.inflight <- struct{}{}:
		defer func() { <-c.inflight }()
	case <-ctx.Done():
		return ctx.Err()
	}

	var lastErr error
	backoff := defaultRetryBackoffBase
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = c.once(ctx, path, params, result)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(lastErr) || attempt == c.maxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > defaultMaxRetryBackoff {
			backoff = defaultMaxRetryBackoff
		}
	}
	return fmt.Errorf("%w: %v", ErrRequestFailed, lastErr)
}

func (c *Client) once(ctx context.Context, path string, params url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	// Yahoo rejects requests without a browser-ish agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; tradepulse/1.0)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("read response: %w", readErr)
	}
	if resp.StatusCode != http.StatusOK {
		return &httpError{Status: resp.StatusCode, Body: string(body)}
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type httpError struct {
	Status int
	Body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("yahoo: http status %d: %s", e.Status, e.Body)
}

func retryable(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.Status >= 500 || he.Status == http.StatusTooManyRequests
	}
	return true
}

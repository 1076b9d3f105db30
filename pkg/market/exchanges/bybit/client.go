// Package bybit implements the crypto market.Source over the Bybit v5 REST API.
package bybit

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
	defaultBaseURL          = "https://api.bybit.com"
	testnetBaseURL          = "https://api-testnet.bybit.com"
	defaultHTTPTimeout      = 30 * time.Second
	defaultMaxRetries       = 3
	defaultRetryBackoffBase = 200 * time.Millisecond
	defaultMaxRetryBackoff  = 5 * time.Second
	defaultRequestsPerSec   = 8
	defaultMaxInFlight      = 4

	// Bybit caps kline responses; we page in windows of this size.
	klinePageSize = 200

	categoryLinear = "linear"
)

// ErrRequestFailed indicates a request that exhausted its retry budget. The fetch
// for that chunk is abandoned and reported to the caller; it is never fatal.
var ErrRequestFailed = errors.New("bybit: request failed")

// apiError is a non-zero retCode from Bybit.
type apiError struct {
	Code int
	Msg  string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("bybit: api error %d: %s", e.Code, e.Msg)
}

// Bybit signals throttling with retCode 10006.
func (e *apiError) retryable() bool {
	return e.Code == 10006
}

// Client wraps the Bybit v5 market endpoints used for candle sync. All requests
// share one rate limiter and one in-flight gate, so concurrent interval loops
// cannot exceed the provider's ceiling together.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	limiter    *rate.Limiter
	inflight   chan struct{}
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client (used by recorded tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBaseURL overrides the API endpoint (testnet, fakes).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithTestnet switches to the Bybit testnet endpoint.
func WithTestnet() Option {
	return func(c *Client) {
		c.baseURL = testnetBaseURL
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

// WithRateLimit caps requests per second across all callers.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClient constructs a Bybit market-data client.
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

// doGet performs one throttled GET with bounded retries and decodes the envelope
// into result. Transient failures (network, 5xx, throttling) are retried with
// exponential backoff; anything else returns immediately.
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
	req.Header.Set("Content-Type", "application/json")

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

	var envelope struct {
		RetCode int             `json:"retCode"`
		RetMsg  string          `json:"retMsg"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.RetCode != 0 {
		return &apiError{Code: envelope.RetCode, Msg: envelope.RetMsg}
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

type httpError struct {
	Status int
	Body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("bybit: http status %d: %s", e.Status, e.Body)
}

func retryable(err error) bool {
	var he *httpError
	if errors.As(err, &he) {
		return he.Status >= 500 || he.Status == http.StatusTooManyRequests
	}
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.retryable()
	}
	// Network-level errors (timeouts, resets) are worth another attempt.
	var decodeErr *json.SyntaxError
	if errors.As(err, &decodeErr) {
		return false
	}
	return true
}

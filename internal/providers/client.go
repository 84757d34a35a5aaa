// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package providers holds the HTTP plumbing shared by the external collaborator
clients (Last.fm, Deezer, Plex, SoulSync, iTunes).

Every outbound request goes through Client.Do, which layers:
  - a token-bucket rate limiter (golang.org/x/time/rate), one per provider
  - a named circuit breaker (sony/gobreaker) that rejects calls while the
    provider is failing, surfacing ErrUnavailable
  - HTTP 429 retry with exponential backoff honoring Retry-After
  - status validation and JSON decoding (goccy/go-json)
  - per-provider request metrics

The concrete clients live in sub-packages and only describe endpoints.
*/
package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/metrics"
)

// ErrUnavailable marks a provider that is rejecting calls outright
// (breaker open, or rate-limited past the retry budget).
var ErrUnavailable = errors.New("provider unavailable")

// StatusError is returned when a response status is not one the request expected.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Unavailable reports whether a 429 or 5xx means the provider is down.
func (e *StatusError) Unavailable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// Unavailable reports whether err means the provider could not answer at
// all: breaker open, transport failure, deadline, 429 or 5xx. It is false
// for nil and for rejections of one request, such as a 404 or a provider
// data error that implements Unavailable() bool returning false.
// Unrecognized errors count as unavailable.
func Unavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var classified interface{ Unavailable() bool }
	if errors.As(err, &classified) {
		return classified.Unavailable()
	}
	return true
}

// Options configures a Client.
type Options struct {
	// Name labels metrics, logs and the breaker.
	Name    string
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond caps outbound traffic; 0 disables limiting.
	RequestsPerSecond float64
	// Header is applied to every request (auth tokens, user agent).
	Header http.Header
	// MaxRetries on HTTP 429 (default 5).
	MaxRetries int
	// RetryBaseDelay for the 429 backoff (default 1s).
	RetryBaseDelay time.Duration
	Breaker        BreakerSettings
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Client executes requests against one provider.
type Client struct {
	name       string
	baseURL    string
	header     http.Header
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *Breaker
	maxRetries int
	baseDelay  time.Duration
}

// NewClient creates a provider client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	baseDelay := opts.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Client{
		name:       opts.Name,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		header:     opts.Header.Clone(),
		httpClient: hc,
		limiter:    limiter,
		breaker:    NewBreaker(opts.Name, opts.Breaker),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// BaseURL returns the provider base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Breaker exposes the provider breaker (health reporting).
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// Request describes one API call.
type Request struct {
	Method string
	// Path is appended to the base URL. An absolute URL is used as is.
	Path  string
	Query url.Values
	// Body is JSON-encoded when non-nil.
	Body   any
	Header http.Header
	// Expect lists accepted status codes. Empty accepts any 2xx.
	Expect []int
	// SkipDecode lists accepted status codes whose body is not decoded
	// (a 409 or 404 the caller handles by status alone).
	SkipDecode []int
}

func (r Request) accepts(code int) bool {
	if len(r.Expect) == 0 {
		return code >= 200 && code < 300
	}
	for _, c := range r.Expect {
		if c == code {
			return true
		}
	}
	return false
}

func (r Request) decodes(code int) bool {
	if code == http.StatusNoContent {
		return false
	}
	for _, c := range r.SkipDecode {
		if c == code {
			return false
		}
	}
	return true
}

// Do executes req and decodes a JSON response body into result when result
// is non-nil. The returned int is the response status code, also on error
// whenever a response was received; it is 0 when the breaker rejected the
// call or no response arrived.
func (c *Client) Do(ctx context.Context, req Request, result any) (int, error) {
	start := time.Now()
	var status int
	_, err := c.breaker.Execute(func() (interface{}, error) {
		code, err := c.do(ctx, req, result)
		status = code
		return nil, err
	})
	metrics.RecordProviderCall(c.name, time.Since(start), err)
	return status, err
}

func (c *Client) do(ctx context.Context, cfg Request, result any) (int, error) {
	reqURL := cfg.Path
	if !strings.HasPrefix(reqURL, "http://") && !strings.HasPrefix(reqURL, "https://") {
		reqURL = c.baseURL + cfg.Path
	}

	var payload []byte
	if cfg.Body != nil {
		b, err := json.Marshal(cfg.Body)
		if err != nil {
			return 0, fmt.Errorf("%s: encode request: %w", c.name, err)
		}
		payload = b
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		var body io.Reader = http.NoBody
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return nil, fmt.Errorf("%s: create request: %w", c.name, err)
		}
		for k, vs := range c.header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		for k, vs := range cfg.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if len(cfg.Query) > 0 {
			req.URL.RawQuery = cfg.Query.Encode()
		}
		return req, nil
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if !cfg.accepts(resp.StatusCode) {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{Provider: c.name, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if result != nil && cfg.decodes(resp.StatusCode) {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("%s: decode response: %w", c.name, err)
		}
	}
	return resp.StatusCode, nil
}

// doWithRetry waits on the limiter and retries HTTP 429 responses with
// exponential backoff (base, 2*base, 4*base...), honoring Retry-After.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%s: rate limiter: %w", c.name, err)
			}
		}

		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%s: execute request: %w", c.name, err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()

		if attempt == c.maxRetries {
			return nil, fmt.Errorf("%s: %w: rate limit exceeded after %d retries", c.name, ErrUnavailable, c.maxRetries)
		}

		retryDelay := c.baseDelay * (1 << attempt)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
				retryDelay = time.Duration(seconds) * time.Second
			}
		}

		logging.Warn().Str("provider", c.name).Dur("retry_delay", retryDelay).Int("attempt", attempt+1).Int("max_retries", c.maxRetries).Msg("Provider rate limited (HTTP 429), retrying")

		timer := time.NewTimer(retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%s: retry loop exhausted", c.name)
}

// Package httpjson implements a small JSON-over-HTTP client with built-in
// retry/backoff. Both upstream collaborators of the sync engine (the
// démarches GraphQL endpoint and the tabular-store REST API) speak JSON, so
// the client exposes typed helpers that marshal the request payload and
// decode the response body in one call.
//
// Design goals:
//
//   - Keep a tiny, explicit API (DoJSON, PostJSON, GetJSON, PatchJSON).
//   - Handle transient failures (network errors, 5xx, 429) with exponential
//     backoff; treat every other status as final.
//   - Respect context cancellation during requests and backoff waits.
//   - Be easy to test by injecting a custom RoundTripper and sleep function.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config configures the client.
//
// Zero values are given sensible defaults:
//   - Timeout:        30s
//   - MaxRetries:     3
//   - InitialBackoff: 200ms
//   - MaxBackoff:     5s
type Config struct {
	// Timeout is the per-request timeout applied at the http.Client level.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the initial request.
	// MaxRetries=0 means "no retries" (only the initial attempt).
	MaxRetries int

	// InitialBackoff is the base backoff duration for the first retry.
	// Each subsequent retry doubles the previous backoff up to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff duration.
	MaxBackoff time.Duration

	// BaseHeaders are headers added to every request (typically the
	// Authorization bearer token). Per-request headers take precedence.
	BaseHeaders http.Header

	// Transport is an optional custom RoundTripper. When nil,
	// http.DefaultTransport is used.
	Transport http.RoundTripper
}

// Client wraps an http.Client with retry, backoff, and JSON codec behavior.
type Client struct {
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	baseHeaders    http.Header

	// sleep is injectable to make tests fast and deterministic.
	sleep func(time.Duration)
}

// StatusError is returned when the server answers with a final (non-retryable,
// non-2xx) status. Body carries up to a few KB of the response for diagnostics.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpjson: status %d: %s", e.StatusCode, e.Body)
}

// NewClient constructs a Client from Config, applying defaults for zero values.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	hdr := http.Header{}
	for k, vs := range cfg.BaseHeaders {
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		baseHeaders:    hdr,
		sleep:          time.Sleep,
	}
}

// DoJSON sends method+url with payload marshaled as a JSON body (nil payload
// sends no body), retries transient failures, and decodes the response body
// into out when out is non-nil. A non-2xx final status is returned as a
// *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, url string, payload, out any) error {
	if method == "" {
		return fmt.Errorf("httpjson: method must not be empty")
	}
	if url == "" {
		return fmt.Errorf("httpjson: url must not be empty")
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("httpjson: marshal payload: %w", err)
		}
	}

	resp, err := c.do(ctx, method, url, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpjson: decode response: %w", err)
	}
	return nil
}

// PostJSON is a convenience wrapper over DoJSON for HTTP POST.
func (c *Client) PostJSON(ctx context.Context, url string, payload, out any) error {
	return c.DoJSON(ctx, http.MethodPost, url, payload, out)
}

// GetJSON is a convenience wrapper over DoJSON for HTTP GET.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.DoJSON(ctx, http.MethodGet, url, nil, out)
}

// PatchJSON is a convenience wrapper over DoJSON for HTTP PATCH.
func (c *Client) PatchJSON(ctx context.Context, url string, payload, out any) error {
	return c.DoJSON(ctx, http.MethodPatch, url, payload, out)
}

// do sends the request with retry and backoff on transient errors. The body is
// supplied as a byte slice so that it can be safely re-sent on retry.
func (c *Client) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	attempts := c.maxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		// Respect context cancellation before each attempt.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("httpjson: build request: %w", err)
		}
		for k, vs := range c.baseHeaders {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Network or transport-level error. Treat as retryable.
			lastErr = err
		} else {
			if !isRetryableStatus(resp.StatusCode) {
				return resp, nil
			}
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("httpjson: retryable status %d from %s %s", resp.StatusCode, method, url)
		}

		if attempt+1 >= attempts {
			return nil, lastErr
		}

		backoff := backoffDuration(c.initialBackoff, attempt, c.maxBackoff)
		if err := sleepWithContext(ctx, c.sleep, backoff); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// isRetryableStatus reports whether the given HTTP status code should trigger
// a retry. This is intentionally conservative: 5xx and 429 are treated as
// transient; everything else is considered final.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration returns the exponential backoff duration for the given
// attempt number (0-based retry index), clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt <= 0 {
		if initial > max {
			return max
		}
		return initial
	}
	d := initial << attempt
	if d > max {
		return max
	}
	return d
}

// sleepWithContext sleeps for d using the provided sleep function,
// but aborts early if ctx is canceled.
func sleepWithContext(ctx context.Context, sleep func(time.Duration), d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		sleep(d)
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

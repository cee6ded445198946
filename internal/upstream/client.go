// Package upstream is the HTTP transport shared by the third-party API
// clients: per-call timeout, retry with exponential backoff on 429 and 5xx,
// a circuit breaker per upstream, and call metrics.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	maxResponseSize       = 10 << 20 // 10MB
)

// Observer receives one record per attempt.
type Observer interface {
	ObserveUpstream(upstream, outcome string, d time.Duration)
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Upstream string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Upstream, e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return false
}

// Client sends requests to one named upstream.
type Client struct {
	name           string
	httpClient     *http.Client
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	breaker        *gobreaker.CircuitBreaker
	observer       Observer
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetries sets the attempt count (1 = no retry) and the first backoff.
func WithRetries(attempts int, initialBackoff time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.maxRetries = attempts
		c.initialBackoff = initialBackoff
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a client for the named upstream. The breaker opens after five
// consecutive failures and half-opens after 30 seconds.
func New(name string, opts ...Option) *Client {
	c := &Client{
		name:           name,
		httpClient:     &http.Client{},
		timeout:        defaultTimeout,
		maxRetries:     defaultMaxRetries,
		initialBackoff: defaultInitialBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !retryable(err) && !upstreamFault(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("upstream circuit breaker state change", "upstream", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string { return c.name }

// Do sends the request produced by newReq and returns the response body of a
// 2xx response. newReq is called once per attempt so request bodies can be
// rebuilt.
func (c *Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := range c.maxRetries {
		body, err := c.attempt(ctx, newReq)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s unavailable: %w", c.name, err)
		}
		if !retryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt < c.maxRetries-1 {
			backoff := time.Duration(float64(c.initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("%s failed after %d attempts: %w", c.name, c.maxRetries, lastErr)
}

func (c *Client) attempt(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	start := time.Now()
	out, err := c.breaker.Execute(func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req, err := newReq(reqCtx)
		if err != nil {
			return nil, &buildError{err: err}
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &transportError{upstream: c.name, err: err, callerDone: ctx.Err() != nil}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, &transportError{upstream: c.name, err: fmt.Errorf("reading response: %w", err), callerDone: ctx.Err() != nil}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Upstream: c.name, Code: resp.StatusCode, Body: truncate(string(body), 512)}
		}
		return body, nil
	})
	if c.observer != nil {
		c.observer.ObserveUpstream(c.name, outcomeLabel(err), time.Since(start))
	}
	if err != nil {
		var be *buildError
		if errors.As(err, &be) {
			return nil, be.err
		}
		return nil, err
	}
	return out.([]byte), nil
}

type buildError struct{ err error }

func (e *buildError) Error() string { return "building request: " + e.err.Error() }
func (e *buildError) Unwrap() error { return e.err }

// transportError is a failure before a complete response arrived.
// callerDone marks failures caused by the caller's own context ending.
type transportError struct {
	upstream   string
	err        error
	callerDone bool
}

func (e *transportError) Error() string { return fmt.Sprintf("%s: %v", e.upstream, e.err) }
func (e *transportError) Unwrap() error { return e.err }

// upstreamFault reports a transport failure the upstream is to blame for.
// A caller that cancels or runs out of time says nothing about the upstream's
// health, so those do not count against the breaker.
func upstreamFault(err error) bool {
	var te *transportError
	if !errors.As(err, &te) {
		return false
	}
	if te.callerDone && (errors.Is(te.err, context.Canceled) || errors.Is(te.err, context.DeadlineExceeded)) {
		return false
	}
	return true
}

func outcomeLabel(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.As(err, &se) && se.Code == http.StatusTooManyRequests:
		return "rate_limited"
	case errors.As(err, &se):
		return "http_error"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

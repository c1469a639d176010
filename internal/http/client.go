package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ligustah/segslurp/internal/logctx"
)

// Common errors.
var (
	ErrNotFound     = errors.New("http: resource not found")
	ErrForbidden    = errors.New("http: access forbidden")
	ErrUnauthorized = errors.New("http: unauthorized")
	ErrServerError  = errors.New("http: server error")
)

// Options configures the HTTP client.
type Options struct {
	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 20
	MaxIdleConnsPerHost int

	// Timeout bounds a single attempt, including reading the body.
	// Default: 10s
	Timeout time.Duration

	// RetryBackoff is the initial backoff duration between attempts.
	// Default: 250ms
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 5s
	RetryMaxBackoff time.Duration

	// Transport overrides the underlying round tripper. When nil a pooled
	// *http.Transport is built from MaxIdleConnsPerHost.
	Transport http.RoundTripper
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxIdleConnsPerHost: 20,
		Timeout:             10 * time.Second,
		RetryBackoff:        250 * time.Millisecond,
		RetryMaxBackoff:     5 * time.Second,
	}
}

// Client fetches segments over HTTP.
type Client struct {
	client *http.Client
	opts   Options
}

// NewClient creates a new HTTP client with the given options. Zero fields
// fall back to DefaultOptions.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}
	if opts.RetryMaxBackoff <= 0 {
		opts.RetryMaxBackoff = def.RetryMaxBackoff
	}

	base := opts.Transport
	if base == nil {
		base = &http.Transport{
			MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
			MaxIdleConns:        opts.MaxIdleConnsPerHost * 2,
			IdleConnTimeout:     90 * time.Second,
			DisableCompression:  true, // segments are already compressed media
		}
	}

	return &Client{
		client: &http.Client{
			Transport: otelhttp.NewTransport(base),
			Timeout:   opts.Timeout,
		},
		opts: opts,
	}
}

// Fetch downloads url and returns its body. It never fails: an unrecoverable
// segment yields an empty slice and the reason is logged.
//
// Connection-establishment errors are retried until maxAttempts attempts
// have been made. Every other failure, including a non-2xx status, abandons
// the segment immediately.
func (c *Client) Fetch(ctx context.Context, url string, maxAttempts int) []byte {
	logger := logctx.LoggerFromContext(ctx)

	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if url == "" {
		logger.WarnContext(ctx, "segment has no url, skipping")
		return nil
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.backoff(ctx, attempt-1); err != nil {
				logger.WarnContext(ctx, "segment retry aborted", "url", url, "attempt", attempt, "err", err)
				return nil
			}
		}

		data, retry, err := c.get(ctx, url)
		if err == nil {
			return data
		}

		if !retry {
			logger.WarnContext(ctx, "segment fetch failed, not retrying", "url", url, "attempt", attempt, "err", err)
			return nil
		}

		if attempt == maxAttempts {
			logger.ErrorContext(ctx, "segment fetch failed after all attempts", "url", url, "attempts", attempt, "err", err)
			return nil
		}

		logger.WarnContext(ctx, "segment fetch failed, retrying", "url", url, "attempt", attempt, "max_attempts", maxAttempts, "err", err)
	}

	return nil
}

// get performs a single GET attempt. retry is true only when the request
// failed before a response arrived and IsConnectionError matches; failures
// while reading the body are never retried.
func (c *Client) get(ctx context.Context, url string) (data []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, IsConnectionError(err), err
	}
	defer resp.Body.Close()

	if err := checkStatusCode(resp.StatusCode); err != nil {
		return nil, false, err
	}

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}

	return data, false, nil
}

// IsConnectionError reports whether err means no connection to the server
// could be established. Only these errors are worth another attempt.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	d := backoffDuration(c.opts.RetryBackoff, c.opts.RetryMaxBackoff, attempt)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// backoffDuration returns base*2^(attempt-1), capped at max, scaled by a
// jitter factor in [0.5, 1.5).
func backoffDuration(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	d := base * time.Duration(1<<uint(attempt-1))
	if d > max || d <= 0 {
		d = max
	}

	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

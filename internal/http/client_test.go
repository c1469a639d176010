package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ligustah/segslurp/internal/logctx"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func dialError() error {
	return &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED},
	}
}

func okResponse(r *http.Request, body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func fastOptions() Options {
	opts := DefaultOptions()
	opts.RetryBackoff = time.Millisecond
	opts.RetryMaxBackoff = 5 * time.Millisecond
	return opts
}

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Write([]byte("segment-data"))
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	data := client.Fetch(context.Background(), server.URL+"/seg0.ts", 5)

	if string(data) != "segment-data" {
		t.Errorf("expected 'segment-data', got %q", data)
	}
}

func TestFetchNonSuccessIsNotRetried(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(code)
			}))
			defer server.Close()

			client := NewClient(fastOptions())
			data := client.Fetch(context.Background(), server.URL, 5)

			if len(data) != 0 {
				t.Errorf("expected empty result, got %d bytes", len(data))
			}
			if attempts.Load() != 1 {
				t.Errorf("expected 1 attempt, got %d", attempts.Load())
			}
		})
	}
}

func TestFetchRetriesConnectionError(t *testing.T) {
	var attempts atomic.Int32

	opts := fastOptions()
	opts.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n := attempts.Add(1)
		if n <= 2 {
			return nil, dialError()
		}
		return okResponse(r, fmt.Sprintf("attempt-%d", n)), nil
	})

	client := NewClient(opts)
	data := client.Fetch(context.Background(), "http://segments.invalid/seg.ts", 5)

	if string(data) != "attempt-3" {
		t.Errorf("expected third attempt's body, got %q", data)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchConnectionErrorExhaustsAttempts(t *testing.T) {
	var attempts atomic.Int32

	opts := fastOptions()
	opts.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts.Add(1)
		return nil, dialError()
	})

	client := NewClient(opts)
	data := client.Fetch(context.Background(), "http://segments.invalid/seg.ts", 5)

	if len(data) != 0 {
		t.Errorf("expected empty result, got %q", data)
	}
	if attempts.Load() != 5 {
		t.Errorf("expected exactly 5 attempts, got %d", attempts.Load())
	}
}

func TestFetchProtocolErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32

	opts := fastOptions()
	opts.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts.Add(1)
		return nil, errors.New("malformed HTTP response")
	})

	client := NewClient(opts)
	data := client.Fetch(context.Background(), "http://segments.invalid/seg.ts", 5)

	if len(data) != 0 {
		t.Errorf("expected empty result, got %q", data)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestFetchBodyResetIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		// Promise more than is sent, then drop the connection mid-body.
		w.Header().Set("Content-Length", "100000")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("0123456789"))
		w.(http.Flusher).Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetLinger(0)
		}
		conn.Close()
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	data := client.Fetch(context.Background(), server.URL+"/seg.ts", 5)

	if len(data) != 0 {
		t.Errorf("expected empty result, got %q", data)
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 request, got %d", hits.Load())
	}
}

func TestFetchRefusedConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL
	server.Close() // nothing listens on target any more

	var attempts atomic.Int32
	opts := fastOptions()
	opts.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts.Add(1)
		return http.DefaultTransport.RoundTrip(r)
	})

	client := NewClient(opts)
	data := client.Fetch(context.Background(), target, 3)

	if len(data) != 0 {
		t.Errorf("expected empty result, got %q", data)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestFetchSingleAttemptFloor(t *testing.T) {
	var attempts atomic.Int32

	opts := fastOptions()
	opts.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts.Add(1)
		return nil, dialError()
	})

	NewClient(opts).Fetch(context.Background(), "http://segments.invalid/seg.ts", 0)

	if attempts.Load() != 1 {
		t.Errorf("expected maxAttempts < 1 to mean a single attempt, got %d", attempts.Load())
	}
}

func TestFetchEmptyURL(t *testing.T) {
	client := NewClient(DefaultOptions())
	if data := client.Fetch(context.Background(), "", 5); len(data) != 0 {
		t.Errorf("expected empty result for empty url, got %q", data)
	}
}

func TestFetchTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	opts := fastOptions()
	opts.Timeout = 50 * time.Millisecond

	start := time.Now()
	data := NewClient(opts).Fetch(context.Background(), server.URL, 5)

	if len(data) != 0 {
		t.Errorf("expected empty result, got %q", data)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout should not be retried, took %v", elapsed)
	}
}

func TestContextCancellation(t *testing.T) {
	opts := DefaultOptions()
	opts.RetryBackoff = time.Second
	opts.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, dialError()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	data := NewClient(opts).Fetch(ctx, "http://segments.invalid/seg.ts", 5)

	if len(data) != 0 {
		t.Errorf("expected empty result, got %q", data)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("expected backoff to stop on cancellation, took %v", elapsed)
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"dial", dialError(), true},
		{"wrapped dial", &url.Error{Op: "Get", URL: "http://x", Err: dialError()}, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "x.invalid"}, true},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"read op", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("boom")}, false},
		{"status", ErrNotFound, false},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConnectionError(tt.err); got != tt.expected {
				t.Errorf("IsConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestBackoffDuration(t *testing.T) {
	base := 100 * time.Millisecond
	max := 400 * time.Millisecond

	for attempt := 1; attempt <= 6; attempt++ {
		d := backoffDuration(base, max, attempt)
		if d > max*3/2 {
			t.Errorf("attempt %d: backoff %v exceeds jittered cap", attempt, d)
		}
		if d < base/2 {
			t.Errorf("attempt %d: backoff %v below jittered floor", attempt, d)
		}
	}

	if d := backoffDuration(0, max, 3); d != 0 {
		t.Errorf("expected zero backoff for zero base, got %v", d)
	}
}

func TestCheckStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{200, nil},
		{206, nil},
		{404, ErrNotFound},
		{403, ErrForbidden},
		{401, ErrUnauthorized},
		{503, ErrServerError},
	}

	for _, tt := range tests {
		err := checkStatusCode(tt.code)
		if tt.want == nil {
			if err != nil {
				t.Errorf("checkStatusCode(%d) = %v, want nil", tt.code, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("checkStatusCode(%d) = %v, want %v", tt.code, err, tt.want)
		}
	}

	if err := checkStatusCode(418); err == nil {
		t.Error("expected error for 418")
	}
}

func TestFetchLogsCarryTraceIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	var buf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), logctx.New(&buf, slog.LevelInfo, "json"))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID}))

	NewClient(fastOptions()).Fetch(ctx, server.URL+"/seg.ts", 3)

	if !strings.Contains(buf.String(), `"trace_id":"4bf92f3577b34da6a3ce929d0e0e4736"`) {
		t.Errorf("expected trace_id on failure log, got %s", buf.String())
	}
}

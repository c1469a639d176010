// Package http provides the HTTP client used to fetch stream segments.
//
// This package handles:
//   - Connection pooling sized for the worker pool
//   - A fixed per-attempt timeout
//   - Retry with exponential backoff, but only for connection-establishment failures
//   - Absorbing every failure into an empty result plus a diagnostic log line
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    MaxIdleConnsPerHost: 20,
//	    Timeout:             10 * time.Second,
//	})
//
//	data := client.Fetch(ctx, segmentURL, 5)
//	if len(data) == 0 {
//	    // the segment is unrecoverable; a gap is left at its index
//	}
//
// Tests and callers that need to control the network can supply their own
// [Options.Transport].
package http

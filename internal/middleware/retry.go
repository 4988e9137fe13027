// Package middleware provides the RoundTripper layers the client is
// assembled from: request logging, retry with backoff, and rate limiting.
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/telfari/go-restmeter/internal/backoff"
	"github.com/telfari/go-restmeter/observability"
)

// RetryConfig configures the retry middleware.
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	Logger      observability.Logger
}

// Retry returns a middleware that retries failed attempts with exponential
// backoff. Network errors, 5xx responses, and 429 responses are retried;
// 429 waits honor the Retry-After header. Other client errors and
// successful responses pass through untouched.
//
// Every physical send is counted into the request's Stats carrier. Only the
// terminal error survives; intermediate attempt errors are discarded.
func Retry(cfg RetryConfig) func(http.RoundTripper) http.RoundTripper {
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return &retryTransport{
			next:        next,
			maxRetries:  cfg.MaxRetries,
			initialWait: cfg.InitialWait,
			logger:      cfg.Logger,
		}
	}
}

type retryTransport struct {
	next        http.RoundTripper
	maxRetries  int
	initialWait time.Duration
	logger      observability.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	stats := StatsFrom(ctx)

	// Buffer the body so it can be replayed on retry.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read request body")
		}
	}

	var lastErr error
	var lastResp *http.Response

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		if stats != nil {
			stats.RecordAttempt()
		}
		resp, err := t.next.RoundTrip(req)

		if err == nil && !backoff.Retryable(resp.StatusCode) {
			return resp, nil
		}

		lastErr = err
		lastResp = resp

		if attempt == t.maxRetries {
			break
		}

		t.logger.Warn("retrying request",
			observability.Field{Key: "attempt", Value: attempt + 1},
			observability.Field{Key: "max_retries", Value: t.maxRetries},
			observability.Field{Key: "method", Value: req.Method},
			observability.Field{Key: "path", Value: req.URL.Path},
		)

		wait := t.waitFor(attempt, resp)

		if resp != nil {
			resp.Body.Close()
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "context canceled during retry wait")
		}
	}

	// Exhausted. A response, even an error one, is still a terminal
	// outcome for the caller to inspect.
	if lastResp != nil {
		return lastResp, nil
	}

	return nil, errors.Wrapf(lastErr, "request failed after %d attempts", t.maxRetries+1)
}

// waitFor computes the backoff before the next attempt: Retry-After for 429
// responses when present, exponential backoff otherwise.
func (t *retryTransport) waitFor(attempt int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if wait := backoff.ParseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			t.logger.Debug("honoring Retry-After",
				observability.Field{Key: "wait", Value: wait},
			)
			return wait
		}
	}

	return t.initialWait * time.Duration(1<<attempt)
}

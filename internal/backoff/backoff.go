// Package backoff holds retry classification and backoff parsing shared by
// the transport middleware.
package backoff

import (
	"net/http"
	"strconv"
	"time"
)

// Retryable reports whether a status code warrants another attempt:
// 429 (rate limited) and 5xx (transient server failures).
func Retryable(statusCode int) bool {
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}

// ParseRetryAfter parses a Retry-After header value into a wait duration.
// Both forms are accepted: delay seconds ("120") and HTTP-date. Returns 0
// for empty or unparseable values, and for dates in the past.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}

	return 0
}

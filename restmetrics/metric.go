package restmetrics

import (
	"time"

	"github.com/telfari/go-restmeter/route"
)

// StatusNone is the sentinel status code reported when no HTTP response was
// obtained for a request, for example on a network failure or when the
// request was short-circuited before reaching the wire.
const StatusNone = -1

// Client identifies the owning client instance of a request. Collectors use
// it to tell metrics apart when an application runs several clients side by
// side. The reference is informational; collectors must not call back into
// the client from a notification.
type Client interface {
	// ID returns a stable identifier for the client instance.
	ID() string

	// BaseURL returns the base URL the client executes requests against.
	BaseURL() string
}

// RequestMetric is an immutable snapshot of one completed request execution.
// It is constructed exactly once, after the request reaches a terminal
// outcome, and handed to the collector by value. The collector must copy
// anything it wants to retain beyond the notification call.
//
// The snapshot carries everything needed to derive latency distributions,
// error rates, retry rates, and queuing overhead; no live client state is
// required to interpret it.
type RequestMetric struct {
	// Client is the owning client instance. Informational only.
	Client Client

	// Route is the compiled route the request executed against.
	Route *route.Compiled

	// StatusCode is the HTTP status of the terminal attempt, or StatusNone
	// when no HTTP response was obtained.
	StatusCode int

	// Attempts is the number of HTTP attempts made to reach the terminal
	// outcome, including retries. Always at least 1.
	Attempts int

	// Duration is the wall-clock time from submission to terminal outcome.
	Duration time.Duration

	// Success reports whether StatusCode is in the non-error class (below
	// 400). Always false when StatusCode is StatusNone.
	Success bool

	// Queued reports whether the request passed through the rate-limit
	// scheduler's deferred path rather than firing immediately.
	Queued bool

	// Err is the terminal failure cause when no HTTP response was
	// received, nil otherwise. Intermediate per-attempt errors are not
	// preserved; only the final cause is kept.
	Err error
}

// NewRequestMetric builds the terminal snapshot for one request execution,
// normalizing the fields to the documented invariants: a non-nil err forces
// StatusCode to StatusNone, Success is derived from the status class, and
// attempts are clamped to 1 so a request short-circuited before reaching the
// transport still counts as one execution.
func NewRequestMetric(
	c Client,
	rt *route.Compiled,
	statusCode int,
	attempts int,
	duration time.Duration,
	queued bool,
	err error,
) RequestMetric {
	if err != nil {
		statusCode = StatusNone
	}
	if attempts < 1 {
		attempts = 1
	}
	if duration < 0 {
		duration = 0
	}

	return RequestMetric{
		Client:     c,
		Route:      rt,
		StatusCode: statusCode,
		Attempts:   attempts,
		Duration:   duration,
		Success:    statusCode != StatusNone && statusCode < 400,
		Queued:     queued,
		Err:        err,
	}
}

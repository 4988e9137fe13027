package ratelimit

import (
	"time"

	"github.com/telfari/go-restmeter/route"
)

// Reason classifies why a rate-limit event occurred.
type Reason string

const (
	// ReasonBucket means the per-route token bucket was exhausted.
	ReasonBucket Reason = "bucket"

	// ReasonGlobal means the client-wide limiter was exhausted.
	ReasonGlobal Reason = "global"

	// ReasonRetryAfter means the server directed a backoff via Retry-After.
	ReasonRetryAfter Reason = "retry_after"
)

// Event is an immutable description of one rate-limit occurrence: a request
// was delayed, throttled, or the server directed a backoff. Events are
// snapshots; no field references mutable scheduler state.
//
// Events are delivered to the scheduler's Notify func on the goroutine that
// detected the condition, which may differ from the goroutine that will
// eventually complete the affected request.
type Event struct {
	// Route is the affected route. Nil for events that are not tied to a
	// single route, such as global limiter exhaustion.
	Route *route.Compiled

	// Bucket is the rate-limit bucket key the event applies to.
	Bucket string

	// Reason classifies the occurrence.
	Reason Reason

	// Delay is how long the affected request will be held.
	Delay time.Duration

	// Global reports whether the event applies to the whole client rather
	// than a single bucket.
	Global bool
}

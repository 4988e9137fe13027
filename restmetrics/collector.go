package restmetrics

import (
	"github.com/telfari/go-restmeter/observability"
	"github.com/telfari/go-restmeter/ratelimit"
)

// Collector is the sink for request metrics. It bridges the client to
// metrics backends such as Prometheus or OpenTelemetry without coupling the
// request pipeline to either; see the promexport and otelexport subpackages
// for ready-made adapters.
//
// OnRequest is invoked synchronously on request-execution goroutines, one
// call per terminal request outcome. Implementations must be safe for
// concurrent invocation and must not block: hand off to an asynchronous
// export path rather than performing synchronous I/O in the callback.
// Implementations must not panic; a panicking collector is an integration
// defect, though producers isolate it so it cannot fail the request.
type Collector interface {
	// OnRequest is called exactly once per terminal request outcome.
	OnRequest(metric RequestMetric)
}

// RateLimitCollector is the optional capability of a Collector to also
// observe rate-limit and backoff events. Producers upgrade via type
// assertion; a Collector without this interface simply receives no
// rate-limit notifications.
//
// OnRateLimit is invoked on the goroutine that detected the rate-limit
// condition, zero or more times per request. For a single request, the
// rate-limit events tied to its queuing are delivered before the OnRequest
// call reporting its terminal outcome; no ordering holds across requests.
// The same concurrency and non-blocking obligations as OnRequest apply.
type RateLimitCollector interface {
	Collector

	// OnRateLimit is called for every rate-limit or backoff occurrence.
	OnRateLimit(event ratelimit.Event)
}

// NoopCollector discards all notifications. Embed it to implement only the
// operations you care about, or use it directly to disable metrics.
type NoopCollector struct{}

// OnRequest does nothing.
func (NoopCollector) OnRequest(RequestMetric) {}

// OnRateLimit does nothing.
func (NoopCollector) OnRateLimit(ratelimit.Event) {}

type multiCollector struct {
	collectors []Collector
}

// Multi fans notifications out to several collectors in order. Collectors
// lacking the rate-limit capability are skipped for rate-limit events.
//
//nolint:ireturn // Fan-out must be usable anywhere a Collector is
func Multi(collectors ...Collector) Collector {
	return &multiCollector{collectors: collectors}
}

func (m *multiCollector) OnRequest(metric RequestMetric) {
	for _, c := range m.collectors {
		c.OnRequest(metric)
	}
}

func (m *multiCollector) OnRateLimit(event ratelimit.Event) {
	for _, c := range m.collectors {
		if rl, ok := c.(RateLimitCollector); ok {
			rl.OnRateLimit(event)
		}
	}
}

// Dispatch delivers metric to c, isolating the caller from collector
// panics. A panic is reported through log and swallowed; metric delivery
// can never surface as a request failure. A nil collector is a no-op.
func Dispatch(log observability.Logger, c Collector, metric RequestMetric) {
	if c == nil {
		return
	}
	defer recoverPanic(log, "request metric collector panicked")
	c.OnRequest(metric)
}

// DispatchRateLimit delivers event to c when it implements
// RateLimitCollector, with the same panic isolation as Dispatch. Collectors
// without the capability receive nothing; that is the default no-op.
func DispatchRateLimit(log observability.Logger, c Collector, event ratelimit.Event) {
	rl, ok := c.(RateLimitCollector)
	if !ok {
		return
	}
	defer recoverPanic(log, "rate limit collector panicked")
	rl.OnRateLimit(event)
}

func recoverPanic(log observability.Logger, msg string) {
	if r := recover(); r != nil {
		if log == nil {
			return
		}
		log.Error(msg, observability.Field{Key: "panic", Value: r})
	}
}

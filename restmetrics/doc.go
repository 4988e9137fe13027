// Package restmetrics defines the metrics-emission contract of go-restmeter:
// the Collector sink and the immutable RequestMetric snapshot it carries.
//
// The package deliberately imports no metrics technology. The request
// pipeline notifies a Collector after every terminal request outcome, and
// optionally notifies rate-limit occurrences when the collector implements
// RateLimitCollector; what happens to the events (counters, histograms,
// tracing spans, log lines) is entirely the adapter's business. The
// promexport and otelexport subpackages provide Prometheus and
// OpenTelemetry adapters.
//
// Data flows one way, producer to collector. Notifications are
// fire-and-forget: there is no return value, no way for a collector to
// affect an already-decided outcome, and no delivery guarantee beyond the
// single synchronous call. Collectors are shared across all in-flight
// requests of a client and are invoked concurrently; they must be
// thread-safe and must not block the calling goroutine.
package restmetrics

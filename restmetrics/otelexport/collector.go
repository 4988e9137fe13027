// Package otelexport adapts the restmetrics collector contract to the
// OpenTelemetry metrics API. The adapter only depends on the API; the
// application owns the MeterProvider and the export pipeline behind it.
package otelexport

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/telfari/go-restmeter/ratelimit"
	"github.com/telfari/go-restmeter/restmetrics"
	"github.com/telfari/go-restmeter/route"
)

// Collector exports request and rate-limit metrics through OpenTelemetry
// instruments.
type Collector struct {
	requests        metric.Int64Counter
	queuedRequests  metric.Int64Counter
	requestErrors   metric.Int64Counter
	duration        metric.Float64Histogram
	attempts        metric.Int64Histogram
	rateLimitEvents metric.Int64Counter
	rateLimitDelay  metric.Float64Histogram
}

var (
	_ restmetrics.Collector          = (*Collector)(nil)
	_ restmetrics.RateLimitCollector = (*Collector)(nil)
)

// New creates the adapter's instruments on meter.
func New(meter metric.Meter) (*Collector, error) {
	c := &Collector{}
	var err error

	if c.requests, err = meter.Int64Counter("rest.client.requests",
		metric.WithDescription("Terminal request outcomes"),
	); err != nil {
		return nil, errors.Wrap(err, "create requests counter")
	}

	if c.queuedRequests, err = meter.Int64Counter("rest.client.queued_requests",
		metric.WithDescription("Requests that passed through the deferred rate-limit path"),
	); err != nil {
		return nil, errors.Wrap(err, "create queued requests counter")
	}

	if c.requestErrors, err = meter.Int64Counter("rest.client.request_errors",
		metric.WithDescription("Requests that obtained no HTTP response"),
	); err != nil {
		return nil, errors.Wrap(err, "create request errors counter")
	}

	if c.duration, err = meter.Float64Histogram("rest.client.request_duration",
		metric.WithDescription("Wall-clock time from submission to terminal outcome"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "create duration histogram")
	}

	if c.attempts, err = meter.Int64Histogram("rest.client.request_attempts",
		metric.WithDescription("HTTP attempts used to reach a terminal outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "create attempts histogram")
	}

	if c.rateLimitEvents, err = meter.Int64Counter("rest.client.rate_limit_events",
		metric.WithDescription("Rate-limit occurrences"),
	); err != nil {
		return nil, errors.Wrap(err, "create rate limit events counter")
	}

	if c.rateLimitDelay, err = meter.Float64Histogram("rest.client.rate_limit_delay",
		metric.WithDescription("How long requests were held by the rate limiter"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "create rate limit delay histogram")
	}

	return c, nil
}

// OnRequest records the terminal outcome of one request execution.
func (c *Collector) OnRequest(m restmetrics.RequestMetric) {
	ctx := context.Background()

	status := "none"
	if m.StatusCode != restmetrics.StatusNone {
		status = strconv.Itoa(m.StatusCode)
	}

	routeAttrs := routeAttributes(m.Route)
	outcome := metric.WithAttributes(append(routeAttrs,
		attribute.String("status", status),
		attribute.Bool("success", m.Success),
	)...)
	byRoute := metric.WithAttributes(routeAttrs...)

	c.requests.Add(ctx, 1, outcome)
	c.duration.Record(ctx, m.Duration.Seconds(), byRoute)
	c.attempts.Record(ctx, int64(m.Attempts), byRoute)

	if m.Queued {
		c.queuedRequests.Add(ctx, 1, byRoute)
	}
	if m.Err != nil {
		c.requestErrors.Add(ctx, 1, byRoute)
	}
}

// OnRateLimit records one rate-limit occurrence.
func (c *Collector) OnRateLimit(ev ratelimit.Event) {
	ctx := context.Background()

	scope := "bucket"
	if ev.Global {
		scope = "global"
	}
	attrs := metric.WithAttributes(
		attribute.String("reason", string(ev.Reason)),
		attribute.String("scope", scope),
	)

	c.rateLimitEvents.Add(ctx, 1, attrs)
	c.rateLimitDelay.Record(ctx, ev.Delay.Seconds(),
		metric.WithAttributes(attribute.String("reason", string(ev.Reason))))
}

func routeAttributes(rt *route.Compiled) []attribute.KeyValue {
	if rt == nil {
		return []attribute.KeyValue{
			attribute.String("route", "unknown"),
			attribute.String("method", "unknown"),
		}
	}
	return []attribute.KeyValue{
		attribute.String("route", rt.Template()),
		attribute.String("method", rt.Method()),
	}
}

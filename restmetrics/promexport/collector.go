// Package promexport adapts the restmetrics collector contract to
// Prometheus. Instrument updates are cheap synchronous counter and
// histogram operations, so the adapter satisfies the non-blocking
// obligation without an internal queue.
package promexport

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/telfari/go-restmeter/ratelimit"
	"github.com/telfari/go-restmeter/restmetrics"
	"github.com/telfari/go-restmeter/route"
)

// statusNone labels metrics for requests that produced no HTTP response.
const statusNone = "none"

// Config configures the Prometheus adapter.
type Config struct {
	// Namespace and Subsystem prefix every metric name.
	Namespace string
	Subsystem string

	// DurationBuckets overrides the request duration histogram buckets.
	DurationBuckets []float64
}

// Collector exports request and rate-limit metrics as Prometheus series.
//
// Series: requests_total{route,method,status}, queued_requests_total{route,
// method}, request_errors_total{route,method}, request_duration_seconds{
// route,method}, request_attempts{route,method}, rate_limit_events_total{
// reason,scope}, rate_limit_delay_seconds{reason}. Routes are labeled by
// template to keep cardinality bounded.
type Collector struct {
	requests       *prometheus.CounterVec
	queuedRequests *prometheus.CounterVec
	requestErrors  *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	attempts       *prometheus.HistogramVec

	rateLimitEvents *prometheus.CounterVec
	rateLimitDelay  *prometheus.HistogramVec
}

var (
	_ restmetrics.Collector          = (*Collector)(nil)
	_ restmetrics.RateLimitCollector = (*Collector)(nil)
)

// New creates the adapter and registers its metrics with registerer.
func New(cfg Config, registerer prometheus.Registerer) *Collector {
	durationBuckets := cfg.DurationBuckets
	if durationBuckets == nil {
		durationBuckets = prometheus.DefBuckets
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Terminal request outcomes by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),
		queuedRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "queued_requests_total",
				Help:      "Requests that passed through the deferred rate-limit path",
			},
			[]string{"route", "method"},
		),
		requestErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_errors_total",
				Help:      "Requests that obtained no HTTP response",
			},
			[]string{"route", "method"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Wall-clock time from submission to terminal outcome",
				Buckets:   durationBuckets,
			},
			[]string{"route", "method"},
		),
		attempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_attempts",
				Help:      "HTTP attempts used to reach a terminal outcome",
				Buckets:   []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"route", "method"},
		),
		rateLimitEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rate_limit_events_total",
				Help:      "Rate-limit occurrences by reason and scope",
			},
			[]string{"reason", "scope"},
		),
		rateLimitDelay: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rate_limit_delay_seconds",
				Help:      "How long requests were held by the rate limiter",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"reason"},
		),
	}

	registerer.MustRegister(
		c.requests,
		c.queuedRequests,
		c.requestErrors,
		c.duration,
		c.attempts,
		c.rateLimitEvents,
		c.rateLimitDelay,
	)

	return c
}

// OnRequest records the terminal outcome of one request execution.
func (c *Collector) OnRequest(metric restmetrics.RequestMetric) {
	routeLabel, method := routeLabels(metric.Route)

	status := statusNone
	if metric.StatusCode != restmetrics.StatusNone {
		status = strconv.Itoa(metric.StatusCode)
	}

	c.requests.WithLabelValues(routeLabel, method, status).Inc()
	c.duration.WithLabelValues(routeLabel, method).Observe(metric.Duration.Seconds())
	c.attempts.WithLabelValues(routeLabel, method).Observe(float64(metric.Attempts))

	if metric.Queued {
		c.queuedRequests.WithLabelValues(routeLabel, method).Inc()
	}
	if metric.Err != nil {
		c.requestErrors.WithLabelValues(routeLabel, method).Inc()
	}
}

// OnRateLimit records one rate-limit occurrence.
func (c *Collector) OnRateLimit(event ratelimit.Event) {
	scope := "bucket"
	if event.Global {
		scope = "global"
	}

	c.rateLimitEvents.WithLabelValues(string(event.Reason), scope).Inc()
	c.rateLimitDelay.WithLabelValues(string(event.Reason)).Observe(event.Delay.Seconds())
}

func routeLabels(rt *route.Compiled) (string, string) {
	if rt == nil {
		return "unknown", "unknown"
	}
	return rt.Template(), rt.Method()
}

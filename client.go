// Package restmeter provides a rate-limited REST client with a pluggable
// metrics boundary. Every request execution and rate-limit occurrence is
// reported to a restmetrics.Collector, so any metrics backend can observe
// request-level SLOs without the client depending on it.
package restmeter

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/telfari/go-restmeter/internal/httpclient"
	"github.com/telfari/go-restmeter/internal/middleware"
	"github.com/telfari/go-restmeter/observability"
	"github.com/telfari/go-restmeter/ratelimit"
	"github.com/telfari/go-restmeter/restmetrics"
	"github.com/telfari/go-restmeter/route"
)

const (
	// DefaultRateLimitPerMinute is the per-bucket request rate applied when
	// none is configured.
	DefaultRateLimitPerMinute = 600

	DefaultMaxRetries = 3
	DefaultRetryWait  = 1 * time.Second
	DefaultTimeout    = 30 * time.Second

	DefaultQueueWorkers = 4
	DefaultQueueSize    = 256
)

// ClientConfig holds the configuration for a Client.
type ClientConfig struct {
	// BaseURL is the API origin requests are executed against. Required.
	BaseURL string

	// Header is added to every outgoing request (auth, accept, ...).
	Header http.Header

	// HTTPClient replaces the default transport client when set.
	HTTPClient *http.Client

	// RateLimitPerMinute is the sustained per-bucket request rate.
	// Defaults to DefaultRateLimitPerMinute; negative disables limiting.
	RateLimitPerMinute int

	// GlobalRateLimitPerMinute caps the client-wide rate across all
	// buckets. Zero means no global cap.
	GlobalRateLimitPerMinute int

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryWait is the initial backoff between attempts.
	RetryWait time.Duration

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Logger receives structured logs. Defaults to a no-op logger.
	Logger observability.Logger

	// Collector receives request metrics, and rate-limit events when it
	// implements restmetrics.RateLimitCollector. Defaults to a no-op.
	// The collector is shared across all requests and must be
	// thread-safe and non-blocking; a misbehaving collector cannot fail
	// requests, but it can distort what the backend sees.
	Collector restmetrics.Collector

	// QueueWorkers is the number of goroutines draining the Enqueue path.
	QueueWorkers int

	// QueueSize is the Enqueue buffer capacity.
	QueueSize int
}

// Client executes REST requests under a rate-limit scheduler and reports
// every terminal outcome to the configured collector. Safe for concurrent
// use.
type Client struct {
	id        string
	baseURL   string
	header    http.Header
	http      *httpclient.Client
	scheduler *ratelimit.Scheduler
	logger    observability.Logger
	collector restmetrics.Collector

	queue  chan queuedRequest
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// New creates a client from cfg, applying defaults for unset fields.
func New(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.Newf("base URL %q must be absolute", cfg.BaseURL)
	}

	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = DefaultRateLimitPerMinute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryWait == 0 {
		cfg.RetryWait = DefaultRetryWait
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}
	if cfg.Collector == nil {
		cfg.Collector = restmetrics.NoopCollector{}
	}
	if cfg.QueueWorkers <= 0 {
		cfg.QueueWorkers = DefaultQueueWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	c := &Client{
		id:        uuid.NewString(),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		header:    cfg.Header.Clone(),
		logger:    cfg.Logger,
		collector: cfg.Collector,
		queue:     make(chan queuedRequest, cfg.QueueSize),
		done:      make(chan struct{}),
	}

	c.scheduler = ratelimit.New(ratelimit.Config{
		PerMinute:       cfg.RateLimitPerMinute,
		GlobalPerMinute: cfg.GlobalRateLimitPerMinute,
		Notify: func(ev ratelimit.Event) {
			restmetrics.DispatchRateLimit(c.logger, c.collector, ev)
		},
	})

	opts := []httpclient.Option{
		httpclient.WithTimeout(cfg.Timeout),
		httpclient.WithMiddleware(
			middleware.Logging(cfg.Logger),
			middleware.Retry(middleware.RetryConfig{
				MaxRetries:  cfg.MaxRetries,
				InitialWait: cfg.RetryWait,
				Logger:      cfg.Logger,
			}),
			middleware.RateLimit(middleware.RateLimitConfig{
				Scheduler: c.scheduler,
				Logger:    cfg.Logger,
			}),
		),
	}
	if cfg.HTTPClient != nil {
		opts = append([]httpclient.Option{httpclient.WithHTTPClient(cfg.HTTPClient)}, opts...)
	}
	c.http = httpclient.New(opts...)

	c.startWorkers(cfg.QueueWorkers)

	return c, nil
}

// ID returns the stable identifier of this client instance.
func (c *Client) ID() string { return c.id }

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string { return c.baseURL }

// Do executes the compiled route synchronously and returns the terminal
// response. Retries and rate limiting happen inside; the response (or
// error) returned is the terminal outcome, which is also what the collector
// sees. The caller owns the response body.
func (c *Client) Do(ctx context.Context, rt *route.Compiled, body io.Reader) (*http.Response, error) {
	if rt == nil {
		return nil, errors.New("route is required")
	}

	start := time.Now()
	resp, stats, err := c.execute(ctx, rt, body, false)
	c.report(rt, resp, stats, err, time.Since(start))

	return resp, err
}

// execute runs one request through the middleware chain with a fresh stats
// carrier and the route identity in context. queued marks requests arriving
// through the asynchronous queue path.
func (c *Client) execute(ctx context.Context, rt *route.Compiled, body io.Reader, queued bool) (*http.Response, *middleware.Stats, error) {
	ctx, stats := middleware.WithStats(ctx)
	ctx = route.NewContext(ctx, rt)
	if queued {
		stats.MarkQueued()
	}

	req, err := http.NewRequestWithContext(ctx, rt.Method(), c.baseURL+rt.Path(), body)
	if err != nil {
		return nil, stats, errors.Wrap(err, "failed to build request")
	}
	for key, values := range c.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, stats, errors.Wrapf(err, "%s %s", rt.Method(), rt.Template())
	}
	return resp, stats, nil
}

// report builds the terminal RequestMetric and dispatches it. Metric
// delivery is isolated; it can never surface as a request failure.
func (c *Client) report(rt *route.Compiled, resp *http.Response, stats *middleware.Stats, err error, duration time.Duration) {
	statusCode := restmetrics.StatusNone
	if err == nil && resp != nil {
		statusCode = resp.StatusCode
	}

	metric := restmetrics.NewRequestMetric(
		c, rt, statusCode, stats.Attempts(), duration, stats.Queued(), err,
	)
	restmetrics.Dispatch(c.logger, c.collector, metric)
}

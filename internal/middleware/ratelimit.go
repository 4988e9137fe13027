package middleware

import (
	"net/http"

	"github.com/telfari/go-restmeter/internal/backoff"
	"github.com/telfari/go-restmeter/observability"
	"github.com/telfari/go-restmeter/ratelimit"
	"github.com/telfari/go-restmeter/route"
)

// RateLimitConfig configures the rate limit middleware.
type RateLimitConfig struct {
	Scheduler *ratelimit.Scheduler
	Logger    observability.Logger
}

// RateLimit returns a middleware that acquires a slot from the scheduler
// before every physical send. When the scheduler defers the request, the
// request's Stats carrier is marked queued. A 429 response feeds its
// Retry-After back into the scheduler so subsequent acquisitions on the
// same bucket hold off.
//
// The middleware sits below Retry so that every retry attempt is
// individually rate limited.
func RateLimit(cfg RateLimitConfig) func(http.RoundTripper) http.RoundTripper {
	if cfg.Logger == nil {
		cfg.Logger = observability.NoopLogger()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return &rateLimitTransport{
			next:      next,
			scheduler: cfg.Scheduler,
			logger:    cfg.Logger,
		}
	}
}

type rateLimitTransport struct {
	next      http.RoundTripper
	scheduler *ratelimit.Scheduler
	logger    observability.Logger
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.scheduler == nil {
		return t.next.RoundTrip(req)
	}

	ctx := req.Context()
	rt := route.FromContext(ctx)

	queued, err := t.scheduler.Acquire(ctx, rt)
	if queued {
		if stats := StatsFrom(ctx); stats != nil {
			stats.MarkQueued()
		}
	}
	if err != nil {
		return nil, err
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if wait := backoff.ParseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			global := resp.Header.Get("X-RateLimit-Scope") == "global"
			t.logger.Debug("server directed backoff",
				observability.Field{Key: "wait", Value: wait},
				observability.Field{Key: "global", Value: global},
				observability.Field{Key: "path", Value: req.URL.Path},
			)
			t.scheduler.NoteRetryAfter(rt, wait, global)
		}
	}

	return resp, nil
}

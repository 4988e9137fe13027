package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telfari/go-restmeter/internal/middleware"
	"github.com/telfari/go-restmeter/ratelimit"
	"github.com/telfari/go-restmeter/route"
)

func TestRateLimitMarksQueued(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	scheduler := ratelimit.New(ratelimit.Config{PerMinute: 600, Burst: 1})
	transport := middleware.RateLimit(middleware.RateLimitConfig{
		Scheduler: scheduler,
	})(http.DefaultTransport)

	rt := route.Get("/users").MustCompile()

	do := func() *middleware.Stats {
		ctx, stats := middleware.WithStats(context.Background())
		ctx = route.NewContext(ctx, rt)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
		require.NoError(t, err)

		resp, err := transport.RoundTrip(req)
		require.NoError(t, err)
		resp.Body.Close()
		return stats
	}

	// First request finds a token, second has to wait.
	assert.False(t, do().Queued())
	assert.True(t, do().Queued())
}

func TestRateLimitNilScheduler(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := middleware.RateLimit(middleware.RateLimitConfig{})(http.DefaultTransport)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitFeedsRetryAfterBack(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var mu sync.Mutex
	var events []ratelimit.Event
	scheduler := ratelimit.New(ratelimit.Config{
		PerMinute: 6000,
		Burst:     10,
		Notify: func(ev ratelimit.Event) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		},
	})

	transport := middleware.RateLimit(middleware.RateLimitConfig{
		Scheduler: scheduler,
	})(http.DefaultTransport)

	rt := route.Get("/users").MustCompile()
	ctx := route.NewContext(context.Background(), rt)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	// The 429 response registered a server-directed hold.
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, ratelimit.ReasonRetryAfter, events[0].Reason)
	assert.Equal(t, time.Second, events[0].Delay)
}

func TestStats(t *testing.T) {
	t.Parallel()

	ctx, stats := middleware.WithStats(context.Background())

	assert.Equal(t, 0, stats.Attempts())
	assert.False(t, stats.Queued())

	stats.RecordAttempt()
	stats.RecordAttempt()
	stats.MarkQueued()

	assert.Equal(t, 2, stats.Attempts())
	assert.True(t, stats.Queued())

	// The same carrier is visible through the context.
	assert.Same(t, stats, middleware.StatsFrom(ctx))
	assert.Nil(t, middleware.StatsFrom(context.Background()))
}

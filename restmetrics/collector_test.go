package restmetrics_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telfari/go-restmeter/observability"
	"github.com/telfari/go-restmeter/ratelimit"
	"github.com/telfari/go-restmeter/restmetrics"
)

// captureCollector is a thread-safe collector that records everything it
// receives, implementing the optional rate-limit capability.
type captureCollector struct {
	mu      sync.Mutex
	metrics []restmetrics.RequestMetric
	events  []ratelimit.Event
}

func (c *captureCollector) OnRequest(m restmetrics.RequestMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append(c.metrics, m)
}

func (c *captureCollector) OnRateLimit(ev ratelimit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// requestOnlyCollector lacks the rate-limit capability.
type requestOnlyCollector struct {
	mu      sync.Mutex
	metrics []restmetrics.RequestMetric
}

func (c *requestOnlyCollector) OnRequest(m restmetrics.RequestMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = append(c.metrics, m)
}

type panickyCollector struct{}

func (panickyCollector) OnRequest(restmetrics.RequestMetric) { panic("request boom") }
func (panickyCollector) OnRateLimit(ratelimit.Event)         { panic("ratelimit boom") }

func TestNoopCollector(t *testing.T) {
	t.Parallel()

	// The default no-op must do nothing and never panic.
	var c restmetrics.Collector = restmetrics.NoopCollector{}
	c.OnRequest(restmetrics.RequestMetric{})

	rl, ok := c.(restmetrics.RateLimitCollector)
	require.True(t, ok)
	rl.OnRateLimit(ratelimit.Event{})
}

func TestDispatchIsolatesPanics(t *testing.T) {
	t.Parallel()

	// A panicking collector must not propagate to the producer.
	assert.NotPanics(t, func() {
		restmetrics.Dispatch(observability.NoopLogger(), panickyCollector{}, restmetrics.RequestMetric{})
	})
	assert.NotPanics(t, func() {
		restmetrics.DispatchRateLimit(observability.NoopLogger(), panickyCollector{}, ratelimit.Event{})
	})

	// Nil logger must not break the isolation path either.
	assert.NotPanics(t, func() {
		restmetrics.Dispatch(nil, panickyCollector{}, restmetrics.RequestMetric{})
	})
}

func TestDispatchNilCollector(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		restmetrics.Dispatch(observability.NoopLogger(), nil, restmetrics.RequestMetric{})
		restmetrics.DispatchRateLimit(observability.NoopLogger(), nil, ratelimit.Event{})
	})
}

func TestDispatchRateLimitSkipsIncapableCollector(t *testing.T) {
	t.Parallel()

	c := &requestOnlyCollector{}
	restmetrics.DispatchRateLimit(observability.NoopLogger(), c, ratelimit.Event{Reason: ratelimit.ReasonBucket})

	// No capability, no observable action.
	assert.Empty(t, c.metrics)
}

func TestMultiFanOut(t *testing.T) {
	t.Parallel()

	first := &captureCollector{}
	second := &requestOnlyCollector{}
	multi := restmetrics.Multi(first, second)

	metric := restmetrics.NewRequestMetric(nil, nil, 200, 1, time.Millisecond, false, nil)
	multi.OnRequest(metric)

	event := ratelimit.Event{Reason: ratelimit.ReasonGlobal, Global: true}
	restmetrics.DispatchRateLimit(observability.NoopLogger(), multi, event)

	require.Len(t, first.metrics, 1)
	require.Len(t, second.metrics, 1)
	assert.Equal(t, metric, first.metrics[0])

	// Only the capable collector saw the rate-limit event.
	require.Len(t, first.events, 1)
	assert.Equal(t, event, first.events[0])
}

func TestConcurrentDispatchLosesNothing(t *testing.T) {
	t.Parallel()

	const workers = 100

	c := &captureCollector{}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := range workers {
		go func() {
			defer wg.Done()
			m := restmetrics.NewRequestMetric(nil, nil, 200, i+1, time.Duration(i)*time.Millisecond, false, nil)
			restmetrics.Dispatch(observability.NoopLogger(), c, m)
		}()
	}
	wg.Wait()

	// No metric lost, duplicated, or corrupted.
	require.Len(t, c.metrics, workers)

	seen := make(map[int]bool, workers)
	for _, m := range c.metrics {
		assert.False(t, seen[m.Attempts], "attempts value %d delivered twice", m.Attempts)
		seen[m.Attempts] = true
		assert.Equal(t, time.Duration(m.Attempts-1)*time.Millisecond, m.Duration)
	}
	assert.Len(t, seen, workers)
}

// BenchmarkDispatchNoop measures the overhead of metric emission when no
// collector is configured.
func BenchmarkDispatchNoop(b *testing.B) {
	logger := observability.NoopLogger()
	collector := restmetrics.NoopCollector{}
	metric := restmetrics.NewRequestMetric(nil, nil, 200, 1, time.Millisecond, false, nil)

	for b.Loop() {
		restmetrics.Dispatch(logger, collector, metric)
	}
}

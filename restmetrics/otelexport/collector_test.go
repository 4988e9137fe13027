package otelexport_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/telfari/go-restmeter/ratelimit"
	"github.com/telfari/go-restmeter/restmetrics"
	"github.com/telfari/go-restmeter/restmetrics/otelexport"
	"github.com/telfari/go-restmeter/route"
)

func TestNew(t *testing.T) {
	t.Parallel()

	meter := noop.NewMeterProvider().Meter("test")
	collector, err := otelexport.New(meter)

	require.NoError(t, err)
	require.NotNil(t, collector)

	var c restmetrics.Collector = collector
	_, ok := c.(restmetrics.RateLimitCollector)
	assert.True(t, ok, "adapter must carry the rate-limit capability")
}

func TestNotificationsDoNotPanic(t *testing.T) {
	t.Parallel()

	meter := noop.NewMeterProvider().Meter("test")
	collector, err := otelexport.New(meter)
	require.NoError(t, err)

	rt := route.Get("/users/{id}").MustCompile("42")

	assert.NotPanics(t, func() {
		collector.OnRequest(restmetrics.NewRequestMetric(nil, rt, 200, 1, 50*time.Millisecond, false, nil))
		collector.OnRequest(restmetrics.NewRequestMetric(nil, nil, restmetrics.StatusNone, 3, time.Second, true, assert.AnError))
		collector.OnRateLimit(ratelimit.Event{Reason: ratelimit.ReasonGlobal, Delay: time.Second, Global: true})
	})
}

package restmeter

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/telfari/go-restmeter/observability"
	"github.com/telfari/go-restmeter/restmetrics"
	"github.com/telfari/go-restmeter/route"
)

// Result is the terminal outcome of an enqueued request.
type Result struct {
	Response *http.Response
	Err      error
}

type queuedRequest struct {
	ctx       context.Context
	rt        *route.Compiled
	body      io.Reader
	submitted time.Time
	out       chan Result
}

var errClientClosed = errors.New("client is closed")

// Enqueue submits the request to the asynchronous execution path and
// returns a channel that delivers the terminal outcome. The returned
// channel is buffered; the result is delivered even if nobody reads it.
//
// Requests executed through this path report Queued=true in their metric,
// and the metric duration is measured from submission, so queue wait is
// included in the observed latency. When the queue is full, Enqueue blocks
// until there is room or ctx is canceled; a canceled submission is itself a
// terminal outcome and is reported to the collector.
func (c *Client) Enqueue(ctx context.Context, rt *route.Compiled, body io.Reader) <-chan Result {
	out := make(chan Result, 1)

	if rt == nil {
		out <- Result{Err: errors.New("route is required")}
		return out
	}

	qr := queuedRequest{
		ctx:       ctx,
		rt:        rt,
		body:      body,
		submitted: time.Now(),
		out:       out,
	}

	// The read lock excludes Close, so the queue channel cannot be closed
	// under a pending send.
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		out <- Result{Err: errClientClosed}
		return out
	}

	select {
	case c.queue <- qr:
	case <-ctx.Done():
		err := errors.Wrap(ctx.Err(), "context canceled before request was queued")
		c.reportRejected(rt, qr.submitted, err)
		out <- Result{Err: err}
	}
	c.mu.RUnlock()

	return out
}

// Close stops accepting new work, drains the queue, and waits for the
// workers to finish. In-flight and already-queued requests complete
// normally. Close is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.queue)
	<-c.done
}

func (c *Client) startWorkers(n int) {
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			c.work()
		}()
	}
	go func() {
		wg.Wait()
		close(c.done)
	}()
}

func (c *Client) work() {
	for qr := range c.queue {
		if err := qr.ctx.Err(); err != nil {
			wrapped := errors.Wrap(err, "context canceled while queued")
			c.reportRejected(qr.rt, qr.submitted, wrapped)
			qr.out <- Result{Err: wrapped}
			continue
		}

		resp, stats, err := c.execute(qr.ctx, qr.rt, qr.body, true)
		c.report(qr.rt, resp, stats, err, time.Since(qr.submitted))

		if err != nil {
			c.logger.Debug("queued request failed",
				observability.Field{Key: "route", Value: qr.rt.String()},
				observability.Field{Key: "error", Value: err.Error()},
			)
		}
		qr.out <- Result{Response: resp, Err: err}
	}
}

// reportRejected emits the terminal metric for a queued request that never
// reached the transport: no response, queued, one logical attempt.
func (c *Client) reportRejected(rt *route.Compiled, submitted time.Time, err error) {
	metric := restmetrics.NewRequestMetric(
		c, rt, restmetrics.StatusNone, 0, time.Since(submitted), true, err,
	)
	restmetrics.Dispatch(c.logger, c.collector, metric)
}

// Package httpclient provides an HTTP client assembled from a chain of
// RoundTripper middleware.
package httpclient

import (
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// Middleware wraps an http.RoundTripper to add behavior around it.
type Middleware func(http.RoundTripper) http.RoundTripper

// Client executes requests through a configured middleware chain.
type Client struct {
	base       *http.Client
	middleware []Middleware
}

// New builds a client from the given options. Middleware is applied in
// reverse registration order so that the first registered middleware is the
// outermost layer:
//
//	WithMiddleware(A, B, C) produces A(B(C(transport)))
//
// which lets outer concerns (logging) be listed before inner ones (rate
// limiting).
func New(opts ...Option) *Client {
	c := &Client{
		base: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	if len(c.middleware) > 0 {
		transport := c.base.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		for i := len(c.middleware) - 1; i >= 0; i-- {
			transport = c.middleware[i](transport)
		}
		c.base.Transport = transport
	}

	return c
}

// Do executes req through the middleware chain.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.base.Do(req)
}

// Unwrap returns the underlying http.Client for code that requires one.
func (c *Client) Unwrap() *http.Client {
	return c.base
}

package middleware

import (
	"net/http"
	"time"

	"github.com/telfari/go-restmeter/observability"
	"github.com/telfari/go-restmeter/route"
)

// Logging returns a middleware that logs request starts, completions, and
// failures. When the request context carries a compiled route, its template
// is logged instead of the raw path so that log aggregation stays bounded.
func Logging(logger observability.Logger) func(http.RoundTripper) http.RoundTripper {
	if logger == nil {
		logger = observability.NoopLogger()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return &loggingTransport{next: next, logger: logger}
	}
}

type loggingTransport struct {
	next   http.RoundTripper
	logger observability.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	endpoint := req.URL.Path
	if rt := route.FromContext(req.Context()); rt != nil {
		endpoint = rt.Template()
	}

	t.logger.Debug("http request started",
		observability.Field{Key: "method", Value: req.Method},
		observability.Field{Key: "endpoint", Value: endpoint},
	)

	resp, err := t.next.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		t.logger.Error("http request failed",
			observability.Field{Key: "method", Value: req.Method},
			observability.Field{Key: "endpoint", Value: endpoint},
			observability.Field{Key: "duration", Value: duration},
			observability.Field{Key: "error", Value: err.Error()},
		)

		//nolint:wrapcheck // Logging layer passes the error through unchanged
		return nil, err
	}

	fields := []observability.Field{
		{Key: "method", Value: req.Method},
		{Key: "endpoint", Value: endpoint},
		{Key: "status", Value: resp.StatusCode},
		{Key: "duration", Value: duration},
	}

	if resp.StatusCode >= http.StatusBadRequest {
		t.logger.Warn("http request completed with error", fields...)
	} else {
		t.logger.Debug("http request completed", fields...)
	}

	return resp, nil
}

// Package observability provides the structured logging boundary used
// throughout go-restmeter.
//
// The Logger interface lets applications plug in their own logging backend:
//
//	client, err := restmeter.New(restmeter.ClientConfig{
//		BaseURL: "https://api.example.com",
//		Logger:  observability.NewSlogLogger(slog.Default()),
//	})
//
// When no logger is configured the library uses a no-op implementation, so
// logging has zero overhead unless requested.
//
// Metrics do not flow through this package; they are delivered to a
// restmetrics.Collector configured on the client.
package observability

package metrics

import (
	"time"
)

// HTTPMetrics provides observability for the file server's request loop.
//
// Implementations collect request counts, latency, bytes served and the
// connection lifecycle. Passing nil to the server selects a no-op
// implementation with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	m := prometheus.NewHTTPMetrics()
//	srv, err := server.New(cfg, server.WithMetrics(m))
//
//	// Without metrics (no-op)
//	srv, err := server.New(cfg)
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: request method as received ("" if none could be parsed)
	//   - status: response status sent (0 if nothing was sent)
	//   - duration: time from accept to the end of the response
	//   - bytes: response bytes written, headers included
	RecordRequest(method string, status int, duration time.Duration, bytes int64)

	// RecordRequestStart marks a request as in flight.
	RecordRequestStart()

	// RecordRequestEnd clears the in-flight mark set by RecordRequestStart.
	RecordRequestEnd()

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordAcceptError increments the failed accept counter.
	RecordAcceptError()

	// RecordTraversalBlocked counts requests whose path contained "..".
	RecordTraversalBlocked()
}

// NewNoopHTTPMetrics returns an HTTPMetrics that records nothing.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

// noopHTTPMetrics is a no-op implementation of HTTPMetrics with zero overhead.
type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(string, int, time.Duration, int64) {}
func (noopHTTPMetrics) RecordRequestStart()                             {}
func (noopHTTPMetrics) RecordRequestEnd()                               {}
func (noopHTTPMetrics) RecordConnectionAccepted()                       {}
func (noopHTTPMetrics) RecordConnectionClosed()                         {}
func (noopHTTPMetrics) RecordAcceptError()                              {}
func (noopHTTPMetrics) RecordTraversalBlocked()                         {}

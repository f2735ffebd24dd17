package server

import (
	"github.com/marmos91/httpfileserv/pkg/metrics"
	"github.com/marmos91/httpfileserv/pkg/platform"
)

// Option customizes a Server at construction.
//
// Options run after the Config is validated and before the listener is
// opened, so they can replace collaborators the Config cannot express.
type Option func(*Server)

// WithPlatform replaces the OS backend. Tests use it to inject failures
// into directory enumeration and bulk transfer.
func WithPlatform(p platform.Platform) Option {
	return func(s *Server) {
		s.platform = p
	}
}

// WithMetrics sets the metrics collector. nil keeps the no-op collector.
func WithMetrics(m metrics.HTTPMetrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithJournal records every request in j.
//
// Journal writes happen on the connection goroutine after the response is
// sent. A failed write is logged and never affects the client.
func WithJournal(j Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithRequestCallback sets the callback invoked after each request.
//
// The callback runs after the socket is closed, on the goroutine that
// served the connection. A slow callback delays the next accept.
func WithRequestCallback(fn RequestCallback) Option {
	return func(s *Server) {
		s.callback = fn
	}
}

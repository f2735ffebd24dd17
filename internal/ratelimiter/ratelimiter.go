// Package ratelimiter throttles accepted connections with a token bucket.
//
// The server consults the limiter right after Accept and before reading
// from the connection. In wait mode the accept loop stalls and the kernel
// backlog absorbs the excess. In reject mode the excess connection is closed
// immediately, which keeps the loop responsive under a flood.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Mode selects what happens when the bucket is empty.
type Mode string

const (
	// ModeWait delays the next accept until a token is available.
	ModeWait Mode = "wait"

	// ModeReject closes the excess connection without reading from it.
	ModeReject Mode = "reject"
)

// RateLimiter gates connection accepts at a sustained rate with bursts.
//
// The bucket starts full, so a burst of clients arriving right after startup
// is served without delay. Limit and burst can be changed while the server
// runs; a waiter already blocked in Wait observes the new limit.
//
// Thread safety:
// All methods are safe for concurrent use. The mode is fixed at
// construction and read without locking.
type RateLimiter struct {
	// limiter holds the token bucket. Its limit is rate.Inf when limiting
	// is disabled.
	limiter *rate.Limiter

	// mode decides between blocking and rejecting when the bucket is empty.
	mode Mode
}

// New creates a limiter allowing connectionsPerSecond sustained with the
// given burst. connectionsPerSecond = 0 disables limiting.
func New(connectionsPerSecond, burst uint, mode Mode) *RateLimiter {
	limit := rate.Limit(connectionsPerSecond)
	if connectionsPerSecond == 0 {
		limit = rate.Inf
	}
	if burst == 0 {
		burst = 1
	}
	if mode == "" {
		mode = ModeWait
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(limit, int(burst)),
		mode:    mode,
	}
}

// Admit decides whether the connection just accepted may be served.
//
// In wait mode it blocks until a token is available and only returns false
// when ctx ends first. In reject mode it never blocks.
func (r *RateLimiter) Admit(ctx context.Context) bool {
	if r == nil {
		return true
	}
	if r.mode == ModeReject {
		return r.Allow()
	}
	return r.Wait(ctx) == nil
}

// Allow reports whether a token is available now, consuming it if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. 0 disables limiting.
func (r *RateLimiter) SetLimit(connectionsPerSecond uint) {
	if connectionsPerSecond == 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(connectionsPerSecond))
}

// SetBurst changes the bucket capacity.
func (r *RateLimiter) SetBurst(burst uint) {
	r.limiter.SetBurst(int(burst))
}

// Mode returns the configured behaviour for an empty bucket.
func (r *RateLimiter) Mode() Mode {
	return r.mode
}

// Limit returns the sustained rate in connections per second, or 0 when
// limiting is disabled.
func (r *RateLimiter) Limit() uint {
	if r.limiter.Limit() == rate.Inf {
		return 0
	}
	return uint(r.limiter.Limit())
}

// Burst returns the bucket capacity.
func (r *RateLimiter) Burst() uint {
	return uint(r.limiter.Burst())
}

// Tokens returns the tokens currently in the bucket. Monitoring only.
//
// An unlimited bucket always reports a full burst.
func (r *RateLimiter) Tokens() float64 {
	if r.limiter.Limit() == rate.Inf {
		return float64(r.limiter.Burst())
	}
	return r.limiter.Tokens()
}

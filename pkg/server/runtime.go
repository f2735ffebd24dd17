package server

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/marmos91/httpfileserv/internal/logger"
	"github.com/marmos91/httpfileserv/internal/ratelimiter"
	"github.com/marmos91/httpfileserv/pkg/listing"
	"github.com/mitchellh/mapstructure"
)

// ErrUnknownOption is returned by SetOption for names it does not know.
var ErrUnknownOption = errors.New("unknown server option")

// Option names accepted by SetOption.
const (
	OptionSocketTimeout     = "socket_timeout"
	OptionTemplatePath      = "template_path"
	OptionListingSort       = "listing_sort"
	OptionCloseDelay        = "close_delay"
	OptionAcceptDelay       = "accept_delay"
	OptionStrictConfinement = "strict_confinement"
	OptionRateLimit         = "rate_limit"
	OptionRateBurst         = "rate_burst"
)

// optionValues receives one decoded option. Only the field named by the
// option is set.
type optionValues struct {
	SocketTimeout     *time.Duration `mapstructure:"socket_timeout"`
	TemplatePath      *string        `mapstructure:"template_path"`
	ListingSort       *string        `mapstructure:"listing_sort"`
	CloseDelay        *time.Duration `mapstructure:"close_delay"`
	AcceptDelay       *time.Duration `mapstructure:"accept_delay"`
	StrictConfinement *bool          `mapstructure:"strict_confinement"`
	RateLimit         *uint          `mapstructure:"rate_limit"`
	RateBurst         *uint          `mapstructure:"rate_burst"`
}

// knownOptions guards SetOption before decoding, since mapstructure
// silently ignores keys it has no field for.
var knownOptions = map[string]bool{
	OptionSocketTimeout:     true,
	OptionTemplatePath:      true,
	OptionListingSort:       true,
	OptionCloseDelay:        true,
	OptionAcceptDelay:       true,
	OptionStrictConfinement: true,
	OptionRateLimit:         true,
	OptionRateBurst:         true,
}

// secondsHook reads a bare integer as a number of seconds, so "60" and
// "1m" both mean one minute.
func secondsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(reflect.ValueOf(data).String()), 10, 64)
	if err != nil {
		return data, nil
	}
	return time.Duration(n) * time.Second, nil
}

// SetOption changes a named setting. Values are strings; durations accept Go
// duration syntax or whole seconds. The change applies from the next
// request.
//
// Supported names:
//   - socket_timeout: per-operation socket timeout, must be positive
//   - template_path: listing template file, "" for the built-in one
//   - listing_sort: "none" or "name"
//   - close_delay, accept_delay: pacing sleeps, must not be negative
//   - strict_confinement: boolean
//   - rate_limit: sustained connections per second, 0 for unlimited.
//     Enables throttling (in wait mode) if it was off.
//   - rate_burst: bucket capacity; requires rate limiting to be on
//
// Unknown names return an error wrapping ErrUnknownOption.
func (s *Server) SetOption(name, value string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if !knownOptions[name] {
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}

	var vals optionValues
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           &vals,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any{name: value}); err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	switch {
	case vals.SocketTimeout != nil:
		if *vals.SocketTimeout <= 0 {
			return fmt.Errorf("invalid value %q for %s: must be positive", value, name)
		}
		next.socketTimeout = *vals.SocketTimeout
	case vals.CloseDelay != nil:
		if *vals.CloseDelay < 0 {
			return fmt.Errorf("invalid value %q for %s: must not be negative", value, name)
		}
		next.closeDelay = *vals.CloseDelay
	case vals.AcceptDelay != nil:
		if *vals.AcceptDelay < 0 {
			return fmt.Errorf("invalid value %q for %s: must not be negative", value, name)
		}
		next.acceptDelay = *vals.AcceptDelay
	case vals.TemplatePath != nil:
		next.templatePath = *vals.TemplatePath
	case vals.ListingSort != nil:
		mode, err := listing.ParseSortMode(*vals.ListingSort)
		if err != nil {
			return fmt.Errorf("invalid value %q for %s: %w", value, name, err)
		}
		next.listingSort = mode
	case vals.StrictConfinement != nil:
		next.strictConfinement = *vals.StrictConfinement
	case vals.RateLimit != nil:
		s.setRateLimitLocked(*vals.RateLimit)
	case vals.RateBurst != nil:
		if s.limiter == nil {
			return fmt.Errorf("cannot set %s: rate limiting is disabled", name)
		}
		if *vals.RateBurst == 0 {
			return fmt.Errorf("invalid value %q for %s: must be positive", value, name)
		}
		s.limiter.SetBurst(*vals.RateBurst)
	}

	s.settings = next
	s.rebuildHandlerLocked()

	logger.Info("Server option %s set to %q", name, value)
	return nil
}

// setRateLimitLocked changes the accept rate, creating a wait-mode limiter
// when throttling was off. s.mu must be held.
func (s *Server) setRateLimitLocked(connectionsPerSecond uint) {
	if s.limiter == nil {
		burst := connectionsPerSecond
		if burst == 0 {
			burst = 1
		}
		s.limiter = ratelimiter.New(connectionsPerSecond, burst, ratelimiter.ModeWait)
		return
	}
	s.limiter.SetLimit(connectionsPerSecond)
}

// SetRequestCallback replaces the per-request callback. nil disables it.
func (s *Server) SetRequestCallback(fn RequestCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = fn
}

// RegisterMIMEType maps ext (with or without a leading dot, any case) to
// contentType, shadowing the built-in table.
func (s *Server) RegisterMIMEType(ext, contentType string) error {
	if err := s.mime.Register(ext, contentType); err != nil {
		return err
	}
	logger.Debug("Registered MIME type %s for %q (%d custom types)", contentType, ext, s.mime.Len())
	return nil
}

// ContentType returns the content type the server would send for path.
func (s *Server) ContentType(path string) string {
	return s.mime.Lookup(path)
}

// counters are updated lock-free from the connection goroutines and read
// by Stats. They only grow.
type counters struct {
	accepted     atomic.Uint64
	rejected     atomic.Uint64
	acceptErrors atomic.Uint64
	requests     atomic.Uint64
	errors       atomic.Uint64
	traversals   atomic.Uint64
	bytesSent    atomic.Uint64
}

// Stats is a snapshot of the server counters.
//
// Counters are read one by one without a common lock, so a snapshot taken
// while a request completes may be off by that one request between fields.
type Stats struct {
	// ConnectionsAccepted counts connections admitted past the rate limiter.
	ConnectionsAccepted uint64

	// ConnectionsRejected counts connections closed by the rate limiter in
	// reject mode without being read.
	ConnectionsRejected uint64

	// AcceptErrors counts failed Accept calls.
	AcceptErrors uint64

	// Requests counts connections on which a request was read.
	Requests uint64

	// ErrorResponses counts 400, 404 and 500 responses.
	ErrorResponses uint64

	// TraversalAttempts counts paths that had ".." removed.
	TraversalAttempts uint64

	// BytesSent sums response bytes, headers included.
	BytesSent uint64

	// RateLimitTokens is the number of connections that can be admitted
	// right now without waiting. 0 when rate limiting is disabled.
	RateLimitTokens float64
}

// Stats returns the current counters. It is safe to call at any time,
// including after Stop.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	limiter := s.limiter
	s.mu.Unlock()

	var tokens float64
	if limiter != nil {
		tokens = limiter.Tokens()
	}

	return Stats{
		ConnectionsAccepted: s.stats.accepted.Load(),
		ConnectionsRejected: s.stats.rejected.Load(),
		AcceptErrors:        s.stats.acceptErrors.Load(),
		Requests:            s.stats.requests.Load(),
		ErrorResponses:      s.stats.errors.Load(),
		TraversalAttempts:   s.stats.traversals.Load(),
		BytesSent:           s.stats.bytesSent.Load(),
		RateLimitTokens:     tokens,
	}
}

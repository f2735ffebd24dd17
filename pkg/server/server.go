// Package server runs the accept loop of the file server.
//
// Connections are served strictly one at a time: a connection is accepted,
// configured, answered, closed, and only then is the next one accepted.
// Pending clients wait in the listen backlog, so the backlog size is the
// only queueing the server does.
//
// The package is also the embeddable surface of httpfileserv. An embedder
// builds a Server with New, optionally tunes it with SetOption and
// RegisterMIMEType, then runs it with Start (or Listen + Serve when the
// bound port must be known first) and stops it with Stop or by cancelling
// the context passed to Serve.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/httpfileserv/internal/logger"
	"github.com/marmos91/httpfileserv/internal/ratelimiter"
	"github.com/marmos91/httpfileserv/pkg/handler"
	"github.com/marmos91/httpfileserv/pkg/journal"
	"github.com/marmos91/httpfileserv/pkg/listing"
	"github.com/marmos91/httpfileserv/pkg/metrics"
	"github.com/marmos91/httpfileserv/pkg/mime"
	"github.com/marmos91/httpfileserv/pkg/platform"
)

var (
	// ErrAlreadyRunning is returned by Start and Serve while the server is serving.
	ErrAlreadyRunning = errors.New("server is already running")

	// ErrServerStopped is returned by Start and Serve after Stop.
	ErrServerStopped = errors.New("server has been stopped")
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	// DefaultBacklog is the listen queue length.
	DefaultBacklog = 10

	// DefaultSocketTimeout bounds each read and write on a connection.
	DefaultSocketTimeout = 60 * time.Second

	// DefaultShutdownTimeout bounds how long Stop waits for the in-flight
	// connection before force-closing it.
	DefaultShutdownTimeout = 30 * time.Second
)

// Config is the server configuration object. The caller owns it; New copies
// what it needs.
//
// Default values (applied by New if zero):
//   - Backlog: 10
//   - SocketTimeout: 60s
//   - ShutdownTimeout: 30s
//   - ListingSort: "none" (directory enumeration order)
//
// CloseDelay and AcceptDelay default to 0. Setting them reproduces the
// pacing of older deployments that slept between connections.
type Config struct {
	// Root is the served directory. Required; made absolute by New.
	Root string

	// Port to listen on, on all IPv4 interfaces. 0 picks a free port.
	Port int

	// Backlog is the listen queue length. Default: 10.
	Backlog int

	// SocketTimeout bounds every read and write on a connection. Default: 60s.
	SocketTimeout time.Duration

	// CloseDelay is slept between the response and the close.
	CloseDelay time.Duration

	// AcceptDelay is slept between a close and the next accept.
	AcceptDelay time.Duration

	// ShutdownTimeout bounds how long Stop waits for the in-flight connection.
	// Default: 30s.
	ShutdownTimeout time.Duration

	// StrictConfinement answers 404 for paths that leave Root through symlinks.
	StrictConfinement bool

	// TemplatePath is the listing template; empty means the built-in one.
	TemplatePath string

	// ListingSort is "none" (directory order) or "name".
	ListingSort string

	// MIMETypes are extension to content type overrides.
	MIMETypes map[string]string

	// RateLimit throttles accepted connections.
	RateLimit RateLimitConfig
}

// RateLimitConfig configures accept throttling.
type RateLimitConfig struct {
	// Enabled turns throttling on. When false the other fields are ignored.
	Enabled bool

	// ConnectionsPerSecond is the sustained accept rate. 0 means unlimited.
	ConnectionsPerSecond uint

	// Burst is how many connections may be admitted back to back.
	// 0 is treated as 1.
	Burst uint

	// Mode is "wait" (delay the connection) or "reject" (close it unread).
	Mode string
}

// RequestInfo describes one finished request. It is passed to the request
// callback and stored in the journal.
type RequestInfo struct {
	// ConnID identifies the connection; it is also the journal record ID.
	ConnID uuid.UUID

	// Remote is the peer address as host:port.
	Remote string

	// Method and Path are taken from the request line. Path is decoded
	// once decoding succeeded.
	Method string
	Path   string

	// FSPath is the resolved filesystem path, empty when the request was
	// rejected before resolution.
	FSPath string

	// Status is the response status sent, 0 if none was.
	Status int

	// Bytes counts everything written to the socket, headers included.
	Bytes int64

	// Duration runs from accept to close.
	Duration time.Duration

	// Err is the first failure seen while serving, nil on success.
	Err error
}

// RequestCallback is invoked after every request, on the serving goroutine.
type RequestCallback func(RequestInfo)

// Journal stores finished requests.
type Journal interface {
	Record(ctx context.Context, rec journal.Record) error
}

// settings are the values SetOption may change. They are read once per
// connection, so a change takes effect from the next request.
type settings struct {
	root              string
	socketTimeout     time.Duration
	closeDelay        time.Duration
	acceptDelay       time.Duration
	strictConfinement bool
	templatePath      string
	listingSort       listing.SortMode
}

// Server serves files from one root directory.
//
// Architecture:
// Server owns the listening socket and a single serving goroutine (the one
// running Serve). Each accepted connection goes through the platform
// adapter for socket setup, then through a handler.Handler that reads one
// request and writes one response. The handler is rebuilt whenever
// SetOption changes a setting, and each connection uses the handler that
// was current when it was accepted.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (a rate-limit wait is abandoned)
//  4. Wait for the in-flight connection to finish (up to ShutdownTimeout)
//  5. Force-close the in-flight connection after the timeout
//
// Thread safety:
// All exported methods are safe for concurrent use. Connections are never
// served concurrently with each other.
type Server struct {
	// cfg is the configuration after defaults; settings holds the mutable
	// subset.
	cfg Config

	// platform performs all OS-specific socket and file work.
	platform platform.Platform

	// mime maps extensions to content types. Shared with every handler.
	mime *mime.Table

	// metrics receives connection and request events. Never nil; a no-op
	// collector is used when none is configured.
	metrics metrics.HTTPMetrics

	// journal stores finished requests. nil disables recording.
	journal Journal

	// mu protects every field below it up to running.
	mu sync.Mutex

	// limiter throttles accepts. nil when rate limiting is disabled; it may
	// be created later by SetOption.
	limiter *ratelimiter.RateLimiter

	// settings are the values SetOption may change.
	settings settings

	// handler serves one connection. Replaced, never mutated, on changes.
	handler *handler.Handler

	// callback is invoked after each request. nil disables it.
	callback RequestCallback

	// listener is set by Listen and closed during shutdown.
	listener net.Listener

	// active is the connection being served, kept for forced close.
	active net.Conn

	// running is true while Serve's accept loop runs.
	running atomic.Bool

	// served is set once Serve has started; a Server serves only once.
	served atomic.Bool

	// stats are the counters returned by Stats.
	stats counters

	// shutdownOnce guards the close of shutdown and of the listener.
	shutdownOnce sync.Once

	// shutdown is closed when shutdown begins.
	shutdown chan struct{}

	// done is closed when Serve returns.
	done chan struct{}

	// shutdownCtx is cancelled during shutdown so a rate-limit wait in the
	// accept loop returns promptly.
	shutdownCtx context.Context

	// cancelRequests cancels shutdownCtx.
	cancelRequests context.CancelFunc
}

// New validates cfg and creates a stopped server.
//
// The root must exist and be a directory; it is made absolute so later
// working directory changes do not affect it. Invalid ports, negative
// delays, unknown sort modes and invalid MIME overrides are errors.
// Nothing is bound until Listen or Start.
func New(cfg Config, opts ...Option) (*Server, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("served root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve served root %q: %w", cfg.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("served root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("served root %s is not a directory", root)
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}
	if cfg.SocketTimeout <= 0 {
		cfg.SocketTimeout = DefaultSocketTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.CloseDelay < 0 || cfg.AcceptDelay < 0 {
		return nil, fmt.Errorf("close and accept delays must not be negative")
	}

	sortMode, err := listing.ParseSortMode(cfg.ListingSort)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		mime:     mime.NewTable(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		settings: settings{
			root:              root,
			socketTimeout:     cfg.SocketTimeout,
			closeDelay:        cfg.CloseDelay,
			acceptDelay:       cfg.AcceptDelay,
			strictConfinement: cfg.StrictConfinement,
			templatePath:      cfg.TemplatePath,
			listingSort:       sortMode,
		},
	}
	s.shutdownCtx, s.cancelRequests = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(s)
	}
	if s.platform == nil {
		s.platform = platform.New()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoopHTTPMetrics()
	}

	for ext, contentType := range cfg.MIMETypes {
		if err := s.mime.Register(ext, contentType); err != nil {
			return nil, fmt.Errorf("mime type for %q: %w", ext, err)
		}
	}

	if cfg.RateLimit.Enabled {
		s.limiter = ratelimiter.New(cfg.RateLimit.ConnectionsPerSecond, cfg.RateLimit.Burst,
			ratelimiter.Mode(cfg.RateLimit.Mode))
		logger.Debug("Rate limiting: %d conn/s, burst %d, mode %s",
			s.limiter.Limit(), s.limiter.Burst(), s.limiter.Mode())
	}

	s.rebuildHandlerLocked()
	return s, nil
}

// rebuildHandlerLocked replaces the handler from the current settings.
// s.mu must be held, or s not yet shared.
func (s *Server) rebuildHandlerLocked() {
	gen := listing.New(s.platform, listing.LoaderFor(s.settings.templatePath), s.settings.listingSort)
	s.handler = handler.New(handler.Config{
		Root:              s.settings.root,
		Platform:          s.platform,
		MIME:              s.mime,
		Listing:           gen,
		StrictConfinement: s.settings.strictConfinement,
	})
}

// Root returns the absolute served root.
func (s *Server) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings.root
}

// Listen initializes the platform and opens the listening socket. Start
// calls it; call it directly to learn the bound port before serving.
func (s *Server) Listen() error {
	select {
	case <-s.shutdown:
		return ErrServerStopped
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}

	if err := s.platform.Init(); err != nil {
		return fmt.Errorf("platform init failed: %w", err)
	}

	addr := fmt.Sprintf("0.0.0.0:%d", s.cfg.Port)
	ln, err := s.platform.Listen(addr, s.cfg.Backlog)
	if err != nil {
		s.platform.Cleanup()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	logger.Info("Listening on %s (backlog %d), serving %s", ln.Addr(), s.cfg.Backlog, s.settings.root)
	return nil
}

// Start listens and serves until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop on the listener opened by Listen (opening it if
// needed). It blocks until ctx is cancelled or Stop is called and returns
// nil after a graceful stop.
//
// Each iteration accepts one connection, passes it through the rate
// limiter, serves it to completion, then sleeps the accept delay. Accept
// errors other than a closed listener are counted and logged, and the loop
// continues.
//
// Thread safety:
// Serve runs at most once per Server. A concurrent call returns
// ErrAlreadyRunning; a call after the loop ended returns ErrServerStopped.
func (s *Server) Serve(ctx context.Context) error {
	select {
	case <-s.shutdown:
		return ErrServerStopped
	default:
	}
	if s.running.Load() {
		return ErrAlreadyRunning
	}
	// A server serves once; its listener does not survive the loop.
	if !s.served.CompareAndSwap(false, true) {
		return ErrServerStopped
	}
	s.running.Store(true)
	defer s.running.Store(false)
	defer close(s.done)

	if err := s.Listen(); err != nil {
		return err
	}
	defer s.platform.Cleanup()

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				logger.Debug("Accept loop stopped")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.stats.acceptErrors.Add(1)
			s.metrics.RecordAcceptError()
			logger.Warn("Accept failed: %v", err)
			continue
		}

		s.mu.Lock()
		limiter := s.limiter
		s.mu.Unlock()

		if !limiter.Admit(s.shutdownCtx) {
			s.stats.rejected.Add(1)
			logger.Warn("Rate limit: dropping connection from %s", conn.RemoteAddr())
			if err := conn.Close(); err != nil {
				logger.Debug("Failed to close rejected connection: %v", err)
			}
			continue
		}

		s.serveConn(conn)

		s.mu.Lock()
		acceptDelay := s.settings.acceptDelay
		s.mu.Unlock()
		if acceptDelay > 0 {
			select {
			case <-time.After(acceptDelay):
			case <-s.shutdown:
			}
		}
	}
}

// serveConn configures, answers and closes one connection.
//
// Socket setup failures are logged and the request is still attempted, as
// the OS defaults are usable. Only requests that were actually read
// reach the journal and the callback.
func (s *Server) serveConn(conn net.Conn) {
	start := time.Now()
	connID := uuid.New()
	remote := conn.RemoteAddr().String()

	s.mu.Lock()
	s.active = conn
	h := s.handler
	cur := s.settings
	callback := s.callback
	s.mu.Unlock()

	s.stats.accepted.Add(1)
	s.metrics.RecordConnectionAccepted()
	logger.Debug("Connection %s accepted from %s", connID, remote)

	if err := s.platform.SetBlocking(conn, true); err != nil {
		logger.Warn("Failed to set blocking mode for %s: %v", remote, err)
	}
	if err := s.platform.SetTimeouts(conn, cur.socketTimeout); err != nil {
		logger.Warn("Failed to set socket timeouts for %s: %v", remote, err)
	}
	if err := s.platform.TuneConn(conn); err != nil {
		logger.Debug("Failed to tune connection %s: %v", remote, err)
	}

	s.metrics.RecordRequestStart()
	res := h.Handle(conn)
	s.metrics.RecordRequestEnd()

	if cur.closeDelay > 0 {
		s.platform.SleepMs(int(cur.closeDelay / time.Millisecond))
	}

	if err := conn.Close(); err != nil {
		logger.Warn("Failed to close connection from %s: %v", remote, err)
	}
	s.metrics.RecordConnectionClosed()

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()

	if res.Method == "" && res.Status == 0 {
		return
	}

	info := RequestInfo{
		ConnID:   connID,
		Remote:   remote,
		Method:   res.Method,
		Path:     res.Path,
		FSPath:   res.FSPath,
		Status:   res.Status,
		Bytes:    res.Bytes,
		Duration: time.Since(start),
		Err:      res.Err,
	}
	s.record(info, res.Traversal, callback)
}

// record updates counters, metrics and the journal, then calls callback.
func (s *Server) record(info RequestInfo, traversal bool, callback RequestCallback) {
	s.stats.requests.Add(1)
	s.stats.bytesSent.Add(uint64(info.Bytes))
	if info.Status >= 400 || info.Status == 0 {
		s.stats.errors.Add(1)
	}
	if traversal {
		s.stats.traversals.Add(1)
		s.metrics.RecordTraversalBlocked()
	}
	s.metrics.RecordRequest(info.Method, info.Status, info.Duration, info.Bytes)

	logger.Info("%s %s %q %d %d", info.Remote, info.Method, info.Path, info.Status, info.Bytes)

	if s.journal != nil {
		rec := journal.Record{
			ID:       info.ConnID,
			Time:     time.Now(),
			Remote:   info.Remote,
			Method:   info.Method,
			Path:     info.Path,
			Status:   info.Status,
			Bytes:    info.Bytes,
			Duration: info.Duration,
		}
		if err := s.journal.Record(context.Background(), rec); err != nil {
			logger.Warn("Failed to journal request %s: %v", info.ConnID, err)
		}
	}

	if callback != nil {
		s.invokeCallback(callback, info)
	}
}

func (s *Server) invokeCallback(callback RequestCallback, info RequestInfo) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Request callback panicked: %v", r)
		}
	}()
	callback(info)
}

// initiateShutdown closes the listener and cancels pending waits. Safe to
// call more than once.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Shutdown initiated")
		close(s.shutdown)
		s.cancelRequests()

		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			if err := ln.Close(); err != nil {
				logger.Debug("Error closing listener: %v", err)
			}
		}
	})
}

// Stop stops accepting, waits for the in-flight connection (bounded by ctx
// and ShutdownTimeout) and force-closes it if it does not finish.
//
// Shutdown flow:
//  1. Listener closed and shutdownCtx cancelled (initiateShutdown)
//  2. If Serve never ran, release platform resources and return
//  3. Wait for Serve to return, up to ShutdownTimeout or ctx
//  4. On timeout, close the in-flight connection so its blocked read or
//     write fails, wait for Serve, and return an error
//
// Safe to call more than once and from multiple goroutines.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if !s.served.Load() {
		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			s.platform.Cleanup()
		}
		return nil
	}

	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		logger.Info("Server stopped")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	s.forceCloseActive()
	<-s.done
	return fmt.Errorf("shutdown timeout: in-flight connection force-closed")
}

// forceCloseActive closes the connection currently being served, if any.
func (s *Server) forceCloseActive() {
	s.mu.Lock()
	conn := s.active
	s.mu.Unlock()

	if conn == nil {
		return
	}
	logger.Warn("Force-closing in-flight connection from %s", conn.RemoteAddr())
	if err := conn.Close(); err != nil {
		logger.Debug("Error force-closing connection: %v", err)
	}
}

// Addr returns the listening address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port once listening, otherwise the configured one.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.cfg.Port
}

// Running reports whether the accept loop is active.
func (s *Server) Running() bool {
	return s.running.Load()
}

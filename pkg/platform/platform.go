// Package platform isolates the operating-system specific parts of serving:
// listener setup, directory enumeration, socket behavior and zero-copy file
// transfer.
//
// The rest of the server only talks to the Platform interface. Exactly one
// backend is compiled in, selected by build tags (unix or windows).
//
// Backends:
//   - unix: hand-built listener (SO_REUSEADDR, explicit backlog); bulk
//     transfer with sendfile(2) on Linux, the portable copy loop elsewhere
//   - windows: standard listener; bulk transfer through an 8 KiB copy loop
//
// Timeouts are expressed as socket deadlines. Go owns O_NONBLOCK on every
// socket it polls, so SetBlocking and SetTimeouts are emulated with
// deadlines rather than socket options.
package platform

import (
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotTCP is returned by operations that need a TCP socket underneath.
var ErrNotTCP = errors.New("connection is not a TCP socket")

// DirEntry describes one child of a listed directory.
type DirEntry struct {
	// Name is the entry's base name, as stored on disk.
	Name string

	// IsDir is true for directories, including symlinks to directories.
	IsDir bool

	// Size is the length in bytes; meaningful only for files.
	Size uint64

	// ModTime is the last modification time.
	ModTime time.Time
}

// Visitor receives directory entries. Returning false stops the enumeration;
// the listing still counts as successful.
type Visitor func(DirEntry) bool

// Platform is the OS abstraction used by the server.
//
// Error reporting:
// Every failing method returns its error and also remembers it, so
// LastError can describe the most recent failure to a caller that only
// kept a boolean outcome.
//
// Thread safety:
// All methods are safe for concurrent use. The timeout set by SetTimeouts
// is adapter-wide, which matches a server that handles one connection at
// a time.
type Platform interface {
	// Init prepares process-wide state (e.g. ignoring SIGPIPE).
	Init() error

	// Cleanup releases what Init acquired. Safe to call more than once.
	Cleanup()

	// ListDirectory calls visit for every entry of path except "." and "..",
	// in the order the OS returns them. Entries whose metadata cannot be read
	// are skipped. Failure to open or read the directory is an error.
	ListDirectory(path string, visit Visitor) error

	// BulkTransfer sends count bytes of src starting at offset to dst and
	// returns the number of bytes sent. The file's own read position is not
	// used.
	//
	// A peer that goes away, a write timeout, or a file shorter than count
	// (io.ErrUnexpectedEOF) is an error; the returned count is then what
	// actually reached the socket.
	BulkTransfer(dst net.Conn, src *os.File, offset, count int64) (int64, error)

	// SetBlocking switches conn between blocking I/O (operations wait, bounded
	// by the timeouts) and non-blocking I/O (operations that would wait fail
	// immediately).
	SetBlocking(conn net.Conn, blocking bool) error

	// SetTimeouts bounds every subsequent receive and send on conn.
	SetTimeouts(conn net.Conn, timeout time.Duration) error

	// TuneConn disables Nagle's algorithm and enables keepalive on conn.
	TuneConn(conn net.Conn) error

	// Listen opens a TCP listener on addr with the given accept backlog and
	// address reuse enabled.
	Listen(addr string, backlog int) (net.Listener, error)

	// SleepMs suspends the caller for ms milliseconds.
	SleepMs(ms int)

	// LastError describes the most recent failure seen by this adapter, or ""
	// if there was none.
	LastError() string
}

// New returns the backend for the running OS.
func New() Platform {
	return newNative()
}

// common holds the behavior shared by every backend.
type common struct {
	// mu guards lastErr.
	mu sync.Mutex

	// lastErr is the most recent error passed to record.
	lastErr error

	// timeout is the last value passed to SetTimeouts. Bulk transfers push
	// the write deadline forward by it on every chunk so that it bounds each
	// send rather than the whole body.
	timeout atomic.Int64
}

// record remembers a non-nil err for LastError and returns it unchanged.
func (c *common) record(err error) error {
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
	}
	return err
}

func (c *common) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return ""
	}
	return c.lastErr.Error()
}

func (c *common) SleepMs(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

func (c *common) SetBlocking(conn net.Conn, blocking bool) error {
	if blocking {
		return c.record(conn.SetDeadline(time.Time{}))
	}
	// The Go runtime owns O_NONBLOCK; an expired deadline gives the same
	// fail-immediately behavior to callers.
	return c.record(conn.SetDeadline(time.Unix(1, 0)))
}

func (c *common) SetTimeouts(conn net.Conn, timeout time.Duration) error {
	c.timeout.Store(int64(timeout))
	if timeout <= 0 {
		return c.record(conn.SetDeadline(time.Time{}))
	}
	deadline := time.Now().Add(timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return c.record(err)
	}
	return c.record(conn.SetWriteDeadline(deadline))
}

func (c *common) extendWrite(conn net.Conn) {
	if timeout := time.Duration(c.timeout.Load()); timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
}

func (c *common) TuneConn(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return c.record(ErrNotTCP)
	}
	if err := tc.SetNoDelay(true); err != nil {
		return c.record(err)
	}
	return c.record(tc.SetKeepAlive(true))
}

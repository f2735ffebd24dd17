//go:build unix

package platform

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// unixPlatform is the backend for Linux, the BSDs and macOS. Bulk transfer
// uses sendfile(2) where the kernel supports it on sockets and falls back
// to copyTransfer elsewhere.
type unixPlatform struct {
	common
}

// newNative returns the backend for the build target.
func newNative() Platform {
	return &unixPlatform{}
}

// Init ignores SIGPIPE so a peer that hangs up mid-body surfaces as EPIPE on
// the write instead of killing the process.
func (p *unixPlatform) Init() error {
	signal.Ignore(syscall.SIGPIPE)
	return nil
}

// Cleanup restores the default SIGPIPE disposition.
func (p *unixPlatform) Cleanup() {
	signal.Reset(syscall.SIGPIPE)
}

// Listen builds the socket by hand because the standard listener does not
// expose the accept backlog.
//
// The socket is IPv4 only, with SO_REUSEADDR set so a restart does not wait
// out TIME_WAIT. The host part of addr selects the bind address; an empty
// host binds every interface.
func (p *unixPlatform) Listen(addr string, backlog int) (net.Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		return nil, p.record(fmt.Errorf("resolve %s: %w", addr, err))
	}

	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, p.record(fmt.Errorf("socket: %w", err))
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (net.Listener, error) {
		_ = unix.Close(fd)
		return nil, p.record(fmt.Errorf("%s %s: %w", op, addr, err))
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt SO_REUSEADDR", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		return fail("listen", err)
	}

	f := os.NewFile(uintptr(fd), "tcp-listener")
	defer f.Close()

	// FileListener dups the descriptor and registers it with the poller.
	ln, err := net.FileListener(f)
	if err != nil {
		return nil, p.record(fmt.Errorf("file listener: %w", err))
	}
	return ln, nil
}

// BulkTransfer sends count bytes of src from offset. A non-positive count
// sends nothing.
func (p *unixPlatform) BulkTransfer(dst net.Conn, src *os.File, offset, count int64) (int64, error) {
	if count <= 0 {
		return 0, nil
	}
	return p.sendfile(dst, src, offset, count)
}

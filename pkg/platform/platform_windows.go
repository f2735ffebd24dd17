//go:build windows

package platform

import (
	"fmt"
	"net"
	"os"
)

// windowsPlatform is the Windows backend. It relies on the runtime for
// sockets and always uses the copy loop for bulk transfer.
type windowsPlatform struct {
	common
}

// newNative returns the backend for the build target.
func newNative() Platform {
	return &windowsPlatform{}
}

// Init is a no-op: the Go runtime brings up Winsock itself.
func (p *windowsPlatform) Init() error {
	return nil
}

// Cleanup has nothing to release.
func (p *windowsPlatform) Cleanup() {}

// Listen uses the runtime listener; Windows picks the backlog.
func (p *windowsPlatform) Listen(addr string, backlog int) (net.Listener, error) {
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return nil, p.record(fmt.Errorf("listen %s: %w", addr, err))
	}
	return ln, nil
}

// BulkTransfer sends count bytes of src from offset with copyTransfer.
func (p *windowsPlatform) BulkTransfer(dst net.Conn, src *os.File, offset, count int64) (int64, error) {
	if count <= 0 {
		return 0, nil
	}
	return p.copyTransfer(dst, src, offset, count)
}

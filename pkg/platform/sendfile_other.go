//go:build unix && !linux

package platform

import (
	"net"
	"os"
)

// sendfile uses the copy loop on non-Linux Unix systems.
func (p *unixPlatform) sendfile(dst net.Conn, src *os.File, offset, count int64) (int64, error) {
	return p.copyTransfer(dst, src, offset, count)
}

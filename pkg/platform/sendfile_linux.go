//go:build linux

package platform

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// maxSendfileChunk caps a single sendfile(2) call; Linux transfers at most
// 0x7ffff000 bytes per call anyway.
const maxSendfileChunk = 1 << 30

// sendfile pushes the file through sendfile(2) on the raw socket, letting the
// runtime poller park the goroutine whenever the socket buffer is full.
//
// Connections that do not expose a raw descriptor (TLS wrappers, net.Pipe
// in tests) go through copyTransfer instead. EOF before count bytes is
// reported as io.ErrUnexpectedEOF, matching the copy loop.
func (p *unixPlatform) sendfile(dst net.Conn, src *os.File, offset, count int64) (int64, error) {
	sc, ok := dst.(syscall.Conn)
	if !ok {
		return p.copyTransfer(dst, src, offset, count)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return p.copyTransfer(dst, src, offset, count)
	}

	srcRaw, err := src.SyscallConn()
	if err != nil {
		return p.copyTransfer(dst, src, offset, count)
	}

	var (
		written int64
		sendErr error
		off     = offset
	)

	ctrlErr := srcRaw.Control(func(infd uintptr) {
		p.extendWrite(dst)
		// The callback stores its own failure in sendErr; rc.Write only
		// reports poller errors.
		werr := rc.Write(func(outfd uintptr) bool {
			for written < count {
				chunk := count - written
				if chunk > maxSendfileChunk {
					chunk = maxSendfileChunk
				}

				n, err := unix.Sendfile(int(outfd), int(infd), &off, int(chunk))
				if n > 0 {
					written += int64(n)
					p.extendWrite(dst)
				}

				switch {
				case err == unix.EAGAIN:
					return false
				case err == unix.EINTR:
					continue
				case err != nil:
					sendErr = err
					return true
				case n == 0:
					// The file is shorter than the size we announced.
					sendErr = io.ErrUnexpectedEOF
					return true
				}
			}
			return true
		})
		if sendErr == nil {
			sendErr = werr
		}
	})

	if ctrlErr != nil && sendErr == nil {
		sendErr = ctrlErr
	}
	if sendErr != nil {
		if errors.Is(sendErr, unix.ENOSYS) || errors.Is(sendErr, unix.EINVAL) {
			if written == 0 {
				return p.copyTransfer(dst, src, offset, count)
			}
		}
		return written, p.record(sendErr)
	}
	return written, nil
}

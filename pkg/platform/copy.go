package platform

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/marmos91/httpfileserv/internal/bufpool"
)

// copyTransfer is the portable bulk transfer: positional reads into a
// bufpool.ChunkSize buffer, each followed by a full write.
//
// Reads use ReadAt so the file offset is never moved and the same *os.File
// could be shared. The write deadline is pushed forward before every chunk,
// so the socket timeout bounds a stalled chunk and not the whole body.
//
// Errors:
//   - a write error or short write ends the transfer with that error
//   - EOF before count bytes returns io.ErrUnexpectedEOF
//   - any other read error is returned as is
//
// In every case the returned count is what reached the socket.
func (c *common) copyTransfer(dst net.Conn, src *os.File, offset, count int64) (int64, error) {
	buf := bufpool.Get(bufpool.ChunkSize)
	defer bufpool.Put(buf)

	var written int64
	for written < count {
		want := int64(len(buf))
		if remaining := count - written; remaining < want {
			want = remaining
		}

		n, rerr := src.ReadAt(buf[:want], offset+written)
		if n > 0 {
			c.extendWrite(dst)
			wn, werr := dst.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, c.record(werr)
			}
			if wn < n {
				return written, c.record(io.ErrShortWrite)
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if written < count {
					return written, c.record(io.ErrUnexpectedEOF)
				}
				return written, nil
			}
			return written, c.record(rerr)
		}
	}

	return written, nil
}

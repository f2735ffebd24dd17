// Package bufpool recycles the fixed-size byte slices used on the request
// path: the request receive buffer and the chunk buffer of the copy-based
// bulk transfer.
//
// Every connection borrows a receive buffer, and the fallback transfer path
// borrows a chunk buffer per file, so pooling keeps per-connection garbage
// flat under load. Buffers are zeroed on Get; callers never see bytes left
// over from a previous connection.
package bufpool

import (
	"sync"
)

const (
	// RequestSize is the size of the buffer a request is read into.
	// At most RequestSize-1 bytes of a request are ever considered.
	RequestSize = 1 << 10 // 1KB

	// ChunkSize is the unit of the read/write transfer loop.
	ChunkSize = 8 << 10 // 8KB
)

// bufferPool keeps one sync.Pool per size class. Pools hold *[]byte so a
// Put does not allocate a new slice header.
type bufferPool struct {
	// request holds RequestSize buffers.
	request sync.Pool

	// chunk holds ChunkSize buffers.
	chunk sync.Pool
}

// global backs the package-level Get and Put.
var global = &bufferPool{
	request: sync.Pool{
		New: func() any {
			buf := make([]byte, RequestSize)
			return &buf
		},
	},
	chunk: sync.Pool{
		New: func() any {
			buf := make([]byte, ChunkSize)
			return &buf
		},
	},
}

// Get returns a zeroed slice of length size. Sizes above ChunkSize are
// allocated directly and never pooled.
func (p *bufferPool) Get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= RequestSize:
		bufPtr = p.request.Get().(*[]byte)
	case size <= ChunkSize:
		bufPtr = p.chunk.Get().(*[]byte)
	default:
		return make([]byte, size)
	}

	buf := (*bufPtr)[:size]
	clear(buf)
	return buf
}

// Put hands buf back. Slices that did not come from Get are dropped.
func (p *bufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	switch cap(buf) {
	case RequestSize:
		p.request.Put(&full)
	case ChunkSize:
		p.chunk.Put(&full)
	}
}

// Get acquires a buffer from the shared pool.
//
//	buf := bufpool.Get(bufpool.RequestSize)
//	defer bufpool.Put(buf)
func Get(size int) []byte {
	return global.Get(size)
}

// Put returns a buffer to the shared pool.
func Put(buf []byte) {
	global.Put(buf)
}

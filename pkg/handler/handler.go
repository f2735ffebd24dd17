// Package handler serves a single request on an accepted connection.
//
// A connection goes through AwaitRequest, Parsed, Dispatched and Done. The
// handler reads once, answers once and returns; closing the socket is the
// caller's job.
//
// Status selection:
//   - 400: the request line does not hold a method and a target
//   - 404: method other than GET, missing path, path that is neither a
//     directory nor a regular file, or (strict mode) a path escaping the root
//   - 500: undecodable target, or a listing that could not be rendered
//   - 200: directory listing or file body
//
// A failure after the 200 header was sent cannot change the status; the
// client sees a short body and the error is logged and returned in Result.
package handler

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/httpfileserv/internal/bufpool"
	"github.com/marmos91/httpfileserv/internal/logger"
	"github.com/marmos91/httpfileserv/pkg/listing"
	"github.com/marmos91/httpfileserv/pkg/mime"
	"github.com/marmos91/httpfileserv/pkg/platform"
	"github.com/marmos91/httpfileserv/pkg/resolver"
	"github.com/marmos91/httpfileserv/pkg/response"
)

// Result summarizes what happened on a connection.
type Result struct {
	// Method and Path are as received (Path decoded when decoding succeeded).
	// Both are empty when no request could be read.
	Method string
	Path   string

	// FSPath is the filesystem path the request resolved to, if it got that far.
	FSPath string

	// Traversal is set when ".." segments were stripped from the path.
	Traversal bool

	// Status is the response status sent, or 0 if nothing was sent.
	Status int

	// Bytes counts response bytes written, headers included.
	Bytes int64

	// Err is the failure that shaped the response, if any. A transfer error
	// after the header went out also lands here.
	Err error
}

// Config wires a Handler.
type Config struct {
	// Root is the served root. It should be absolute and free of "..".
	Root string

	// Platform performs directory enumeration and bulk transfer.
	// Default: platform.New()
	Platform platform.Platform

	// MIME picks the Content-Type of files. Default: built-in table only.
	MIME *mime.Table

	// Listing renders directory pages. Default: embedded template, OS order.
	Listing *listing.Generator

	// StrictConfinement rejects (404) resolved paths that leave Root after
	// symlink resolution.
	StrictConfinement bool
}

// Handler answers requests against one served root.
//
// Request flow:
//  1. Read the request once and parse the request line
//  2. Reject anything but GET, then percent-decode the target
//  3. Resolve the target under the root, stripping ".." sequences
//  4. Stat the result and dispatch to a listing, a file or a 404
//
// Thread safety:
// A Handler holds no per-request state, so one value can serve any number
// of connections, concurrently or not. Settings are fixed at construction;
// the server builds a new Handler when they change.
type Handler struct {
	// root is the served directory; resolved paths are joined onto it.
	root string

	// platform streams file bodies and backs the listing generator.
	platform platform.Platform

	// mime picks Content-Type from the file extension.
	mime *mime.Table

	// listing renders directory pages.
	listing *listing.Generator

	// strict enables symlink-aware confinement to root.
	strict bool
}

// New creates a Handler. Missing collaborators get defaults.
func New(cfg Config) *Handler {
	if cfg.Platform == nil {
		cfg.Platform = platform.New()
	}
	if cfg.MIME == nil {
		cfg.MIME = mime.NewTable()
	}
	if cfg.Listing == nil {
		cfg.Listing = listing.New(cfg.Platform, nil, listing.SortNone)
	}

	return &Handler{
		root:     cfg.Root,
		platform: cfg.Platform,
		mime:     cfg.MIME,
		listing:  cfg.Listing,
		strict:   cfg.StrictConfinement,
	}
}

// Root returns the served root.
func (h *Handler) Root() string {
	return h.root
}

// countingWriter tracks how many bytes went out through w.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Handle reads one request from conn and writes one response.
//
// The request must arrive in the first read (at most bufpool.RequestSize-1
// bytes); anything after it is ignored. A connection closed before sending anything yields a
// Result with only Err set (io.EOF for a clean close) and nothing is
// written.
func (h *Handler) Handle(conn net.Conn) Result {
	out := &countingWriter{w: conn}
	res := h.handle(conn, out)
	res.Bytes = out.n
	return res
}

func (h *Handler) handle(conn net.Conn, out *countingWriter) Result {
	// AwaitRequest: one read, at most RequestSize-1 bytes.
	buf := bufpool.Get(bufpool.RequestSize)
	defer bufpool.Put(buf)

	n, err := conn.Read(buf[:bufpool.RequestSize-1])
	if n <= 0 {
		if err == nil || errors.Is(err, io.EOF) {
			logger.Debug("Connection closed before a request was received")
		} else {
			logger.Warn("Failed to read request: %v", err)
		}
		return Result{Err: err}
	}
	logger.Debug("Read %d bytes from %s", n, conn.RemoteAddr())

	// Parsed
	req, ok := ParseRequestLine(buf[:n])
	if !ok {
		logger.Warn("Malformed request line: %q", buf[:n])
		return h.fail(out, Result{Status: response.StatusBadRequest, Err: errors.New("malformed request line")})
	}
	logger.Debug("Parsed request: method=%q target=%q", req.Method, req.RawTarget)

	res := Result{Method: req.Method, Path: req.RawTarget}

	if req.Method != "GET" {
		logger.Warn("Unsupported method %q", req.Method)
		res.Status = response.StatusNotFound
		res.Err = fmt.Errorf("unsupported method %q", req.Method)
		return h.fail(out, res)
	}

	decoded, err := resolver.Decode(req.RawTarget)
	if err != nil {
		logger.Warn("Failed to decode %q: %v", req.RawTarget, err)
		res.Status = response.StatusInternalServerError
		res.Err = err
		return h.fail(out, res)
	}
	res.Path = decoded

	// Dispatched
	resolved := resolver.Resolve(h.root, decoded)
	res.FSPath = resolved.FSPath
	res.Traversal = resolved.Traversal
	if resolved.Traversal {
		logger.Warn("Path traversal attempt blocked: %q", decoded)
	}
	logger.Debug("Resolved %q to %q", decoded, resolved.FSPath)

	if h.strict {
		inside, err := resolver.Contained(h.root, resolved.FSPath, true)
		if err != nil || !inside {
			logger.Warn("Refusing %q: resolves outside the served root", resolved.FSPath)
			res.Status = response.StatusNotFound
			res.Err = fmt.Errorf("%s escapes served root", resolved.FSPath)
			return h.fail(out, res)
		}
	}

	info, err := os.Stat(resolved.FSPath)
	if err != nil {
		logger.Debug("Not found: %q: %v", resolved.FSPath, err)
		res.Status = response.StatusNotFound
		res.Err = err
		return h.fail(out, res)
	}

	if info.IsDir() {
		return h.serveDirectory(out, resolved, res)
	}
	// Opening a FIFO or device can block forever and stall every queued
	// client behind this one.
	if !info.Mode().IsRegular() {
		logger.Warn("Refusing %q: not a regular file (%s)", resolved.FSPath, info.Mode().Type())
		res.Status = response.StatusNotFound
		res.Err = fmt.Errorf("%s is not a regular file", resolved.FSPath)
		return h.fail(out, res)
	}
	return h.serveFile(conn, out, resolved, res)
}

// fail sends the canned page for res.Status and returns res unchanged.
func (h *Handler) fail(out io.Writer, res Result) Result {
	if err := response.SendError(out, res.Status); err != nil {
		logger.Warn("Failed to send %d: %v", res.Status, err)
	}
	return res
}

// serveDirectory renders the whole listing before sending anything, so a
// rendering failure can still be answered with a 500.
func (h *Handler) serveDirectory(out io.Writer, resolved resolver.Resolved, res Result) Result {
	page, err := h.listing.Render(resolved.FSPath, resolved.URLPath)
	if err != nil {
		logger.Error("Directory listing failed for %q: %v", resolved.FSPath, err)
		res.Status = response.StatusInternalServerError
		res.Err = err
		return h.fail(out, res)
	}

	res.Status = response.StatusOK
	if err := response.SendHeader(out, response.StatusOK, "OK", "text/html", int64(len(page))); err != nil {
		logger.Warn("Failed to send listing header: %v", err)
		res.Err = err
		return res
	}
	if _, err := out.Write(page); err != nil {
		logger.Warn("Failed to send listing body: %v", err)
		res.Err = err
		return res
	}

	logger.Debug("Sent listing of %q (%s)", resolved.FSPath, humanize.IBytes(uint64(len(page))))
	return res
}

// serveFile sends the header with the file's size, then streams the body
// through the platform's bulk transfer. The size comes from the opened
// file, so a file replaced between stat and open is still framed correctly.
func (h *Handler) serveFile(conn net.Conn, out *countingWriter, resolved resolver.Resolved, res Result) Result {
	f, err := os.Open(resolved.FSPath)
	if err != nil {
		logger.Warn("Failed to open %q: %v", resolved.FSPath, err)
		res.Status = response.StatusNotFound
		res.Err = err
		return h.fail(out, res)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close %q: %v", resolved.FSPath, err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		logger.Warn("Failed to stat %q: %v", resolved.FSPath, err)
		res.Status = response.StatusNotFound
		res.Err = err
		return h.fail(out, res)
	}

	size := info.Size()
	contentType := h.mime.Lookup(resolved.FSPath)

	res.Status = response.StatusOK
	if err := response.SendHeader(out, response.StatusOK, "OK", contentType, size); err != nil {
		logger.Warn("Failed to send file header: %v", err)
		res.Err = err
		return res
	}

	sent, err := h.platform.BulkTransfer(conn, f, 0, size)
	out.n += sent
	if err != nil {
		// The header is out; the client sees a short body.
		logger.Error("Transfer of %q failed after %s of %s: %v",
			resolved.FSPath, humanize.IBytes(uint64(sent)), humanize.IBytes(uint64(size)), err)
		res.Err = err
		return res
	}

	logger.Debug("Sent %q (%s, %s)", resolved.FSPath, contentType, humanize.IBytes(uint64(size)))
	return res
}

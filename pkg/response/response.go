// Package response frames HTTP/1.1 responses.
//
// Every response carries exactly four header lines, in this order: the status
// line, Content-Type, Content-Length and "Connection: close", followed by a
// blank line and the body.
//
// Connections are never reused, so every response announces
// "Connection: close" and the caller closes the socket after the body.
// Content-Length is always exact; a body shorter than announced only
// happens when a transfer fails midway, and the client detects it from the
// early close.
package response

import (
	"fmt"
	"io"
	"strconv"
)

// Status codes the server produces.
const (
	StatusOK                  = 200
	StatusBadRequest          = 400
	StatusNotFound            = 404
	StatusInternalServerError = 500
)

// DefaultContentType is used when SendStatus is given an empty type.
const DefaultContentType = "text/html"

// SingleWriteLimit is the size below which header and body go out in a single
// write. Larger responses are sent as a header write followed by a body write.
const SingleWriteLimit = 1024

// Canned bodies for the error statuses.
const (
	BodyBadRequest = "<html><body><h1>400 Bad Request</h1>" +
		"<p>Your browser sent a request that this server could not understand.</p></body></html>"
	BodyNotFound = "<html><body><h1>404 Not Found</h1>" +
		"<p>The requested resource could not be found.</p></body></html>"
	BodyInternalServerError = "<html><body><h1>500 Internal Server Error</h1>" +
		"<p>The server encountered an unexpected condition.</p></body></html>"
)

// reasons maps the produced status codes to their reason phrases.
var reasons = map[int]string{
	StatusOK:                  "OK",
	StatusBadRequest:          "Bad Request",
	StatusNotFound:            "Not Found",
	StatusInternalServerError: "Internal Server Error",
}

// ReasonPhrase returns the reason phrase for code, or "" if unknown.
func ReasonPhrase(code int) string {
	return reasons[code]
}

// AppendHeader appends the header block of a response to dst.
//
// An empty contentType becomes DefaultContentType. The block ends with the
// blank line, so the body can follow immediately.
func AppendHeader(dst []byte, code int, reason, contentType string, length int64) []byte {
	if contentType == "" {
		contentType = DefaultContentType
	}
	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(code), 10)
	dst = append(dst, ' ')
	dst = append(dst, reason...)
	dst = append(dst, "\r\nContent-Type: "...)
	dst = append(dst, contentType...)
	dst = append(dst, "\r\nContent-Length: "...)
	dst = strconv.AppendInt(dst, length, 10)
	dst = append(dst, "\r\nConnection: close\r\n\r\n"...)
	return dst
}

// SendHeader writes only the header block. The caller streams length bytes
// of body afterwards.
func SendHeader(w io.Writer, code int, reason, contentType string, length int64) error {
	if _, err := w.Write(AppendHeader(nil, code, reason, contentType, length)); err != nil {
		return fmt.Errorf("send %d header: %w", code, err)
	}
	return nil
}

// SendStatus writes a complete response. When header plus body stay under
// SingleWriteLimit bytes they are sent in one write, otherwise in two.
func SendStatus(w io.Writer, code int, reason, contentType string, body []byte) error {
	header := AppendHeader(make([]byte, 0, 128), code, reason, contentType, int64(len(body)))

	if len(header)+len(body) < SingleWriteLimit {
		if _, err := w.Write(append(header, body...)); err != nil {
			return fmt.Errorf("send %d response: %w", code, err)
		}
		return nil
	}

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("send %d header: %w", code, err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("send %d body: %w", code, err)
	}
	return nil
}

// Send400 writes the canned Bad Request page.
func Send400(w io.Writer) error {
	return SendStatus(w, StatusBadRequest, reasons[StatusBadRequest], DefaultContentType, []byte(BodyBadRequest))
}

// Send404 writes the canned Not Found page.
func Send404(w io.Writer) error {
	return SendStatus(w, StatusNotFound, reasons[StatusNotFound], DefaultContentType, []byte(BodyNotFound))
}

// Send500 writes the canned Internal Server Error page.
func Send500(w io.Writer) error {
	return SendStatus(w, StatusInternalServerError, reasons[StatusInternalServerError], DefaultContentType, []byte(BodyInternalServerError))
}

// SendError writes the canned page for code (400, 404 or 500).
// Any other code is answered as 500.
func SendError(w io.Writer, code int) error {
	switch code {
	case StatusBadRequest:
		return Send400(w)
	case StatusNotFound:
		return Send404(w)
	default:
		return Send500(w)
	}
}

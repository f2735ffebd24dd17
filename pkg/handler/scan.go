package handler

import "bytes"

// Field widths of the request line tokens. A longer token is cut at the
// width and its remainder becomes the start of the next token.
const (
	MaxMethodLen = 31
	MaxTargetLen = 1023
)

// Request is one parsed request line.
type Request struct {
	// Method is the first token, not validated or case-folded.
	Method string

	// RawTarget is the second token, still percent-encoded. The HTTP version
	// token and any headers are ignored.
	RawTarget string
}

// ParseRequestLine extracts the method and target from the first bytes of a
// request. Data after the first NUL byte is ignored. It reports false when
// fewer than two tokens are present.
//
// Tokens are separated by any ASCII whitespace, so the first line need not
// end in CRLF. Over-long tokens are truncated to MaxMethodLen and
// MaxTargetLen rather than rejected.
func ParseRequestLine(data []byte) (Request, bool) {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}

	method, rest, ok := scanToken(data, MaxMethodLen)
	if !ok {
		return Request{}, false
	}
	target, _, ok := scanToken(rest, MaxTargetLen)
	if !ok {
		return Request{}, false
	}

	return Request{Method: method, RawTarget: target}, true
}

// scanToken skips leading whitespace and returns up to width non-whitespace
// bytes plus the unconsumed input.
func scanToken(data []byte, width int) (string, []byte, bool) {
	i := 0
	for i < len(data) && isSpace(data[i]) {
		i++
	}

	start := i
	for i < len(data) && i-start < width && !isSpace(data[i]) {
		i++
	}
	if i == start {
		return "", data[i:], false
	}
	return string(data[start:i]), data[i:], true
}

// isSpace matches the C locale's whitespace set.
func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

package response

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder keeps every Write separately so tests can check chunking.
type recorder struct {
	writes [][]byte
	failAt int
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.failAt > 0 && len(r.writes)+1 == r.failAt {
		return 0, errors.New("broken pipe")
	}
	r.writes = append(r.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (r *recorder) joined() string {
	return string(bytes.Join(r.writes, nil))
}

func TestAppendHeader(t *testing.T) {
	got := string(AppendHeader(nil, 200, "OK", "image/png", 42))
	assert.Equal(t,
		"HTTP/1.1 200 OK\r\nContent-Type: image/png\r\nContent-Length: 42\r\nConnection: close\r\n\r\n",
		got)
}

func TestAppendHeader_DefaultContentType(t *testing.T) {
	got := string(AppendHeader(nil, 404, "Not Found", "", 0))
	assert.Contains(t, got, "Content-Type: text/html\r\n")
}

func TestSendStatus_SingleWrite(t *testing.T) {
	var rec recorder
	require.NoError(t, SendStatus(&rec, 404, "Not Found", "text/html", []byte(BodyNotFound)))

	require.Len(t, rec.writes, 1)
	want := "HTTP/1.1 404 Not Found\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: " + strconv.Itoa(len(BodyNotFound)) + "\r\n" +
		"Connection: close\r\n\r\n" + BodyNotFound
	assert.Equal(t, want, rec.joined())
}

func TestSendStatus_SplitWrite(t *testing.T) {
	body := []byte(strings.Repeat("x", 2000))

	var rec recorder
	require.NoError(t, SendStatus(&rec, 200, "OK", "text/plain", body))

	require.Len(t, rec.writes, 2)
	assert.True(t, strings.HasSuffix(string(rec.writes[0]), "\r\n\r\n"))
	assert.Equal(t, body, rec.writes[1])
}

func TestSendStatus_Boundary(t *testing.T) {
	header := AppendHeader(nil, 200, "OK", "text/plain", 0)
	// Content-Length grows by digits as the body grows; compute the body size
	// that makes header+body exactly the limit.
	n := SingleWriteLimit - len(header)
	for len(AppendHeader(nil, 200, "OK", "text/plain", int64(n)))+n != SingleWriteLimit {
		n--
	}

	var exact recorder
	require.NoError(t, SendStatus(&exact, 200, "OK", "text/plain", bytes.Repeat([]byte("a"), n)))
	assert.Len(t, exact.writes, 2, "header+body == limit is split")

	var below recorder
	require.NoError(t, SendStatus(&below, 200, "OK", "text/plain", bytes.Repeat([]byte("a"), n-1)))
	assert.Len(t, below.writes, 1, "header+body < limit is one write")
}

func TestSendStatus_WriteError(t *testing.T) {
	rec := recorder{failAt: 1}
	err := Send500(&rec)
	assert.Error(t, err)
	assert.Empty(t, rec.writes)
}

func TestCannedPages(t *testing.T) {
	tests := []struct {
		name   string
		send   func(*recorder) error
		status string
		body   string
	}{
		{"400", func(r *recorder) error { return Send400(r) }, "HTTP/1.1 400 Bad Request\r\n", BodyBadRequest},
		{"404", func(r *recorder) error { return Send404(r) }, "HTTP/1.1 404 Not Found\r\n", BodyNotFound},
		{"500", func(r *recorder) error { return Send500(r) }, "HTTP/1.1 500 Internal Server Error\r\n", BodyInternalServerError},
		{"SendError 404", func(r *recorder) error { return SendError(r, 404) }, "HTTP/1.1 404 Not Found\r\n", BodyNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recorder
			require.NoError(t, tt.send(&rec))
			out := rec.joined()
			assert.True(t, strings.HasPrefix(out, tt.status))
			assert.True(t, strings.HasSuffix(out, tt.body))
			assert.Contains(t, out, "Connection: close\r\n\r\n")
		})
	}
}

func TestReasonPhrase(t *testing.T) {
	assert.Equal(t, "OK", ReasonPhrase(200))
	assert.Equal(t, "Internal Server Error", ReasonPhrase(500))
	assert.Equal(t, "", ReasonPhrase(418))
}

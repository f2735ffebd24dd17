//go:build unix

package handler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestHandle_FIFOIsNotServed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, unix.Mkfifo(filepath.Join(f.root, "pipe"), 0644))

	type outcome struct {
		rep reply
		res Result
	}
	done := make(chan outcome, 1)
	go func() {
		rep, res := roundTrip(t, newHandler(f), "GET /pipe HTTP/1.1\r\n\r\n")
		done <- outcome{rep, res}
	}()

	select {
	case out := <-done:
		assert.Equal(t, "HTTP/1.1 404 Not Found", out.rep.status)
		assert.Equal(t, 404, out.res.Status)
		assert.Error(t, out.res.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("handler blocked on a FIFO")
	}
}

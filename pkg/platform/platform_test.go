package platform

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, data, 0644))
}

// ============================================================================
// Directory enumeration
// ============================================================================

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), []byte("hello"))
	writeFile(t, filepath.Join(dir, "empty"), nil)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	p := New()
	var got []DirEntry
	err := p.ListDirectory(dir, func(e DirEntry) bool {
		got = append(got, e)
		return true
	})
	require.NoError(t, err)

	sort.Slice(got, func(i, j int) bool { return got[i].Name < got[j].Name })
	require.Len(t, got, 3)

	assert.Equal(t, "a.txt", got[0].Name)
	assert.False(t, got[0].IsDir)
	assert.Equal(t, uint64(5), got[0].Size)
	assert.Equal(t, 0, got[0].ModTime.Nanosecond())

	assert.Equal(t, "empty", got[1].Name)
	assert.Equal(t, uint64(0), got[1].Size)

	assert.Equal(t, "sub", got[2].Name)
	assert.True(t, got[2].IsDir)
	assert.Equal(t, uint64(0), got[2].Size)
}

func TestListDirectory_StopEarly(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1", "2", "3", "4"} {
		writeFile(t, filepath.Join(dir, name), []byte(name))
	}

	calls := 0
	err := New().ListDirectory(dir, func(DirEntry) bool {
		calls++
		return calls < 2
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestListDirectory_SkipsBrokenSymlink(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ok"), []byte("x"))
	if err := os.Symlink(filepath.Join(dir, "nowhere"), filepath.Join(dir, "dangling")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	p := New()
	var names []string
	require.NoError(t, p.ListDirectory(dir, func(e DirEntry) bool {
		names = append(names, e.Name)
		return true
	}))
	assert.Equal(t, []string{"ok"}, names)
	assert.NotEmpty(t, p.LastError())
}

func TestListDirectory_Missing(t *testing.T) {
	p := New()
	assert.Empty(t, p.LastError())

	err := p.ListDirectory(filepath.Join(t.TempDir(), "nope"), func(DirEntry) bool { return true })
	assert.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.NotEmpty(t, p.LastError())
}

// ============================================================================
// Sockets and bulk transfer
// ============================================================================

// loopbackPair returns both ends of an accepted TCP connection.
func loopbackPair(t *testing.T, p Platform) (server, client net.Conn) {
	t.Helper()

	ln, err := p.Listen("127.0.0.1:0", 10)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	server, ok := <-accepted
	require.True(t, ok, "accept failed")

	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

func TestListen_EphemeralPort(t *testing.T) {
	p := New()
	ln, err := p.Listen("127.0.0.1:0", 10)
	require.NoError(t, err)
	defer ln.Close()

	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.NotZero(t, addr.Port)
}

func TestBulkTransfer(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), 20000) // 320000 bytes
	path := filepath.Join(t.TempDir(), "blob.bin")
	writeFile(t, path, payload)

	tests := []struct {
		name   string
		offset int64
		count  int64
	}{
		{"whole file", 0, int64(len(payload))},
		{"middle section", 1000, 50000},
		{"tail", int64(len(payload)) - 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			server, client := loopbackPair(t, p)
			require.NoError(t, p.SetTimeouts(server, 10*time.Second))

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()

			received := make(chan []byte, 1)
			go func() {
				data, _ := io.ReadAll(client)
				received <- data
			}()

			n, err := p.BulkTransfer(server, f, tt.offset, tt.count)
			require.NoError(t, err)
			assert.Equal(t, tt.count, n)
			require.NoError(t, server.Close())

			got := <-received
			assert.Equal(t, payload[tt.offset:tt.offset+tt.count], got)

			// the file position is untouched
			pos, err := f.Seek(0, io.SeekCurrent)
			require.NoError(t, err)
			assert.Zero(t, pos)
		})
	}
}

func TestBulkTransfer_ShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short")
	writeFile(t, path, []byte("abc"))

	p := New()
	server, client := loopbackPair(t, p)
	go func() { _, _ = io.Copy(io.Discard, client) }()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n, err := p.BulkTransfer(server, f, 0, 10)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, int64(3), n)
	assert.NotEmpty(t, p.LastError())
}

func TestBulkTransfer_PeerClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big")
	writeFile(t, path, bytes.Repeat([]byte{'x'}, 64<<20))

	p := New()
	server, client := loopbackPair(t, p)
	require.NoError(t, client.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	n, err := p.BulkTransfer(server, f, 0, 64<<20)
	assert.Error(t, err)
	assert.Less(t, n, int64(64<<20))
	assert.NotEmpty(t, p.LastError())
}

func TestCopyTransfer_Pipe(t *testing.T) {
	payload := bytes.Repeat([]byte{'z'}, 20000)
	path := filepath.Join(t.TempDir(), "z")
	writeFile(t, path, payload)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	server, client := net.Pipe()
	defer client.Close()

	received := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(client)
		received <- data
	}()

	// net.Pipe is not a syscall.Conn, so every backend takes the copy loop.
	n, err := New().BulkTransfer(server, f, 0, int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	require.NoError(t, server.Close())
	assert.Equal(t, payload, <-received)
}

func TestSetBlocking(t *testing.T) {
	p := New()
	server, client := loopbackPair(t, p)

	require.NoError(t, p.SetBlocking(server, false))
	_, err := server.Read(make([]byte, 8))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())

	require.NoError(t, p.SetBlocking(server, true))
	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestSetTimeouts(t *testing.T) {
	p := New()
	server, _ := loopbackPair(t, p)

	require.NoError(t, p.SetTimeouts(server, 50*time.Millisecond))

	start := time.Now()
	_, err := server.Read(make([]byte, 1))
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTuneConn(t *testing.T) {
	p := New()
	server, _ := loopbackPair(t, p)
	assert.NoError(t, p.TuneConn(server))

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	assert.ErrorIs(t, p.TuneConn(a), ErrNotTCP)
	assert.Equal(t, ErrNotTCP.Error(), p.LastError())
}

func TestSleepMs(t *testing.T) {
	start := time.Now()
	New().SleepMs(20)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

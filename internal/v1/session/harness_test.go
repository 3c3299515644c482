package session

import (
	"bytes"
	"context"
	"io"
	"net"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parlorchat/parlor/internal/v1/room"
	"github.com/parlorchat/parlor/internal/v1/store"
)

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:9" }

// fakeConn buffers writes so handler output can be asserted without a
// reader goroutine.
type fakeConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (f *fakeConn) Read(b []byte) (int, error) { return 0, io.EOF }

func (f *fakeConn) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	return f.buf.Write(b)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) LocalAddr() net.Addr                { return fakeAddr{} }
func (f *fakeConn) RemoteAddr() net.Addr               { return fakeAddr{} }
func (f *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

// Lines returns everything written so far, ANSI-stripped and split.
func (f *fakeConn) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := ansiRE.ReplaceAllString(f.buf.String(), "")
	var out []string
	for _, l := range strings.Split(raw, "\n") {
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Drain discards buffered output.
func (f *fakeConn) Drain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buf.Reset()
}

func (f *fakeConn) Contains(substr string) bool {
	for _, l := range f.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	reg := room.NewRegistry(st)
	require.NoError(t, reg.Load())
	return NewHub(st, reg, nil)
}

func dial(h *Hub) (*Client, *fakeConn) {
	fc := &fakeConn{}
	return h.Register(fc), fc
}

func send(t *testing.T, h *Hub, c *Client, line string) Result {
	t.Helper()
	return h.HandleLine(context.Background(), c, line)
}

// register creates the account and leaves the session in the lobby.
func register(t *testing.T, h *Hub, c *Client, fc *fakeConn, name string) {
	t.Helper()
	send(t, h, c, "/account register "+name+" pw pw")
	require.True(t, fc.Contains("/LOGIN_OK "+name), "expected login frame for %s, got %v", name, fc.Lines())
	fc.Drain()
}

// join puts the session into the named room, creating it first when the
// session should own it.
func join(t *testing.T, h *Hub, c *Client, fc *fakeConn, roomName string, create bool) {
	t.Helper()
	if create {
		send(t, h, c, "/room create "+roomName)
		require.True(t, fc.Contains("Room created: "+roomName), "got %v", fc.Lines())
	}
	send(t, h, c, "/room join "+roomName)
	require.True(t, fc.Contains("Joined room: "+roomName), "got %v", fc.Lines())
	fc.Drain()
}

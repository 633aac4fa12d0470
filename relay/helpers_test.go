package relay

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeConn 记录写入内容的 net.Conn；读取总是 EOF
type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	writeErr error
	closed   bool
	remote   net.Addr
}

func (c *fakeConn) Read(b []byte) (int, error) { return 0, io.EOF }

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) getWritten() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) LocalAddr() net.Addr                { return nil }
func (c *fakeConn) RemoteAddr() net.Addr               { return c.remote }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

// recorder 记录回调
type recorder struct {
	moves   chan MoveMessage
	started atomic.Int32
}

func newRecorder() *recorder {
	return &recorder{moves: make(chan MoveMessage, 32)}
}

func (r *recorder) OnRemoteMove(m MoveMessage) { r.moves <- m }
func (r *recorder) OnGameStart()               { r.started.Add(1) }

func (r *recorder) next(t *testing.T) MoveMessage {
	t.Helper()
	select {
	case m := <-r.moves:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for remote move")
		return MoveMessage{}
	}
}

func (r *recorder) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case m := <-r.moves:
		t.Fatalf("unexpected remote move: %+v", m)
	case <-time.After(wait):
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WriteTimeout = time.Second
	cfg.DialTimeout = time.Second
	return cfg
}

func newTestNode(t *testing.T, cfg Config, cb Callbacks) *Node {
	t.Helper()
	n, err := New(cfg, cb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

// serveLoopback 在 127.0.0.1 的随机端口上运行接受循环，返回端口号
func serveLoopback(t *testing.T, n *Node) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = n.Serve(context.Background(), ln) }()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond, msg)
}

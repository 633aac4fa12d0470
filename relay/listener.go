package relay

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
)

// Listen 绑定端口并持续接受连接，直到 ctx 取消、节点关闭或出现致命错误
// 绑定失败返回 Fatal 的 *AcceptError；正常停止返回 nil
func (n *Node) Listen(ctx context.Context, port int) error {
	addr := net.JoinHostPort("", strconv.Itoa(port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		Log.Errorf("listen on %s: %v", addr, err)
		return &AcceptError{Addr: addr, Fatal: true, Err: err}
	}
	return n.Serve(ctx, ln)
}

// Serve 在已绑定的 listener 上运行接受循环；返回时 listener 已关闭
func (n *Node) Serve(ctx context.Context, ln net.Listener) error {
	addr := ln.Addr().String()
	if !n.addListener(ln) {
		_ = ln.Close()
		return ErrClosed
	}
	defer n.wg.Done()
	defer n.removeListener(ln)

	// ctx 或节点关闭时关闭 listener，打断阻塞中的 Accept
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	Log.Infof("listening for peers on %s", addr)

	// 临时错误（如文件描述符耗尽）按指数退避重试
	delay := &backoff.Backoff{Min: 5 * time.Millisecond, Max: time.Second, Factor: 2}
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || n.ctx.Err() != nil {
				Log.Infof("listener on %s stopped", addr)
				return nil
			}
			if isTransientAcceptErr(err) {
				d := delay.Duration()
				Log.Warnf("%v; retrying in %s", &AcceptError{Addr: addr, Err: err}, d)
				select {
				case <-time.After(d):
					continue
				case <-ctx.Done():
					return nil
				case <-n.ctx.Done():
					return nil
				}
			}
			aerr := &AcceptError{Addr: addr, Fatal: true, Err: err}
			Log.Errorf("%v", aerr)
			return aerr
		}
		delay.Reset()
		n.acceptConn(c)
	}
}

// acceptConn 登记入站连接、切换对局状态并启动读协程
func (n *Node) acceptConn(c net.Conn) {
	key := inboundKey(c)
	e, prev := n.reg.ReplaceInbound(key, NewPeerConn(c, n.WriteTimeout()))
	n.replaced(prev)
	n.metrics.IncAccepted()
	Log.Infof("peer connected: key=%s dir=%s", key, Inbound)

	n.state.Start()
	n.startReader(e)
}

// inboundKey 用对端地址作为 key；拿不到地址时生成唯一标识
func inboundKey(c net.Conn) PeerKey {
	if ra := c.RemoteAddr(); ra != nil {
		if s := ra.String(); s != "" {
			return s
		}
	}
	return "inbound-" + uuid.NewString()
}

func isTransientAcceptErr(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM)
}

func (n *Node) addListener(ln net.Listener) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	n.listeners[ln] = struct{}{}
	n.wg.Add(1)
	return true
}

func (n *Node) removeListener(ln net.Listener) {
	n.mu.Lock()
	delete(n.listeners, ln)
	n.mu.Unlock()
	_ = ln.Close()
}

// ListenAddrs 当前正在监听的地址
func (n *Node) ListenAddrs() []net.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]net.Addr, 0, len(n.listeners))
	for ln := range n.listeners {
		out = append(out, ln.Addr())
	}
	return out
}

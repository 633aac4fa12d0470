package relay

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
)

// Connect 同步拨号 host:port；成功后登记为出站连接、切换对局状态并启动读协程
// 默认只尝试一次，失败返回 *DialError 且不做任何登记；
// Config.DialAttempts > 1 时按指数退避重试
// 已有同地址的出站连接时不再拨号，直接返回其 key
func (n *Node) Connect(ctx context.Context, host string, port int) (PeerKey, error) {
	if n.isClosed() {
		return "", ErrClosed
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if _, ok := n.reg.Lookup(Outbound, addr); ok {
		Log.Infof("already connected to %s", addr)
		return addr, nil
	}

	c, attempts, err := n.dial(ctx, addr)
	if err != nil {
		n.metrics.IncDialFailures()
		derr := &DialError{Addr: addr, Attempts: attempts, Err: err}
		Log.Warnf("%v", derr)
		return "", derr
	}

	// 并发的两次 Connect 可能都拨号成功，后者覆盖前者并关闭旧连接
	e, prev := n.reg.ReplaceOutbound(addr, NewPeerConn(c, n.WriteTimeout()))
	n.replaced(prev)
	n.metrics.IncDialed()
	Log.Infof("peer connected: key=%s dir=%s", addr, Outbound)

	n.state.Start()
	n.startReader(e)
	return addr, nil
}

func (n *Node) dial(ctx context.Context, addr string) (net.Conn, int, error) {
	d := net.Dialer{Timeout: n.cfg.DialTimeout}
	delay := &backoff.Backoff{
		Min:    n.cfg.DialBackoffMin,
		Max:    n.cfg.DialBackoffMax,
		Factor: 2,
		Jitter: true,
	}

	var (
		lastErr  error
		attempts int
	)
	for attempts < n.cfg.DialAttempts {
		attempts++
		c, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return c, attempts, nil
		}
		lastErr = err
		if attempts >= n.cfg.DialAttempts || ctx.Err() != nil {
			break
		}

		wait := delay.Duration()
		Log.Infof("dial %s attempt %d/%d failed: %v; retrying in %s", addr, attempts, n.cfg.DialAttempts, err, wait)
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, attempts, ctx.Err()
		case <-n.ctx.Done():
			t.Stop()
			return nil, attempts, ErrClosed
		}
	}
	return nil, attempts, lastErr
}

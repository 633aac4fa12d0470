package relay

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// PeerConn 对端 TCP 连接的轻量包装：串行化写入并为每次写设置超时
// 广播转发与本地落子可能同时写同一个 socket，必须加锁防止字节交错
type PeerConn struct {
	conn net.Conn

	wmu          sync.Mutex
	writeTimeout atomic.Int64 // 纳秒；0 表示不设超时

	closeOnce sync.Once
	closeErr  error
}

// NewPeerConn 包装已建立的连接
func NewPeerConn(c net.Conn, writeTimeout time.Duration) *PeerConn {
	pc := &PeerConn{conn: c}
	pc.writeTimeout.Store(int64(writeTimeout))
	return pc
}

// SetWriteTimeout 热更新写超时（管理接口使用）
func (c *PeerConn) SetWriteTimeout(d time.Duration) { c.writeTimeout.Store(int64(d)) }

// Write 写出完整的一帧；短写视为错误
func (c *PeerConn) Write(payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if d := time.Duration(c.writeTimeout.Load()); d > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(d)); err != nil {
			return err
		}
	}
	_, err := c.conn.Write(payload)
	return err
}

// Close 幂等关闭底层连接
func (c *PeerConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr 对端地址（可能为 nil）
func (c *PeerConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Raw 读取端使用的底层连接
func (c *PeerConn) Raw() net.Conn { return c.conn }

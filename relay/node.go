// Package relay 实现双人对局的点对点连接与广播中继：
// 监听入站连接、主动拨号、按行收发落子消息，并把收到的落子转发给除发送方以外的所有对端。
//
// 渲染、输入与胜负判定不在此包内；外部协作者通过 Callbacks 接收远端落子，
// 通过 Node.SendLocalMove 发送本地落子。回调可能在多个读协程中并发调用。
package relay

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Node 一个中继节点：持有注册表、广播器、对局状态与全部连接的生命周期
type Node struct {
	id      string
	cfg     Config
	cb      Callbacks
	reg     *Registry
	bc      *Broadcaster
	seen    *seenWindow
	state   *GameState
	metrics *RelayMetrics

	seq          atomic.Uint64
	writeTimeout atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex // 保护 closed、listeners、conns 与 wg.Add
	closed    bool
	listeners map[net.Listener]struct{}
	conns     map[*PeerConn]struct{} // 所有读协程仍在运行的连接，含已被注册表覆盖的
	wg        sync.WaitGroup
}

// New 创建节点；cb 为 nil 时回调为空操作
func New(cfg Config, cb Callbacks) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cb == nil {
		cb = CallbackFuncs{}
	}
	seen, err := newSeenWindow(cfg.DedupWindow)
	if err != nil {
		return nil, err
	}

	metrics := &RelayMetrics{}
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		id:        uuid.NewString(),
		cfg:       cfg,
		cb:        cb,
		reg:       reg,
		bc:        NewBroadcaster(reg, metrics),
		seen:      seen,
		state:     newGameState(cb.OnGameStart),
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*PeerConn]struct{}),
	}
	n.bc.onDrop = func(*Entry) { metrics.IncDisconnects() }
	n.writeTimeout.Store(int64(cfg.WriteTimeout))
	return n, nil
}

func (n *Node) ID() string                { return n.id }
func (n *Node) Registry() *Registry       { return n.reg }
func (n *Node) Metrics() *RelayMetrics    { return n.metrics }
func (n *Node) State() *GameState         { return n.state }
func (n *Node) Broadcaster() *Broadcaster { return n.bc }

// WriteTimeout 当前写超时
func (n *Node) WriteTimeout() time.Duration { return time.Duration(n.writeTimeout.Load()) }

// SetWriteTimeout 热更新写超时，对已有连接立即生效
func (n *Node) SetWriteTimeout(d time.Duration) {
	n.writeTimeout.Store(int64(d))
	for _, e := range n.reg.Snapshot() {
		e.Conn.SetWriteTimeout(d)
	}
}

// SendLocalMove 打上本节点的来源标识与序号后广播（来源 key 为 "local"）
func (n *Node) SendLocalMove(m MoveMessage) error {
	if n.isClosed() {
		return ErrClosed
	}
	m.Origin = n.id
	m.Seq = n.seq.Add(1)
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	// 记下自己的消息，网状拓扑中绕回来时直接丢弃
	n.seen.firstSeen(m)
	n.metrics.IncLocalMoves()
	return n.bc.Broadcast(LocalKey, payload)
}

// Close 停止所有监听、关闭所有连接并等待读协程退出；可重复调用
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	lns := make([]net.Listener, 0, len(n.listeners))
	for ln := range n.listeners {
		lns = append(lns, ln)
	}
	conns := make([]*PeerConn, 0, len(n.conns))
	for pc := range n.conns {
		conns = append(conns, pc)
	}
	n.mu.Unlock()

	n.cancel()
	for _, ln := range lns {
		_ = ln.Close()
	}
	for _, pc := range conns {
		_ = pc.Close()
	}
	for _, e := range n.reg.Snapshot() {
		_ = e.Conn.Close()
	}
	n.wg.Wait()
	Log.Infof("relay node %s closed", n.id)
	return nil
}

func (n *Node) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// track 登记一个读协程及其连接；节点已关闭时返回 false
func (n *Node) track(pc *PeerConn) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	n.conns[pc] = struct{}{}
	n.wg.Add(1)
	return true
}

func (n *Node) untrack(pc *PeerConn) {
	n.mu.Lock()
	delete(n.conns, pc)
	n.mu.Unlock()
}

// replaced 关闭被同 key 新连接覆盖的旧连接；旧读协程随之退出
func (n *Node) replaced(prev *Entry) {
	if prev == nil {
		return
	}
	Log.Infof("peer %s (%s) replaced by a newer connection", prev.Key, prev.Direction)
	n.metrics.IncDisconnects()
	_ = prev.Conn.Close()
}

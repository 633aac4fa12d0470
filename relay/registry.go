package relay

import (
	"sync"
	"time"
)

// PeerKey 连接的唯一标识；只在同一方向内唯一
type PeerKey = string

// LocalKey 本地落子的来源标识，不对应任何连接
const LocalKey PeerKey = "local"

// Direction 连接方向
type Direction int

const (
	Inbound  Direction = iota // 由监听端接受
	Outbound                  // 由本进程主动拨号
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Entry 注册表中的一条连接记录；Peer Reader 只持有其引用用于读取
type Entry struct {
	Key       PeerKey
	Direction Direction
	Conn      *PeerConn
	Since     time.Time
}

// Registry 入站/出站两张表，由 Listener、Initiator、Peer Reader 与 Broadcaster 并发修改
type Registry struct {
	mu       sync.RWMutex
	inbound  map[PeerKey]*Entry
	outbound map[PeerKey]*Entry
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		inbound:  make(map[PeerKey]*Entry),
		outbound: make(map[PeerKey]*Entry),
	}
}

// RegisterInbound 无条件写入入站表（后写覆盖，旧连接不会被关闭）
func (r *Registry) RegisterInbound(key PeerKey, conn *PeerConn) *Entry {
	return r.register(r.inbound, key, Inbound, conn)
}

// RegisterOutbound 无条件写入出站表（后写覆盖，旧连接不会被关闭）
func (r *Registry) RegisterOutbound(key PeerKey, conn *PeerConn) *Entry {
	return r.register(r.outbound, key, Outbound, conn)
}

// ReplaceInbound 同 RegisterInbound，但返回被覆盖的旧记录（无则为 nil），由调用方负责关闭
func (r *Registry) ReplaceInbound(key PeerKey, conn *PeerConn) (e, prev *Entry) {
	return r.replace(r.inbound, key, Inbound, conn)
}

// ReplaceOutbound 同 RegisterOutbound，但返回被覆盖的旧记录（无则为 nil）
func (r *Registry) ReplaceOutbound(key PeerKey, conn *PeerConn) (e, prev *Entry) {
	return r.replace(r.outbound, key, Outbound, conn)
}

func (r *Registry) register(m map[PeerKey]*Entry, key PeerKey, dir Direction, conn *PeerConn) *Entry {
	e, _ := r.replace(m, key, dir, conn)
	return e
}

func (r *Registry) replace(m map[PeerKey]*Entry, key PeerKey, dir Direction, conn *PeerConn) (*Entry, *Entry) {
	e := &Entry{Key: key, Direction: dir, Conn: conn, Since: time.Now()}
	r.mu.Lock()
	prev := m[key]
	m[key] = e
	r.mu.Unlock()
	return e, prev
}

// Remove 从两张表中删除 key；不存在时为空操作，可重复调用
func (r *Registry) Remove(key PeerKey) {
	r.mu.Lock()
	delete(r.inbound, key)
	delete(r.outbound, key)
	r.mu.Unlock()
}

// RemoveEntry 仅当表中仍是这条记录时才删除，避免旧的读协程误删同 key 的新连接
func (r *Registry) RemoveEntry(e *Entry) bool {
	if e == nil {
		return false
	}
	m := r.inbound
	if e.Direction == Outbound {
		m = r.outbound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := m[e.Key]; ok && cur == e {
		delete(m, e.Key)
		return true
	}
	return false
}

// Lookup 按方向查找
func (r *Registry) Lookup(dir Direction, key PeerKey) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dir == Outbound {
		e, ok := r.outbound[key]
		return e, ok
	}
	e, ok := r.inbound[key]
	return e, ok
}

// Snapshot 返回两张表的时点副本；调用方在锁外做 socket 写入
func (r *Registry) Snapshot() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.inbound)+len(r.outbound))
	for _, e := range r.outbound {
		out = append(out, e)
	}
	for _, e := range r.inbound {
		out = append(out, e)
	}
	return out
}

// Len 返回入站与出站连接数
func (r *Registry) Len() (inbound, outbound int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inbound), len(r.outbound)
}

package relay

import (
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Broadcaster 将一帧写给除来源以外的所有已注册连接
type Broadcaster struct {
	reg     *Registry
	metrics *RelayMetrics

	// onDrop 写失败的连接被移出注册表后回调（Node 用来记录断开）
	onDrop func(*Entry)
}

// NewBroadcaster 基于注册表创建广播器；metrics 可为 nil
func NewBroadcaster(reg *Registry, metrics *RelayMetrics) *Broadcaster {
	if metrics == nil {
		metrics = &RelayMetrics{}
	}
	return &Broadcaster{reg: reg, metrics: metrics}
}

// Broadcast 对快照中每个 key != sourceKey 的连接各尝试写一次（并发）
// 单个接收方失败只移除该接收方，不影响其余投递；返回合并后的 *WriteError
func (b *Broadcaster) Broadcast(sourceKey PeerKey, payload []byte) error {
	targets := b.reg.Snapshot()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs error
	)
	for _, e := range targets {
		if e.Key == sourceKey {
			continue // 不回传给发送方
		}
		g.Go(func() error {
			if err := e.Conn.Write(payload); err != nil {
				b.drop(e, err)
				mu.Lock()
				errs = multierr.Append(errs, &WriteError{Key: e.Key, Err: err})
				mu.Unlock()
				return nil
			}
			b.metrics.IncWrites()
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (b *Broadcaster) drop(e *Entry, err error) {
	b.metrics.IncWriteFailures()
	Log.Warnf("broadcast write failed: key=%s dir=%s err=%v", e.Key, e.Direction, err)
	if b.reg.RemoveEntry(e) {
		_ = e.Conn.Close()
		if b.onDrop != nil {
			b.onDrop(e)
		}
	}
}

package relay

import (
	"sync/atomic"
)

// RelayMetrics 记录中继运行期的关键指标（用于监控与调试）
type RelayMetrics struct {
	Accepted          int64 // 接受的入站连接数
	Dialed            int64 // 成功的出站连接数
	DialFailures      int64 // 拨号失败次数
	Disconnects       int64 // 连接关闭次数（EOF、读错误、写失败）
	MovesReceived     int64 // 成功解码的远端落子数
	LocalMoves        int64 // 本地落子数
	Writes            int64 // 成功的广播写入次数
	WriteFailures     int64 // 广播写失败次数
	DecodeFailures    int64 // 非法报文数
	DuplicatesDropped int64 // 因重复而丢弃的落子数
}

func (m *RelayMetrics) IncAccepted()          { atomic.AddInt64(&m.Accepted, 1) }
func (m *RelayMetrics) IncDialed()            { atomic.AddInt64(&m.Dialed, 1) }
func (m *RelayMetrics) IncDialFailures()      { atomic.AddInt64(&m.DialFailures, 1) }
func (m *RelayMetrics) IncDisconnects()       { atomic.AddInt64(&m.Disconnects, 1) }
func (m *RelayMetrics) IncMovesReceived()     { atomic.AddInt64(&m.MovesReceived, 1) }
func (m *RelayMetrics) IncLocalMoves()        { atomic.AddInt64(&m.LocalMoves, 1) }
func (m *RelayMetrics) IncWrites()            { atomic.AddInt64(&m.Writes, 1) }
func (m *RelayMetrics) IncWriteFailures()     { atomic.AddInt64(&m.WriteFailures, 1) }
func (m *RelayMetrics) IncDecodeFailures()    { atomic.AddInt64(&m.DecodeFailures, 1) }
func (m *RelayMetrics) IncDuplicatesDropped() { atomic.AddInt64(&m.DuplicatesDropped, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RelayMetrics) Snapshot() map[string]any {
	return map[string]any{
		"accepted":           atomic.LoadInt64(&m.Accepted),
		"dialed":             atomic.LoadInt64(&m.Dialed),
		"dial_failures":      atomic.LoadInt64(&m.DialFailures),
		"disconnects":        atomic.LoadInt64(&m.Disconnects),
		"moves_received":     atomic.LoadInt64(&m.MovesReceived),
		"local_moves":        atomic.LoadInt64(&m.LocalMoves),
		"writes":             atomic.LoadInt64(&m.Writes),
		"write_failures":     atomic.LoadInt64(&m.WriteFailures),
		"decode_failures":    atomic.LoadInt64(&m.DecodeFailures),
		"duplicates_dropped": atomic.LoadInt64(&m.DuplicatesDropped),
	}
}

package relay

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var errLineTooLong = errors.New("relay: line exceeds limit")

// startReader 为连接启动独立的读协程
func (n *Node) startReader(e *Entry) {
	if !n.track(e.Conn) {
		n.release(e)
		return
	}
	go n.readLoop(e)
}

// readLoop 阻塞读取一行一条记录：Reading → Closed
// 读到 EOF、读错误或非法报文时关闭连接并移出注册表
func (n *Node) readLoop(e *Entry) {
	defer n.wg.Done()
	defer n.untrack(e.Conn)
	defer n.release(e)

	r := bufio.NewReader(e.Conn.Raw())
	for {
		line, err := readLine(r, n.cfg.MaxLineBytes)
		if err != nil {
			if errors.Is(err, io.EOF) {
				Log.Infof("peer closed: key=%s dir=%s", e.Key, e.Direction)
			} else if n.ctx.Err() == nil {
				Log.Warnf("read error: key=%s dir=%s err=%v", e.Key, e.Direction, err)
			}
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		m, err := Decode(line)
		if err != nil {
			// 非法对端视为不可恢复：无法保证后续仍在行边界上
			n.metrics.IncDecodeFailures()
			Log.Warnf("dropping peer %s: %v", e.Key, err)
			return
		}
		n.deliver(e.Key, m)
	}
}

// deliver 去重 → 回调渲染层 → 重新编码后转发给其他对端
func (n *Node) deliver(sourceKey PeerKey, m MoveMessage) {
	if !n.seen.firstSeen(m) {
		n.metrics.IncDuplicatesDropped()
		Log.Debugf("duplicate move dropped: from=%s origin=%s seq=%d", sourceKey, m.Origin, m.Seq)
		return
	}
	n.metrics.IncMovesReceived()
	n.cb.OnRemoteMove(m)

	payload, err := Encode(m)
	if err != nil {
		Log.Warnf("re-encode move from %s: %v", sourceKey, err)
		return
	}
	if err := n.bc.Broadcast(sourceKey, payload); err != nil {
		Log.Debugf("relay from %s partially failed: %v", sourceKey, err)
	}
}

// release 移出注册表并关闭 socket；只有真正移除时才计一次断开
func (n *Node) release(e *Entry) {
	if n.reg.RemoveEntry(e) {
		n.metrics.IncDisconnects()
	}
	_ = e.Conn.Close()
}

// readLine 读取以 '\n' 结尾的一行（含换行符），超过 max 字节视为错误
// EOF 前未以换行结尾的残片直接丢弃
func readLine(r *bufio.Reader, max int) ([]byte, error) {
	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		buf = append(buf, frag...)
		if max > 0 && len(buf) > max {
			return nil, errLineTooLong
		}
		switch {
		case err == nil:
			return buf, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return nil, err
		}
	}
}

package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed 节点已关闭后再调用 Listen/Connect/SendLocalMove
	ErrClosed = errors.New("relay: node closed")
	// ErrNonFinite 坐标为 NaN 或 ±Inf，无法编码
	ErrNonFinite = errors.New("relay: coordinates must be finite")
	// ErrInvalidUTF8 贴图路径或来源标识不是合法 UTF-8，JSON 编码会静默替换坏字节
	ErrInvalidUTF8 = errors.New("relay: texturePath and origin must be valid UTF-8")
)

// DialError 主动连接失败（拒绝、超时、DNS），不自动重试
type DialError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *DialError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("dial %s failed after %d attempts: %v", e.Addr, e.Attempts, e.Err)
	}
	return fmt.Sprintf("dial %s: %v", e.Addr, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// AcceptError 监听端错误；Fatal=true 表示监听循环已终止（如端口绑定失败）
type AcceptError struct {
	Addr  string
	Fatal bool
	Err   error
}

func (e *AcceptError) Error() string {
	kind := "transient"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("accept on %s (%s): %v", e.Addr, kind, e.Err)
}

func (e *AcceptError) Unwrap() error { return e.Err }

// DecodeError 报文不是合法的 JSON 对象，或缺少 x/y 数值字段
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode move: %s: %v", e.Reason, e.Err)
	}
	return "decode move: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// WriteError 广播时单个接收方写失败，仅影响该接收方
type WriteError struct {
	Key PeerKey
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

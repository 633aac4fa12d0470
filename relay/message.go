package relay

import (
	"bytes"
	"encoding/json"
	"math"
	"unicode/utf8"
)

// MoveMessage 一次落子事件：棋子位置与（可选的）贴图路径
// Origin/Seq 由发起节点填写，用于在网状拓扑中去重；旧版对端不带这两个字段
type MoveMessage struct {
	X           float64
	Y           float64
	TexturePath string
	Origin      string
	Seq         uint64
}

// 线上格式：一行一个 JSON 对象
// 示例：{"x":1,"y":2,"texturePath":"res://cross.png","origin":"9f1c…","seq":3}
type wireMove struct {
	X           *float64 `json:"x"`
	Y           *float64 `json:"y"`
	TexturePath string   `json:"texturePath,omitempty"`
	Origin      string   `json:"origin,omitempty"`
	Seq         uint64   `json:"seq,omitempty"`
}

// hasID 是否携带可用于去重的来源标识
func (m MoveMessage) hasID() bool { return m.Origin != "" }

// Encode 序列化为单行记录（以 '\n' 结尾）；JSON 字符串转义保证内部不含换行
func Encode(m MoveMessage) ([]byte, error) {
	if !isFinite(m.X) || !isFinite(m.Y) {
		return nil, ErrNonFinite
	}
	if !utf8.ValidString(m.TexturePath) || !utf8.ValidString(m.Origin) {
		return nil, ErrInvalidUTF8
	}
	x, y := m.X, m.Y
	b, err := json.Marshal(wireMove{
		X:           &x,
		Y:           &y,
		TexturePath: m.TexturePath,
		Origin:      m.Origin,
		Seq:         m.Seq,
	})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Decode 解析一条记录；纯函数，不做任何 I/O
func Decode(line []byte) (MoveMessage, error) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return MoveMessage{}, &DecodeError{Reason: "not a JSON object"}
	}

	var w wireMove
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return MoveMessage{}, &DecodeError{Reason: "malformed payload", Err: err}
	}
	if w.X == nil {
		return MoveMessage{}, &DecodeError{Reason: "missing field x"}
	}
	if w.Y == nil {
		return MoveMessage{}, &DecodeError{Reason: "missing field y"}
	}
	return MoveMessage{
		X:           *w.X,
		Y:           *w.Y,
		TexturePath: w.TexturePath,
		Origin:      w.Origin,
		Seq:         w.Seq,
	}, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

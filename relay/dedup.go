package relay

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// seenWindow 最近见过的 (origin, seq) 集合，容量有限，按 LRU 淘汰
type seenWindow struct {
	cache *lru.Cache[string, struct{}]
}

func newSeenWindow(size int) (*seenWindow, error) {
	if size <= 0 {
		return &seenWindow{}, nil // 关闭去重
	}
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &seenWindow{cache: c}, nil
}

// firstSeen 记录消息标识；返回 false 表示此前已见过（应丢弃）
// 不带 Origin 的消息总是视为首次出现
func (w *seenWindow) firstSeen(m MoveMessage) bool {
	if w.cache == nil || !m.hasID() {
		return true
	}
	seen, _ := w.cache.ContainsOrAdd(m.Origin+"#"+strconv.FormatUint(m.Seq, 10), struct{}{})
	return !seen
}

package relay

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

const (
	// DefaultPort 主监听端口（服务端角色）
	DefaultPort = 7800
	// DefaultMeshPort 对称网状连接使用的第二监听端口
	DefaultMeshPort = 7801
)

// Config 中继节点配置
type Config struct {
	WriteTimeout time.Duration // 每次广播写的超时；0 表示不设
	DialTimeout  time.Duration // 单次拨号超时
	MaxLineBytes int           // 单帧最大长度（含换行）
	DedupWindow  int           // 去重窗口容量；0 关闭去重

	// DialAttempts > 1 时拨号失败按指数退避重试
	DialAttempts   int
	DialBackoffMin time.Duration
	DialBackoffMax time.Duration
}

// DefaultConfig 默认配置：不自动重连，开启去重与写超时
func DefaultConfig() Config {
	return Config{
		WriteTimeout:   5 * time.Second,
		DialTimeout:    5 * time.Second,
		MaxLineBytes:   64 << 10,
		DedupWindow:    1024,
		DialAttempts:   1,
		DialBackoffMin: 200 * time.Millisecond,
		DialBackoffMax: 5 * time.Second,
	}
}

// Validate 检查配置是否合法
func (c Config) Validate() error {
	var errs []error
	if c.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("write timeout must not be negative: %s", c.WriteTimeout))
	}
	if c.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("dial timeout must not be negative: %s", c.DialTimeout))
	}
	if c.MaxLineBytes < 16 {
		errs = append(errs, fmt.Errorf("max line bytes too small: %d", c.MaxLineBytes))
	}
	if c.DedupWindow < 0 {
		errs = append(errs, fmt.Errorf("dedup window must not be negative: %d", c.DedupWindow))
	}
	if c.DialAttempts < 1 {
		errs = append(errs, fmt.Errorf("dial attempts must be at least 1: %d", c.DialAttempts))
	}
	if c.DialAttempts > 1 && c.DialBackoffMax < c.DialBackoffMin {
		errs = append(errs, fmt.Errorf("dial backoff max %s below min %s", c.DialBackoffMax, c.DialBackoffMin))
	}
	return multierr.Combine(errs...)
}

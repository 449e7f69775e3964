package config

import (
	"errors"
	"time"
)

// SocketConfig 套接字配置
type SocketConfig struct {
	// ConnectTimeout 拨号超时
	ConnectTimeout Duration `json:"connect_timeout"`

	// AcceptRate 每秒接受的入站连接数上限，0 表示不限制
	AcceptRate float64 `json:"accept_rate"`

	// AcceptBurst 接入突发量，AcceptRate > 0 时生效
	AcceptBurst int `json:"accept_burst,omitempty"`
}

// DefaultSocketConfig 返回默认套接字配置
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		ConnectTimeout: Duration(10 * time.Second), // 拨号超时：10 秒
		AcceptRate:     0,                          // 不限速
		AcceptBurst:    16,
	}
}

// Validate 验证套接字配置
func (c SocketConfig) Validate() error {
	if c.ConnectTimeout <= 0 {
		return errors.New("connect_timeout must be positive")
	}
	if c.AcceptRate < 0 {
		return errors.New("accept_rate must be non-negative")
	}
	if c.AcceptRate > 0 && c.AcceptBurst <= 0 {
		return errors.New("accept_burst must be positive when accept_rate is set")
	}
	return nil
}

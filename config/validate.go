package config

import (
	"errors"
	"fmt"
)

// ValidateAll 验证整个配置的有效性
//
// 与 Config.Validate() 相同，额外处理 nil。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 循环数量非正 -> 使用默认值
//   - 分片大小非正 -> 使用默认值
//   - 启用背压但应用层窗口为 0 -> 使用一个分片
//   - TLS 层数为负 -> 0
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	if c.EventLoop.Threads <= 0 {
		c.EventLoop.Threads = DefaultEventLoopConfig().Threads
	}
	if c.Channel.MaxFragmentSize <= 0 {
		c.Channel.MaxFragmentSize = DefaultChannelConfig().MaxFragmentSize
	}
	if c.Channel.EnableBackPressure && c.Channel.InitialWindow == 0 {
		c.Channel.InitialWindow = c.Channel.MaxFragmentSize
	}
	if c.TLS.Levels < 0 {
		c.TLS.Levels = 0
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}

// ValidateSubConfig 可单独验证的子配置
type ValidateSubConfig interface {
	Validate() error
}

// section 带 JSON 键名的子配置
type section struct {
	name string
	cfg  ValidateSubConfig
}

// sections 按 JSON 键名列出所有子配置
func (c *Config) sections() []section {
	return []section{
		{"event_loop", c.EventLoop},
		{"channel", c.Channel},
		{"socket", c.Socket},
		{"tls", c.TLS},
		{"metrics", c.Metrics},
	}
}

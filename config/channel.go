package config

import "errors"

// ChannelConfig 管道配置
type ChannelConfig struct {
	// MaxFragmentSize 单条消息最大字节数
	MaxFragmentSize int `json:"max_fragment_size"`

	// EnableBackPressure 是否启用读方向背压
	// 关闭时各 Slot 窗口视为无限
	EnableBackPressure bool `json:"enable_back_pressure"`

	// InitialWindow 应用层 Handler 的初始读窗口
	InitialWindow int `json:"initial_window"`

	// StatisticsInterval 统计采样间隔，0 表示关闭
	StatisticsInterval Duration `json:"statistics_interval"`
}

// DefaultChannelConfig 返回默认管道配置
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		// ════════════════════════════════════════════════════════════════════
		// 分片与窗口
		// ════════════════════════════════════════════════════════════════════
		MaxFragmentSize:    16 * 1024, // 16 KiB：与 TLS 记录上限一致
		EnableBackPressure: false,     // 默认关闭背压
		InitialWindow:      16 * 1024, // 应用层初始窗口：一个分片

		// ════════════════════════════════════════════════════════════════════
		// 统计
		// ════════════════════════════════════════════════════════════════════
		StatisticsInterval: 0, // 默认不采样
	}
}

// Validate 验证管道配置
func (c ChannelConfig) Validate() error {
	if c.MaxFragmentSize <= 0 {
		return errors.New("max_fragment_size must be positive")
	}
	if c.InitialWindow < 0 {
		return errors.New("initial_window must be non-negative")
	}
	if c.StatisticsInterval < 0 {
		return errors.New("statistics_interval must be non-negative")
	}
	return nil
}

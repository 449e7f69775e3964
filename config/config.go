// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Channel.EnableBackPressure = true
//	cfg.TLS.Levels = 2
//
//	// 从 JSON 加载
//	cfg, err := config.FromJSON(data)
//
//	// 从文件加载
//	cfg, err := config.LoadFile("netio.json")
package config

import "fmt"

// Config 是 go-netio 的完整配置结构
//
// 配置按照功能模块组织：
//   - EventLoop: 事件循环组
//   - Channel: 管道、分片与背压
//   - Socket: TCP 连接与接入
//   - TLS: TLS 协商
//   - Metrics: 统计与指标
type Config struct {
	// EventLoop 事件循环配置
	EventLoop EventLoopConfig `json:"event_loop"`

	// Channel 管道配置
	Channel ChannelConfig `json:"channel"`

	// Socket 套接字配置
	Socket SocketConfig `json:"socket"`

	// TLS TLS 配置
	TLS TLSConfig `json:"tls"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`
}

// NewConfig 创建默认配置
//
// 返回的配置使用所有组件的默认值，适用于大多数场景。
func NewConfig() *Config {
	return &Config{
		EventLoop: DefaultEventLoopConfig(),
		Channel:   DefaultChannelConfig(),
		Socket:    DefaultSocketConfig(),
		TLS:       DefaultTLSConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// Validate 验证配置的有效性
//
// 检查所有子配置是否有效，如果发现无效配置则返回错误。
func (c *Config) Validate() error {
	for _, s := range c.sections() {
		if err := s.cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

package config

import "errors"

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否收集 Channel 统计
	Enabled bool `json:"enabled"`

	// SnapshotInterval 快照日志间隔，0 表示不输出快照
	SnapshotInterval Duration `json:"snapshot_interval"`

	// IdleTimeout 无流量的 Channel 统计保留时长，0 表示不清理
	IdleTimeout Duration `json:"idle_timeout,omitempty"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:          true,
		SnapshotInterval: 0,
		IdleTimeout:      0,
	}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if c.SnapshotInterval < 0 {
		return errors.New("snapshot_interval must be non-negative")
	}
	if c.IdleTimeout < 0 {
		return errors.New("idle_timeout must be non-negative")
	}
	return nil
}

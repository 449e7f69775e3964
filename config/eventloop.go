package config

import (
	"errors"
	"runtime"
)

// EventLoopConfig 事件循环组配置
type EventLoopConfig struct {
	// Threads 事件循环数量
	// 每个循环占用一个 goroutine，Channel 按轮询分配到各循环
	Threads int `json:"threads"`
}

// DefaultEventLoopConfig 返回默认事件循环配置
func DefaultEventLoopConfig() EventLoopConfig {
	return EventLoopConfig{
		Threads: runtime.NumCPU(), // 每个 CPU 一个循环
	}
}

// Validate 验证事件循环配置
func (c EventLoopConfig) Validate() error {
	if c.Threads <= 0 {
		return errors.New("threads must be positive")
	}
	return nil
}

// WithThreads 设置循环数量
func (c EventLoopConfig) WithThreads(n int) EventLoopConfig {
	c.Threads = n
	return c
}

// Package log 提供 go-netio 统一日志接口
//
// 基于标准库 log/slog 封装。每个组件持有一个包级 logger：
//
//	var logger = log.Logger("core/channel")
//	logger.Debug("消息已投递", "channel", id, "bytes", n)
//
// 环境变量:
//
//	NETIO_LOG_LEVEL=debug|info|warn|error   默认 info
//	NETIO_LOG_FORMAT=text|json              默认 text
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	level = new(slog.LevelVar)

	// current 当前根 logger，可在运行时替换
	current atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(parseLevel(os.Getenv("NETIO_LOG_LEVEL")))
	current.Store(newRoot(os.Stderr, os.Getenv("NETIO_LOG_FORMAT") == "json"))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newRoot(w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput 重定向日志输出
func SetOutput(w io.Writer) {
	current.Store(newRoot(w, false))
}

// SetLevel 设置全局日志级别
func SetLevel(l slog.Level) {
	level.Set(l)
}

// SetDefault 替换根 logger
func SetDefault(l *slog.Logger) {
	if l != nil {
		current.Store(l)
	}
}

// Default 返回根 logger
func Default() *slog.Logger {
	return current.Load()
}

// ============================================================================
//                              ComponentLogger
// ============================================================================

// ComponentLogger 组件 logger
//
// 每次调用都从当前根 logger 派生，SetOutput/SetDefault 对已创建的
// 组件 logger 立即生效。
type ComponentLogger struct {
	component string
}

// Logger 返回组件 logger
func Logger(component string) *ComponentLogger {
	return &ComponentLogger{component: component}
}

func (l *ComponentLogger) base() *slog.Logger {
	return current.Load().With("component", l.component)
}

// Debug 输出 Debug 级别日志
func (l *ComponentLogger) Debug(msg string, args ...any) {
	l.base().Debug(msg, args...)
}

// Info 输出 Info 级别日志
func (l *ComponentLogger) Info(msg string, args ...any) {
	l.base().Info(msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *ComponentLogger) Warn(msg string, args ...any) {
	l.base().Warn(msg, args...)
}

// Error 输出 Error 级别日志
func (l *ComponentLogger) Error(msg string, args ...any) {
	l.base().Error(msg, args...)
}

// With 返回附加属性后的 slog.Logger
func (l *ComponentLogger) With(args ...any) *slog.Logger {
	return l.base().With(args...)
}

// TruncateID 截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

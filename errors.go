package netio

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 运行时生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 运行时未启动
	ErrNotStarted = errors.New("runtime not started")

	// ErrAlreadyStarted 运行时已启动
	ErrAlreadyStarted = errors.New("runtime already started")

	// ErrRuntimeClosed 运行时已关闭
	ErrRuntimeClosed = errors.New("runtime closed")

	// ────────────────────────────────────────────────────────────────────────
	// TLS 相关错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNoServerCertificate 配置了 TLS 层但没有服务端证书
	ErrNoServerCertificate = errors.New("tls levels configured without server certificate")
)

package types

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// ============================================================================
//                              错误码与错误类别
// ============================================================================

// ErrorCode 错误码
//
// CodeSuccess (0) 表示正常关闭，对应 nil 错误。
type ErrorCode int

const (
	// CodeSuccess 成功 / 本地正常关闭
	CodeSuccess ErrorCode = iota

	// ─── 协议错误 ───

	// CodeReadWouldExceedWindow 投递会超出接收方窗口
	CodeReadWouldExceedWindow
	// CodeInvalidState 状态非法（窗口下溢、重复操作等）
	CodeInvalidState
	// CodeSlotHandlerAlreadySet Slot 已设置 Handler
	CodeSlotHandlerAlreadySet
	// CodeInvalidSlotTopology Slot 拓扑非法
	CodeInvalidSlotTopology
	// CodeChannelShutdown Channel 已关闭
	CodeChannelShutdown

	// ─── 传输错误 ───

	// CodeSocketClosed 套接字已关闭
	CodeSocketClosed
	// CodeSocketTimeout 套接字超时
	CodeSocketTimeout
	// CodeConnectTimeout 连接超时
	CodeConnectTimeout
	// CodeConnectionRefused 连接被拒绝
	CodeConnectionRefused

	// ─── TLS 错误 ───

	// CodeTLSNegotiationFailure 协商失败
	CodeTLSNegotiationFailure
	// CodeTLSNegotiationTimeout 协商超时
	CodeTLSNegotiationTimeout
	// CodeTLSCertificate 证书校验失败
	CodeTLSCertificate
	// CodeTLSProtocol 协议版本或报文错误
	CodeTLSProtocol
	// CodeTLSCipher 无可用加密套件
	CodeTLSCipher
	// CodeTLSContextInvalid TLS 上下文无效或已释放
	CodeTLSContextInvalid

	// ─── 资源错误 ───

	// CodeResourceExhausted 资源耗尽
	CodeResourceExhausted

	// ─── 任务 ───

	// CodeTaskCanceled 任务被取消
	CodeTaskCanceled
)

// ErrorClass 错误类别
type ErrorClass int

const (
	// ClassNone 无错误
	ClassNone ErrorClass = iota
	// ClassProtocol 协议错误（窗口违规、拓扑非法），对 Channel 致命
	ClassProtocol
	// ClassTransport 传输错误（关闭、超时），通过回调上报，不在内部重试
	ClassTransport
	// ClassTLS TLS 错误（握手、证书、协商超时），调用方可换配置重试
	ClassTLS
	// ClassResource 资源耗尽，致命
	ClassResource
	// ClassCanceled 任务取消
	ClassCanceled
	// ClassUnknown 无法归类的外部错误
	ClassUnknown
)

// String 返回类别名称
func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassProtocol:
		return "protocol"
	case ClassTransport:
		return "transport"
	case ClassTLS:
		return "tls"
	case ClassResource:
		return "resource"
	case ClassCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error 带错误码和类别的错误
type Error struct {
	Code  ErrorCode
	Class ErrorClass
	msg   string
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return e.msg
}

// Is 按错误码匹配，使 errors.Is 能穿透 %w 包装
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(code ErrorCode, class ErrorClass, msg string) *Error {
	return &Error{Code: code, Class: class, msg: msg}
}

// ============================================================================
//                              协议错误
// ============================================================================

var (
	// ErrReadWouldExceedWindow 读消息超出下游窗口
	ErrReadWouldExceedWindow = newError(CodeReadWouldExceedWindow, ClassProtocol, "channel: read would exceed window")

	// ErrInvalidState 状态非法
	ErrInvalidState = newError(CodeInvalidState, ClassProtocol, "channel: invalid state")

	// ErrSlotHandlerAlreadySet Slot 已有 Handler
	ErrSlotHandlerAlreadySet = newError(CodeSlotHandlerAlreadySet, ClassProtocol, "channel: slot handler already set")

	// ErrInvalidSlotTopology 非法的 Slot 拓扑
	ErrInvalidSlotTopology = newError(CodeInvalidSlotTopology, ClassProtocol, "channel: invalid slot topology")

	// ErrChannelShutdown Channel 已进入关闭流程
	ErrChannelShutdown = newError(CodeChannelShutdown, ClassProtocol, "channel: already shut down")
)

// ============================================================================
//                              传输错误
// ============================================================================

var (
	// ErrSocketClosed 对端或本地关闭了套接字
	ErrSocketClosed = newError(CodeSocketClosed, ClassTransport, "socket: closed")

	// ErrSocketTimeout 套接字读写超时
	ErrSocketTimeout = newError(CodeSocketTimeout, ClassTransport, "socket: timeout")

	// ErrConnectTimeout 建连超时
	ErrConnectTimeout = newError(CodeConnectTimeout, ClassTransport, "socket: connect timeout")

	// ErrConnectionRefused 建连被拒绝
	ErrConnectionRefused = newError(CodeConnectionRefused, ClassTransport, "socket: connection refused")
)

// ============================================================================
//                              TLS 错误
// ============================================================================

var (
	// ErrTLSNegotiationFailure TLS 协商失败
	ErrTLSNegotiationFailure = newError(CodeTLSNegotiationFailure, ClassTLS, "tls: negotiation failure")

	// ErrTLSNegotiationTimeout TLS 协商超时
	ErrTLSNegotiationTimeout = newError(CodeTLSNegotiationTimeout, ClassTLS, "tls: negotiation timeout")

	// ErrTLSCertificate 证书被拒绝
	ErrTLSCertificate = newError(CodeTLSCertificate, ClassTLS, "tls: certificate rejected")

	// ErrTLSProtocol 协议错误（版本不匹配、收到告警）
	ErrTLSProtocol = newError(CodeTLSProtocol, ClassTLS, "tls: protocol error")

	// ErrTLSCipher 无共同加密套件
	ErrTLSCipher = newError(CodeTLSCipher, ClassTLS, "tls: no shared cipher suite")

	// ErrTLSContextInvalid TLS 上下文无效
	ErrTLSContextInvalid = newError(CodeTLSContextInvalid, ClassTLS, "tls: invalid or released context")
)

// ============================================================================
//                              资源 / 任务错误
// ============================================================================

var (
	// ErrResourceExhausted 资源耗尽
	ErrResourceExhausted = newError(CodeResourceExhausted, ClassResource, "resource exhausted")

	// ErrTaskCanceled 任务在执行前被取消（事件循环停止）
	ErrTaskCanceled = newError(CodeTaskCanceled, ClassCanceled, "task canceled")
)

// ============================================================================
//                              分类工具
// ============================================================================

// Wrap 给分类错误附加上下文，保留错误码
func Wrap(base *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}

// ClassOf 返回错误类别
//
// nil 返回 ClassNone；未分类的网络错误归入传输类。
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	if errors.Is(err, context.Canceled) {
		return ClassCanceled
	}
	if IsTransportError(err) {
		return ClassTransport
	}
	return ClassUnknown
}

// CodeOf 返回错误码；nil 返回 CodeSuccess
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}

// IsTLSError 是否为 TLS 层错误
func IsTLSError(err error) bool {
	return ClassOf(err) == ClassTLS
}

// IsTransportError 是否为传输层错误
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassTransport
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

package types

import "fmt"

// ============================================================================
//                              Direction - 消息方向
// ============================================================================

// Direction 消息在管道中的流动方向
type Direction int

const (
	// DirRead 读方向：从传输层流向应用层（向右）
	DirRead Direction = iota
	// DirWrite 写方向：从应用层流向传输层（向左）
	DirWrite
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirRead:
		return "read"
	case DirWrite:
		return "write"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ============================================================================
//                              NegotiationState - TLS 协商状态
// ============================================================================

// NegotiationState TLS 协商状态
//
// 状态迁移：Init → Negotiating → {Negotiated | Failed}
type NegotiationState int32

const (
	// NegotiationInit 尚未开始
	NegotiationInit NegotiationState = iota
	// NegotiationNegotiating 协商中
	NegotiationNegotiating
	// NegotiationNegotiated 协商成功
	NegotiationNegotiated
	// NegotiationFailed 协商失败
	NegotiationFailed
)

// String 返回状态名称
func (s NegotiationState) String() string {
	switch s {
	case NegotiationInit:
		return "INIT"
	case NegotiationNegotiating:
		return "NEGOTIATING"
	case NegotiationNegotiated:
		return "NEGOTIATED"
	case NegotiationFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("negotiation(%d)", int(s))
	}
}

// IsTerminal 是否为终态
func (s NegotiationState) IsTerminal() bool {
	return s == NegotiationNegotiated || s == NegotiationFailed
}

// ============================================================================
//                              ShutdownState - Channel 关闭状态
// ============================================================================

// ShutdownState Channel 聚合关闭状态
type ShutdownState int32

const (
	// ShutdownNotStarted 未开始关闭
	ShutdownNotStarted ShutdownState = iota
	// ShutdownReading 读方向关闭中
	ShutdownReading
	// ShutdownWriting 写方向关闭中
	ShutdownWriting
	// ShutdownComplete 关闭完成
	ShutdownComplete
)

// String 返回状态名称
func (s ShutdownState) String() string {
	switch s {
	case ShutdownNotStarted:
		return "not-started"
	case ShutdownReading:
		return "shutting-down-read"
	case ShutdownWriting:
		return "shutting-down-write"
	case ShutdownComplete:
		return "complete"
	default:
		return fmt.Sprintf("shutdown(%d)", int(s))
	}
}

// ============================================================================
//                              TLSRole - TLS 角色
// ============================================================================

// TLSRole TLS 握手角色
type TLSRole int

const (
	// RoleClient 客户端：主动发起握手
	RoleClient TLSRole = iota
	// RoleServer 服务端：等待对端首包
	RoleServer
)

// String 返回角色名称
func (r TLSRole) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// ============================================================================
//                              TaskStatus - 任务状态
// ============================================================================

// TaskStatus 任务执行时的状态
type TaskStatus int

const (
	// TaskRunReady 正常执行
	TaskRunReady TaskStatus = iota
	// TaskCanceled 事件循环停止或任务被取消，仍需调用以保证回调
	TaskCanceled
)

// String 返回状态名称
func (s TaskStatus) String() string {
	if s == TaskCanceled {
		return "canceled"
	}
	return "run-ready"
}

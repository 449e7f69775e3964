// Package channel 定义 Channel 管道接口
//
// Channel 是绑定到单个事件循环的有序 Slot 链：
//
//	[socket] ⇄ [tls] ⇄ [tls ...] ⇄ [application]
//	   ←───────── 写方向 (DirWrite) ─────────
//	   ───────── 读方向 (DirRead) ──────────→
//
// 所有 Slot/Handler 状态只在该事件循环 goroutine 上修改。
package channel

import (
	"time"

	"github.com/dep2p/go-netio/pkg/interfaces/eventloop"
	"github.com/dep2p/go-netio/pkg/types"
)

// ============================================================================
//                              Handler 接口
// ============================================================================

// Handler 协议处理单元
//
// 实现包括传输层（socket）、TLS、应用层和 no-op。
// 所有方法都在 Channel 的事件循环 goroutine 上调用。
// 任一方法返回错误都会触发 Channel 整体关闭。
type Handler interface {
	// ProcessReadMessage 处理从左侧（传输层方向）到达的消息
	// 处理完毕后必须 Release 消息
	ProcessReadMessage(slot Slot, msg *types.Message) error

	// ProcessWriteMessage 处理从右侧（应用层方向）到达的消息
	ProcessWriteMessage(slot Slot, msg *types.Message) error

	// IncrementReadWindow 下游窗口已扩大 size 字节
	IncrementReadWindow(slot Slot, size int) error

	// Shutdown 关闭指定方向
	// 完成后（同步或异步）必须调用 slot.OnHandlerShutdownComplete
	Shutdown(slot Slot, dir types.Direction, err error, abortImmediately bool) error

	// InitialWindowSize 初始读窗口
	InitialWindowSize() int

	// MessageOverhead 写方向每条消息的额外开销（如 TLS 记录头）
	MessageOverhead() int

	// Destroy 释放资源，Channel 关闭完成后调用
	Destroy()
}

// ============================================================================
//                              Slot 接口
// ============================================================================

// Slot 管道中的一个位置，最多持有一个 Handler
type Slot interface {
	// Channel 返回所属 Channel
	Channel() Channel

	// Handler 返回 Handler，未设置时为 nil
	Handler() Handler

	// SetHandler 设置 Handler，只能设置一次
	SetHandler(h Handler) error

	// Left 左侧（传输层方向）邻居，无则为 nil
	Left() Slot

	// Right 右侧（应用层方向）邻居，无则为 nil
	Right() Slot

	// InsertRight 把 toAdd 插入到当前 Slot 右侧
	InsertRight(toAdd Slot) error

	// InsertLeft 把 toAdd 插入到当前 Slot 左侧
	InsertLeft(toAdd Slot) error

	// InsertEnd 把 toAdd 追加到链尾
	InsertEnd(toAdd Slot) error

	// Remove 从链上摘除当前 Slot，并销毁其 Handler
	Remove() error

	// Replace 用 replacement 替换当前 Slot 在链上的位置
	Replace(replacement Slot) error

	// SendMessage 把消息投递给 dir 方向上相邻 Slot 的 Handler
	// 无论成功与否，消息所有权都已转移，调用方不得再使用 msg
	SendMessage(msg *types.Message, dir types.Direction) error

	// IncrementReadWindow 请求扩大当前 Slot 的读窗口
	// 不会同步生效：统一转成 Channel 循环上的任务
	IncrementReadWindow(size int)

	// WindowSize 当前 Slot 对左侧邻居开放的窗口
	WindowSize() int

	// DownstreamReadWindow 右侧邻居当前窗口
	DownstreamReadWindow() int

	// UpstreamMessageOverhead 左侧所有 Handler 的消息开销之和
	UpstreamMessageOverhead() int

	// OnHandlerShutdownComplete Handler 完成 dir 方向关闭
	OnHandlerShutdownComplete(dir types.Direction, err error, abortImmediately bool) error
}

// ============================================================================
//                              Channel 接口
// ============================================================================

// Channel Slot 链
type Channel interface {
	// ID 返回 Channel 唯一标识
	ID() string

	// EventLoop 返回绑定的事件循环
	EventLoop() eventloop.EventLoop

	// FirstSlot 返回链头（传输层一侧）
	FirstSlot() Slot

	// LastSlot 返回链尾（应用层一侧）
	LastSlot() Slot

	// NewSlot 创建 Slot；第一个 Slot 自动成为链头，其余需显式插入
	NewSlot() (Slot, error)

	// Shutdown 发起关闭，幂等，保留第一次的错误
	Shutdown(err error)

	// ShutdownState 返回关闭状态
	ShutdownState() types.ShutdownState

	// AcquireMessage 从消息池获取消息
	AcquireMessage(dir types.Direction, sizeHint int) (*types.Message, error)

	// MaxFragmentSize 返回最大分片大小
	MaxFragmentSize() int

	// IsReadBackPressureEnabled 是否启用读方向背压
	IsReadBackPressureEnabled() bool

	// ScheduleTaskNow 在 Channel 循环上尽快执行任务
	ScheduleTaskNow(task *eventloop.Task)

	// ScheduleTaskFuture 在 Channel 循环上定时执行任务
	ScheduleTaskFuture(task *eventloop.Task, runAt time.Time)

	// CancelTask 取消任务
	CancelTask(task *eventloop.Task)

	// CurrentTime 返回循环时钟时间
	CurrentTime() time.Time

	// IsOnCallersThread 调用方是否在 Channel 循环上
	IsOnCallersThread() bool
}

// ============================================================================
//                              统计
// ============================================================================

// 内置 Handler 的统计类别
const (
	KindSocket = "socket"
	KindTLS    = "tls"
	KindApp    = "app"
)

// Statistics 单个 Handler 的统计快照
type Statistics struct {
	// Kind Handler 类别，内置 Handler 使用 KindSocket / KindTLS / KindApp
	Kind string

	// BytesRead 读方向处理的字节数
	BytesRead uint64

	// BytesWritten 写方向处理的字节数
	BytesWritten uint64

	// NegotiationState TLS Handler 的协商状态，其它类别为零值
	NegotiationState types.NegotiationState

	// HandshakeStart / HandshakeEnd TLS 协商起止时间
	HandshakeStart time.Time
	HandshakeEnd   time.Time
}

// StatisticsProvider 可上报统计的 Handler
type StatisticsProvider interface {
	// Statistics 返回自上次重置以来的统计
	Statistics() Statistics

	// ResetStatistics 重置计数
	ResetStatistics()
}

// StatisticsReporter 接收 Channel 周期性采样结果
type StatisticsReporter interface {
	// ReportStatistics 上报一次采样，interval 为采样区间
	ReportStatistics(channelID string, interval time.Duration, stats []Statistics)

	// Close Channel 关闭后调用
	Close(channelID string)
}
